package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/gopxl/beep/v2"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyser defaults match the browser analysis node the meter was tuned on.
const (
	DefaultFFTSize   = 256
	DefaultSmoothing = 0.8
	MinDecibels      = -100.0
	MaxDecibels      = -30.0
)

// Analyser exposes frequency-domain magnitudes of the audio passing through
// its taps. It is safe for concurrent use.
type Analyser struct {
	mu        sync.Mutex
	size      int
	ring      []float64 // mono time-domain history
	pos       int
	window    []float64
	fft       *fourier.FFT
	input     []float64
	coeffs    []complex128
	smoothed  []float64
	smoothing float64
}

// NewAnalyser creates an analyser with the given window size. Sizes that are
// not a power of two of at least 32 fall back to DefaultFFTSize.
func NewAnalyser(fftSize int) *Analyser {
	if fftSize < 32 || fftSize&(fftSize-1) != 0 {
		fftSize = DefaultFFTSize
	}
	return &Analyser{
		size:      fftSize,
		ring:      make([]float64, fftSize),
		window:    blackman(fftSize),
		fft:       fourier.NewFFT(fftSize),
		input:     make([]float64, fftSize),
		coeffs:    make([]complex128, fftSize/2+1),
		smoothed:  make([]float64, fftSize/2),
		smoothing: DefaultSmoothing,
	}
}

// blackman returns the classic Blackman window (alpha 0.16).
func blackman(n int) []float64 {
	const alpha = 0.16
	a0, a1, a2 := (1-alpha)/2, 0.5, alpha/2
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}

// FFTSize returns the analysis window length in samples.
func (a *Analyser) FFTSize() int { return a.size }

// FrequencyBinCount returns the number of bins produced per analysis.
func (a *Analyser) FrequencyBinCount() int { return a.size / 2 }

// Tap returns a streamer that passes s through unchanged while recording a
// mono mix for analysis.
func (a *Analyser) Tap(s beep.Streamer) beep.Streamer {
	return &tap{s: s, a: a}
}

func (a *Analyser) write(samples [][2]float64) {
	a.mu.Lock()
	for _, f := range samples {
		a.ring[a.pos] = (f[0] + f[1]) / 2
		a.pos = (a.pos + 1) % a.size
	}
	a.mu.Unlock()
}

// ByteFrequencyData fills dst with the current magnitudes scaled to 0..255
// between MinDecibels and MaxDecibels. It returns the number of bins written.
func (a *Analyser) ByteFrequencyData(dst []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.size {
		a.input[i] = a.ring[(a.pos+i)%a.size] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.input)

	n := min(len(dst), len(a.smoothed))
	scale := 255 / (MaxDecibels - MinDecibels)
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / float64(a.size)
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if k >= n {
			continue
		}
		db := 20 * math.Log10(a.smoothed[k])
		v := scale * (db - MinDecibels)
		switch {
		case math.IsNaN(v) || v <= 0:
			dst[k] = 0
		case v >= 255:
			dst[k] = 255
		default:
			dst[k] = byte(v)
		}
	}
	return n
}

// Reset clears history and smoothing state.
func (a *Analyser) Reset() {
	a.mu.Lock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
	a.mu.Unlock()
}

type tap struct {
	s beep.Streamer
	a *Analyser
}

func (t *tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	t.a.write(samples[:n])
	return n, ok
}

func (t *tap) Err() error {
	return t.s.Err()
}
