package clip

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/media"
	"github.com/moafunk/player/internal/util"
)

// positionTick is how often the decoder reports the playback position.
const positionTick = 250 * time.Millisecond

// peakBucket is the number of output frames summarized by one waveform peak.
const peakBucket = 1024

// NewHTTPDecoderFactory returns a factory for decoders that stream clips over
// HTTP and play them through actx. Decoding starts as soon as the first bytes
// arrive; the clip is never downloaded up front.
func NewHTTPDecoderFactory(actx *audio.Context, client *http.Client) DecoderFactory {
	client = cmp.Or(client, http.DefaultClient)
	return func(src string, emit func(Signal)) Decoder {
		d := &HTTPDecoder{actx: actx, client: client, src: src, emit: emit}
		d.start(false)
		return d
	}
}

// HTTPDecoder is a progressive clip decoder.
type HTTPDecoder struct {
	actx   *audio.Context
	client *http.Client
	src    string
	emit   func(Signal)

	mu        sync.Mutex
	run       *decodeRun
	destroyed bool
	peaks     []float32
}

// decodeRun is one pass over the clip, from request to end of stream.
type decodeRun struct {
	ctx      context.Context
	cancel   context.CancelFunc
	ctrl     *beep.Ctrl
	buf      *audio.Buffer
	playing  bool
	autoplay bool
	finished bool
}

func (d *HTTPDecoder) start(autoplay bool) {
	ctx, cancel := context.WithCancel(context.Background())
	run := &decodeRun{ctx: ctx, cancel: cancel, autoplay: autoplay}
	d.mu.Lock()
	d.run = run
	d.mu.Unlock()
	go d.load(run)
}

func (d *HTTPDecoder) load(run *decodeRun) {
	defer util.Recover("clip decoder")
	d.emit(Signal{Kind: SignalLoading})

	req, err := http.NewRequestWithContext(run.ctx, http.MethodGet, d.src, http.NoBody)
	if err != nil {
		d.fail(run, util.WrapError("create request", err))
		return
	}
	req.Header.Set("User-Agent", media.UserAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		d.fail(run, err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		d.fail(run, &statusError{code: resp.StatusCode, src: d.src})
		return
	}

	codec := cmp.Or(media.CodecFromPath(d.src), media.CodecFromContentType(resp.Header.Get("Content-Type")))
	body := &countingReader{rc: resp.Body}
	stream, format, err := media.Decode(codec, body)
	if err != nil {
		d.fail(run, err)
		return
	}

	rate := d.actx.SampleRate()
	est := &estimator{
		sourceRate:    format.SampleRate,
		length:        stream.Len(),
		contentLength: resp.ContentLength,
		body:          body,
	}
	var s beep.Streamer = &peakTap{s: stream, d: d, est: est}
	if format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, s)
	}
	buf := audio.NewBuffer(run.ctx, s, 16)
	ctrl := &beep.Ctrl{Streamer: buf, Paused: true}

	d.mu.Lock()
	if d.run != run || d.destroyed {
		d.mu.Unlock()
		run.cancel()
		<-buf.Done()
		stream.Close()
		return
	}
	run.ctrl = ctrl
	run.buf = buf
	autoplay := run.autoplay
	d.actx.Destination().Add(ctrl)
	d.mu.Unlock()

	slog.Debug("clip decoder ready", "src", d.src, "codec", codec, "sample_rate", format.SampleRate)
	d.emit(Signal{Kind: SignalReady, Duration: est.duration()})
	if autoplay {
		if err := d.Play(); err != nil {
			d.fail(run, err)
		}
	}

	d.watch(run, est, rate)
	<-buf.Done()
	stream.Close()
}

// watch reports position until the run ends.
func (d *HTTPDecoder) watch(run *decodeRun, est *estimator, rate beep.SampleRate) {
	ticker := time.NewTicker(positionTick)
	defer ticker.Stop()
	for {
		select {
		case <-run.ctx.Done():
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		playing := run.playing
		d.mu.Unlock()
		if playing {
			d.emit(Signal{
				Kind:     SignalTimeUpdate,
				Position: rate.D(int(run.buf.Played())),
				Duration: est.duration(),
			})
		}

		if !run.buf.Drained() || run.ctx.Err() != nil {
			continue
		}
		if err := run.buf.Err(); err != nil {
			d.fail(run, err)
			return
		}
		d.mu.Lock()
		run.finished = true
		run.playing = false
		d.mu.Unlock()
		d.actx.Destination().Remove(run.ctrl)
		d.emit(Signal{Kind: SignalFinish})
		return
	}
}

// Play starts or resumes playback. A finished clip starts again from the
// beginning with a fresh request.
func (d *HTTPDecoder) Play() error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrClosed
	}
	run := d.run
	switch {
	case run.finished:
		d.mu.Unlock()
		d.start(true)
		return nil
	case run.ctrl == nil:
		run.autoplay = true
		d.mu.Unlock()
		return nil
	}
	run.playing = true
	d.mu.Unlock()

	if d.actx.State() == audio.StateSuspended {
		if err := d.actx.Resume(); err != nil {
			return err
		}
	}
	d.actx.Lock()
	run.ctrl.Paused = false
	d.actx.Unlock()
	d.emit(Signal{Kind: SignalPlay})
	return nil
}

// Pause pauses playback.
func (d *HTTPDecoder) Pause() {
	d.mu.Lock()
	run := d.run
	if d.destroyed || run.ctrl == nil {
		if !d.destroyed {
			run.autoplay = false
		}
		d.mu.Unlock()
		return
	}
	run.playing = false
	d.mu.Unlock()

	d.actx.Lock()
	run.ctrl.Paused = true
	d.actx.Unlock()
	d.emit(Signal{Kind: SignalPause})
}

// Destroy stops decoding and releases the stream.
func (d *HTTPDecoder) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	run := d.run
	ctrl := run.ctrl
	d.mu.Unlock()

	run.cancel()
	if ctrl != nil {
		d.actx.Destination().Remove(ctrl)
	}
}

// Peaks returns the waveform peaks decoded so far.
func (d *HTTPDecoder) Peaks() []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float32(nil), d.peaks...)
}

func (d *HTTPDecoder) addPeak(v float32) {
	d.mu.Lock()
	d.peaks = append(d.peaks, v)
	d.mu.Unlock()
}

func (d *HTTPDecoder) fail(run *decodeRun, err error) {
	d.mu.Lock()
	current := d.run == run && !d.destroyed
	ctrl := run.ctrl
	d.mu.Unlock()
	if !current {
		return
	}
	run.cancel()
	if ctrl != nil {
		d.actx.Destination().Remove(ctrl)
	}
	d.emit(Signal{Kind: SignalError, Err: err})
}

type statusError struct {
	code int
	src  string
}

func (e *statusError) Error() string {
	return "GET " + e.src + ": " + http.StatusText(e.code)
}

// countingReader counts bytes read from the response body.
type countingReader struct {
	rc io.ReadCloser
	n  atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReader) Close() error {
	return c.rc.Close()
}

// estimator derives the clip duration. Decoders that know their length
// report it directly; otherwise the duration is extrapolated from the
// fraction of the body consumed so far.
type estimator struct {
	sourceRate    beep.SampleRate
	length        int
	contentLength int64
	body          *countingReader
	decoded       atomic.Int64
}

func (e *estimator) duration() time.Duration {
	if e.length > 0 {
		return e.sourceRate.D(e.length)
	}
	consumed := e.body.n.Load()
	decoded := e.decoded.Load()
	if e.contentLength <= 0 || consumed <= 0 || decoded <= 0 {
		return 0
	}
	frames := float64(decoded) * float64(e.contentLength) / float64(consumed)
	return e.sourceRate.D(int(math.Round(frames)))
}

// peakTap records waveform peaks and decoded frame counts on the decode path.
type peakTap struct {
	s      beep.Streamer
	d      *HTTPDecoder
	est    *estimator
	peak   float64
	filled int
}

func (t *peakTap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	for _, f := range samples[:n] {
		t.peak = max(t.peak, math.Abs(f[0]), math.Abs(f[1]))
		t.filled++
		if t.filled == peakBucket {
			t.d.addPeak(float32(min(t.peak, 1)))
			t.peak, t.filled = 0, 0
		}
	}
	t.est.decoded.Add(int64(n))
	return n, ok
}

func (t *peakTap) Err() error {
	return t.s.Err()
}
