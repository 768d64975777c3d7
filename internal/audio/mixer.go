package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Mixer sums any number of streamers. It never drains: with nothing to play
// it produces silence, so an output can stay open across playback sessions.
type Mixer struct {
	mu        sync.Mutex
	streamers []beep.Streamer
	scratch   [][2]float64
}

// NewMixer creates an empty mixer.
func NewMixer() *Mixer {
	return &Mixer{}
}

// Add queues streamers for mixing. Finished streamers are dropped automatically.
func (m *Mixer) Add(s ...beep.Streamer) {
	m.mu.Lock()
	m.streamers = append(m.streamers, s...)
	m.mu.Unlock()
}

// Remove drops s from the mix if present.
func (m *Mixer) Remove(s beep.Streamer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.streamers {
		if x == s {
			m.streamers = append(m.streamers[:i], m.streamers[i+1:]...)
			return
		}
	}
}

// Clear removes all streamers.
func (m *Mixer) Clear() {
	m.mu.Lock()
	m.streamers = nil
	m.mu.Unlock()
}

// Len returns the number of active streamers.
func (m *Mixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streamers)
}

// Stream implements beep.Streamer.
func (m *Mixer) Stream(samples [][2]float64) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(samples)
	if cap(m.scratch) < len(samples) {
		m.scratch = make([][2]float64, len(samples))
	}
	tmp := m.scratch[:len(samples)]

	kept := m.streamers[:0]
	for _, s := range m.streamers {
		n, ok := s.Stream(tmp)
		for i := range n {
			samples[i][0] += tmp[i][0]
			samples[i][1] += tmp[i][1]
		}
		if ok {
			kept = append(kept, s)
		}
	}
	clear(m.streamers[len(kept):])
	m.streamers = kept
	return len(samples), true
}

// Err implements beep.Streamer.
func (m *Mixer) Err() error {
	return nil
}
