// Package output provides the audio sinks the player can play through.
package output

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/util"
)

// Output kinds accepted by New.
const (
	KindSpeaker = "speaker"
	KindNull    = "null"
)

// SpeakerBufferSize is the device buffer length. Larger values survive
// scheduling hiccups at the cost of pause latency.
const SpeakerBufferSize = 100 * time.Millisecond

// New returns the sink for kind.
func New(kind string) (audio.Sink, error) {
	switch kind {
	case KindSpeaker:
		return &Speaker{}, nil
	case KindNull:
		return &audio.NullSink{}, nil
	}
	return nil, fmt.Errorf("unknown audio output %q", kind)
}

// Speaker plays through the system audio device.
type Speaker struct {
	mu      sync.Mutex
	started bool
}

// Start initializes the device and begins playing s.
func (sp *Speaker) Start(sr beep.SampleRate, s beep.Streamer) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.started {
		return nil
	}
	if err := speaker.Init(sr, sr.N(SpeakerBufferSize)); err != nil {
		return util.WrapError("initialize speaker", err)
	}
	speaker.Play(s)
	sp.started = true
	slog.Info("speaker started", "sample_rate", sr, "buffer", SpeakerBufferSize)
	return nil
}

// Close stops the device.
func (sp *Speaker) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if !sp.started {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	sp.started = false
	return nil
}
