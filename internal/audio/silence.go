package audio

import (
	"sync"
	"time"
)

// SilenceConfig holds the dead-air thresholds.
type SilenceConfig struct {
	Threshold  float64 // dB below which the stream counts as silent
	DurationMs int64   // silence needed before it is reported
	RecoveryMs int64   // audio needed before silence is over
}

// SilenceEvent is the detector's view after one reading.
type SilenceEvent struct {
	InSilence    bool    // silence confirmed and not yet recovered
	DurationMs   int64   // length of the confirmed silence so far
	CurrentLevel float64 // reading in dB

	JustEntered     bool  // this reading confirmed the silence
	JustRecovered   bool  // this reading ended it
	TotalDurationMs int64 // silence length, set with JustRecovered
}

type silencePhase int

const (
	phaseAudio      silencePhase = iota
	phaseQuiet                   // below threshold, not yet long enough
	phaseSilent                  // confirmed
	phaseRecovering              // confirmed, audio is back but not for long enough
)

// SilenceDetector turns a stream of level readings into dead-air
// transitions. It is safe for concurrent use.
type SilenceDetector struct {
	mu        sync.Mutex
	phase     silencePhase
	quietFrom time.Time
	loudFrom  time.Time
	silentMs  int64
}

// NewSilenceDetector returns a detector in the audio phase.
func NewSilenceDetector() *SilenceDetector {
	return &SilenceDetector{}
}

// Update feeds one reading taken at now.
func (d *SilenceDetector) Update(db float64, cfg SilenceConfig, now time.Time) SilenceEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := SilenceEvent{CurrentLevel: db}
	quiet := db < cfg.Threshold

	switch d.phase {
	case phaseAudio:
		if !quiet {
			return ev
		}
		d.quietFrom = now
		d.phase = phaseQuiet
		fallthrough

	case phaseQuiet:
		if !quiet {
			d.phase = phaseAudio
			return ev
		}
		d.silentMs = now.Sub(d.quietFrom).Milliseconds()
		if d.silentMs < cfg.DurationMs {
			return ev
		}
		d.phase = phaseSilent
		ev.JustEntered = true

	case phaseSilent, phaseRecovering:
		if quiet {
			// A dip during recovery extends the same silence.
			d.phase = phaseSilent
			d.silentMs = now.Sub(d.quietFrom).Milliseconds()
			break
		}
		if d.phase == phaseSilent {
			d.phase = phaseRecovering
			d.loudFrom = now
		}
		if now.Sub(d.loudFrom).Milliseconds() >= cfg.RecoveryMs {
			ev.JustRecovered = true
			ev.TotalDurationMs = d.silentMs
			d.resetLocked()
			return ev
		}
	}

	ev.InSilence = true
	ev.DurationMs = d.silentMs
	return ev
}

// Reset returns the detector to the audio phase without reporting recovery.
func (d *SilenceDetector) Reset() {
	d.mu.Lock()
	d.resetLocked()
	d.mu.Unlock()
}

func (d *SilenceDetector) resetLocked() {
	d.phase = phaseAudio
	d.quietFrom = time.Time{}
	d.loudFrom = time.Time{}
	d.silentMs = 0
}
