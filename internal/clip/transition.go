// Package clip implements the on-page clip players. Each player decodes its
// clip lazily on first activation, and players keep at most one of them
// playing by broadcasting playback claims to each other.
package clip

import "time"

// Status is the lifecycle status of a clip player.
type Status string

// Player statuses.
const (
	Uninitialized Status = "uninitialized"
	Loading       Status = "loading"
	ReadyPaused   Status = "ready_paused"
	ReadyPlaying  Status = "ready_playing"
)

// EventKind identifies an input to the state machine.
type EventKind string

// User events.
const (
	EventActivate EventKind = "activate"
	EventToggle   EventKind = "toggle"
)

// Decoder signals.
const (
	SignalLoading    EventKind = "loading"
	SignalReady      EventKind = "ready"
	SignalTimeUpdate EventKind = "timeupdate"
	SignalPlay       EventKind = "play"
	SignalPause      EventKind = "pause"
	SignalFinish     EventKind = "finish"
	SignalError      EventKind = "error"
)

// EventClaim is a playback claim from another player.
const EventClaim EventKind = "claim"

// Event is one input to Transition.
type Event struct {
	Kind     EventKind
	Position time.Duration // SignalTimeUpdate
	Duration time.Duration // SignalReady, SignalTimeUpdate
	Seq      uint64        // EventClaim
	Err      error         // SignalError
}

// Effect is a side effect requested by a transition. Effects are applied in
// order by the player.
type Effect string

// Effects.
const (
	EffectCreateDecoder Effect = "create_decoder"
	EffectClaim         Effect = "claim"
	EffectPlay          Effect = "play"
	EffectPause         Effect = "pause"
	EffectRelease       Effect = "release"
)

// State is everything the state machine knows about one player.
type State struct {
	Status      Status
	Loading     bool
	AutoPlayed  bool   // first ready already started playback
	PlayPending bool   // play requested, play signal not yet seen
	ClaimSeq    uint64 // sequence number of this player's latest claim
	Position    time.Duration
	Duration    time.Duration
	Err         string
}

// Playing reports whether the player is playing or about to.
func (s State) Playing() bool {
	return s.Status == ReadyPlaying || s.PlayPending
}

// Transition maps a state and an event to the next state and the effects to
// apply. It has no side effects.
func Transition(s State, ev Event) (State, []Effect) {
	switch ev.Kind {
	case EventActivate:
		if s.Status == Uninitialized {
			return activate(s)
		}

	case EventToggle:
		switch s.Status {
		case Uninitialized:
			return activate(s)
		case ReadyPaused:
			// A second press before playback started cancels it.
			if s.PlayPending {
				s.PlayPending = false
				return s, []Effect{EffectPause}
			}
			s.PlayPending = true
			return s, []Effect{EffectClaim, EffectPlay}
		case ReadyPlaying:
			s.PlayPending = false
			return s, []Effect{EffectPause}
		}

	case SignalLoading:
		if s.Status == Loading {
			s.Loading = true
		}

	case SignalReady:
		if s.Status != Loading {
			return s, nil
		}
		s.Status = ReadyPaused
		s.Loading = false
		s.Duration = ev.Duration
		if !s.AutoPlayed {
			s.AutoPlayed = true
			s.PlayPending = true
			return s, []Effect{EffectClaim, EffectPlay}
		}

	case SignalTimeUpdate:
		if s.Status == ReadyPaused || s.Status == ReadyPlaying {
			s.Position = ev.Position
			if ev.Duration > 0 {
				s.Duration = ev.Duration
			}
		}

	case SignalPlay:
		if s.Status == ReadyPaused || s.Status == ReadyPlaying {
			s.Status = ReadyPlaying
			s.PlayPending = false
		}

	case SignalPause:
		if s.Status == ReadyPlaying || s.Status == ReadyPaused {
			s.Status = ReadyPaused
			s.PlayPending = false
		}

	case SignalFinish:
		if s.Status == ReadyPlaying || s.Status == ReadyPaused {
			s.Status = ReadyPaused
			s.PlayPending = false
			s.Position = s.Duration
		}

	case SignalError:
		if s.Status == Uninitialized {
			return s, nil
		}
		next := State{Status: Uninitialized, ClaimSeq: s.ClaimSeq}
		if ev.Err != nil {
			next.Err = ev.Err.Error()
		}
		return next, []Effect{EffectRelease}

	case EventClaim:
		// Claims older than our own lost the race already.
		if ev.Seq <= s.ClaimSeq || !s.Playing() {
			return s, nil
		}
		s.PlayPending = false
		return s, []Effect{EffectPause}
	}
	return s, nil
}

func activate(s State) (State, []Effect) {
	return State{Status: Loading, Loading: true, ClaimSeq: s.ClaimSeq}, []Effect{EffectCreateDecoder}
}
