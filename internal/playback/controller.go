// Package playback implements the play control of the live stream.
package playback

import (
	"log/slog"
	"sync"

	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/eventlog"
	"github.com/moafunk/player/internal/telemetry"
)

// State is the controller state.
type State string

// Controller states.
const (
	Idle    State = "idle"
	Playing State = "playing"
	Paused  State = "paused"
)

// Visual is what the play control shows.
type Visual string

// Control visuals.
const (
	VisualIdle    Visual = "idle"
	VisualPlaying Visual = "playing"
)

// Outcome describes what a toggle did.
type Outcome string

// Toggle outcomes.
const (
	OutcomePlay    Outcome = "play"
	OutcomePause   Outcome = "pause"
	OutcomeOffline Outcome = "offline" // stream not live, nothing started
	OutcomeError   Outcome = "error"
)

// Element is the media element driven by the controller.
type Element interface {
	audio.Routable
	Paused() bool
	Play() error
	Pause()
}

// Controller is the play/pause state machine for the live element.
type Controller struct {
	graph   *audio.Graph
	el      Element
	events  *eventlog.Logger
	metrics *telemetry.Metrics

	mu     sync.Mutex
	live   bool
	state  State
	visual Visual
}

// Option configures a Controller.
type Option func(*Controller)

// WithEventLog records toggles in the event log.
func WithEventLog(l *eventlog.Logger) Option {
	return func(c *Controller) { c.events = l }
}

// WithMetrics counts toggles.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates an idle controller and binds el into graph once.
func New(graph *audio.Graph, el Element, opts ...Option) *Controller {
	c := &Controller{
		graph:  graph,
		el:     el,
		state:  Idle,
		visual: VisualIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !graph.IsBound(el) {
		if err := graph.Bind(el); err != nil {
			slog.Error("failed to bind live element", "id", el.ID(), "error", err)
		}
	}
	return c
}

// SetLive records the probe result. Until it is called the stream counts
// as offline.
func (c *Controller) SetLive(live bool) {
	c.mu.Lock()
	c.live = live
	c.mu.Unlock()
}

// Live reports whether the stream was found live.
func (c *Controller) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Visual returns the play control visual.
func (c *Controller) Visual() Visual {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visual
}

// Toggle handles a press of the play control. A suspended audio context is
// resumed before anything else, within the same call.
func (c *Controller) Toggle() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	actx := c.graph.Context()
	if actx.State() == audio.StateSuspended {
		if err := actx.Resume(); err != nil {
			slog.Error("failed to resume audio context", "error", err)
		}
	}

	var outcome Outcome
	switch {
	case !c.el.Paused():
		c.el.Pause()
		c.state = Paused
		c.visual = VisualIdle
		outcome = OutcomePause
	case !c.live:
		outcome = OutcomeOffline
	default:
		if err := c.el.Play(); err != nil {
			slog.Error("failed to start live playback", "error", err)
			outcome = OutcomeError
			break
		}
		c.state = Playing
		c.visual = VisualPlaying
		outcome = OutcomePlay
	}

	slog.Info("play control toggled", "outcome", outcome, "live", c.live)
	c.metrics.ObserveToggle(string(outcome))
	if err := c.events.LogToggle(string(outcome), c.live); err != nil {
		slog.Warn("failed to log toggle", "error", err)
	}
	return outcome
}

// Stopped resets the visual after the element stopped on its own, on a
// decoder error or when the stream ended.
func (c *Controller) Stopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Playing {
		c.state = Paused
	}
	c.visual = VisualIdle
}
