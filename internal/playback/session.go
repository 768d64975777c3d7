package playback

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/moafunk/player/internal/backend"
	"github.com/moafunk/player/internal/eventlog"
	"github.com/moafunk/player/internal/media"
	"github.com/moafunk/player/internal/probe"
	"github.com/moafunk/player/internal/util"
)

// SessionConfig describes the live stream.
type SessionConfig struct {
	URLs     backend.URLs
	Codec    string // codec of the raw stream
	Platform string
	Client   *http.Client
	Events   *eventlog.Logger
}

// Session is the live stream for the lifetime of the process. The probe and
// the backend decision run independently: the decision is made immediately,
// the probe settles in the background.
type Session struct {
	Backend  backend.Kind
	Platform string
	URL      string

	controller *Controller
	demuxer    *media.Demuxer
	settled    chan struct{}

	mu     sync.Mutex
	result probe.Result
}

// NewSession starts the availability check, configures el for the platform
// and returns without waiting for the check.
func NewSession(ctx context.Context, p *probe.Probe, el *media.Element, c *Controller, cfg SessionConfig) *Session {
	s := &Session{
		Platform:   cfg.Platform,
		controller: c,
		settled:    make(chan struct{}),
		result:     probe.Result{Status: probe.StatusChecking},
	}

	go func() {
		defer close(s.settled)
		defer util.Recover("stream probe")
		res := p.Check(ctx)
		s.mu.Lock()
		s.result = res
		s.mu.Unlock()
		c.SetLive(res.Live)
	}()

	s.Backend = backend.Decide(cfg.Platform, media.DemuxSupport{Codec: cfg.Codec})
	factory := func(raw string) *media.Demuxer {
		return media.NewDemuxer(cfg.Client, raw, cfg.Codec)
	}
	url, d, err := backend.Apply(s.Backend, el, cfg.URLs, factory)
	if err != nil {
		slog.Error("failed to set up live stream", "backend", s.Backend, "error", err)
	}
	s.URL = url
	s.demuxer = d
	el.OnError(func(error) { c.Stopped() })
	el.OnEnded(c.Stopped)

	slog.Info("playback backend selected", "backend", s.Backend, "platform", cfg.Platform, "url", url)
	if err := cfg.Events.LogBackend(string(s.Backend), cfg.Platform, url); err != nil {
		slog.Warn("failed to log backend", "error", err)
	}
	return s
}

// Result returns the probe result and whether the probe has settled.
func (s *Session) Result() (probe.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.settled:
		return s.result, true
	default:
		return s.result, false
	}
}

// Settled is closed once the probe has finished.
func (s *Session) Settled() <-chan struct{} {
	return s.settled
}

// Live reports whether the stream was found live.
func (s *Session) Live() bool {
	return s.controller.Live()
}

// NowPlaying returns the stream title announced in the raw stream, if any.
func (s *Session) NowPlaying() string {
	if s.demuxer == nil {
		return ""
	}
	return s.demuxer.Title()
}
