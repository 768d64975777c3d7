// Package probe checks whether the live broadcast is on air.
package probe

import (
	"cmp"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/moafunk/player/internal/eventlog"
	"github.com/moafunk/player/internal/telemetry"
)

// Status texts shown next to the play control.
const (
	StatusChecking    = "Checking stream…"
	StatusLive        = "Live now"
	StatusOffAir      = "Currently off air. Tune in for the next show."
	StatusUnavailable = "Stream status unavailable"
)

// DefaultTimeout bounds a check when the caller's context has no deadline.
const DefaultTimeout = 10 * time.Second

// UserAgent is sent with every check.
const UserAgent = "moafunk-player"

// Result is the outcome of one availability check.
type Result struct {
	Live   bool
	Status string
	Code   int // HTTP status, 0 on transport failure
}

// Probe issues HEAD requests against the stream manifest.
type Probe struct {
	client  *http.Client
	url     string
	timeout time.Duration
	events  *eventlog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Probe.
type Option func(*Probe)

// WithTimeout sets the per-check timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) { p.timeout = d }
}

// WithEventLog records every result in the event log.
func WithEventLog(l *eventlog.Logger) Option {
	return func(p *Probe) { p.events = l }
}

// WithMetrics counts every result.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Probe) { p.metrics = m }
}

// New creates a probe for url. A nil client uses http.DefaultClient.
func New(client *http.Client, url string, opts ...Option) *Probe {
	p := &Probe{
		client:  cmp.Or(client, http.DefaultClient),
		url:     url,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// URL returns the probed URL.
func (p *Probe) URL() string { return p.url }

// Check asks the server whether the manifest exists. It never returns an
// error: every failure is folded into an off-air result.
func (p *Probe) Check(ctx context.Context) Result {
	res, label := p.check(ctx)

	if res.Code == 0 {
		slog.Warn("stream probe failed", "url", p.url, "status", res.Status)
	} else {
		slog.Info("stream probe", "url", p.url, "code", res.Code, "live", res.Live)
	}
	p.metrics.ObserveProbe(label, res.Live)
	if err := p.events.LogProbe(res.Live, res.Status, res.Code); err != nil {
		slog.Warn("failed to log probe result", "error", err)
	}
	return res
}

func (p *Probe) check(ctx context.Context) (Result, string) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, http.NoBody)
	if err != nil {
		slog.Error("invalid probe url", "url", p.url, "error", err)
		return Result{Status: StatusUnavailable}, "error"
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Debug("probe request failed", "error", err)
		return Result{Status: StatusUnavailable}, "error"
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return Result{Live: true, Status: StatusLive, Code: resp.StatusCode}, "live"
	}
	return Result{Status: StatusOffAir, Code: resp.StatusCode}, "off_air"
}
