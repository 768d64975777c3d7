// Package notify reports dead air on the live stream: the event log, the
// silence gauge and an optional webhook.
package notify

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/config"
	"github.com/moafunk/player/internal/eventlog"
	"github.com/moafunk/player/internal/telemetry"
	"github.com/moafunk/player/internal/util"
)

// SilenceNotifier turns meter silence events into notifications. A recovery
// webhook is only sent for a silence period whose start was sent.
type SilenceNotifier struct {
	cfg     *config.Config
	events  *eventlog.Logger
	metrics *telemetry.Metrics
	client  *http.Client

	mu          sync.Mutex
	webhookSent bool
	wg          sync.WaitGroup
}

// NewSilenceNotifier returns a notifier reading its settings from cfg.
func NewSilenceNotifier(cfg *config.Config, events *eventlog.Logger, metrics *telemetry.Metrics) *SilenceNotifier {
	return &SilenceNotifier{
		cfg:     cfg,
		events:  events,
		metrics: metrics,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// HandleEvent processes one silence transition.
func (n *SilenceNotifier) HandleEvent(ev audio.SilenceEvent) {
	cfg := n.cfg.Snapshot()
	switch {
	case ev.JustEntered:
		slog.Warn("silence detected on live stream", "level_db", ev.CurrentLevel, "after", util.FormatDuration(ev.DurationMs))
		n.metrics.SetSilence(true)
		if err := n.events.LogSilenceStart(ev.CurrentLevel, cfg.SilenceThreshold); err != nil {
			slog.Warn("failed to log silence start", "error", err)
		}
		n.startWebhook(cfg, ev)

	case ev.JustRecovered:
		slog.Info("live stream audio recovered", "level_db", ev.CurrentLevel, "silent_for", util.FormatDuration(ev.TotalDurationMs))
		n.metrics.SetSilence(false)
		if err := n.events.LogSilenceEnd(ev.TotalDurationMs, ev.CurrentLevel, cfg.SilenceThreshold); err != nil {
			slog.Warn("failed to log silence end", "error", err)
		}
		n.recoveryWebhook(cfg, ev)
	}
}

func (n *SilenceNotifier) startWebhook(cfg config.Snapshot, ev audio.SilenceEvent) {
	if cfg.SilenceWebhook == "" {
		return
	}
	n.mu.Lock()
	if n.webhookSent {
		n.mu.Unlock()
		return
	}
	n.webhookSent = true
	n.mu.Unlock()

	payload := &WebhookPayload{
		Event:             EventSilenceDetected,
		Station:           cfg.StationName,
		Stream:            cfg.RawURL,
		SilenceDurationMs: ev.DurationMs,
		LevelDB:           ev.CurrentLevel,
		Threshold:         cfg.SilenceThreshold,
		Timestamp:         timestampUTC(),
	}
	n.deliver(cfg.SilenceWebhook, payload)
}

func (n *SilenceNotifier) recoveryWebhook(cfg config.Snapshot, ev audio.SilenceEvent) {
	n.mu.Lock()
	sent := n.webhookSent
	n.webhookSent = false
	n.mu.Unlock()
	if !sent || cfg.SilenceWebhook == "" {
		return
	}

	payload := &WebhookPayload{
		Event:             EventSilenceRecovered,
		Station:           cfg.StationName,
		Stream:            cfg.RawURL,
		SilenceDurationMs: ev.TotalDurationMs,
		LevelDB:           ev.CurrentLevel,
		Threshold:         cfg.SilenceThreshold,
		Timestamp:         timestampUTC(),
	}
	n.deliver(cfg.SilenceWebhook, payload)
}

func (n *SilenceNotifier) deliver(url string, payload *WebhookPayload) {
	n.wg.Go(func() {
		defer util.Recover("silence webhook")
		if err := sendWebhook(n.client, url, payload); err != nil {
			slog.Error("notification failed", "type", payload.Event, "error", err)
			return
		}
		slog.Info("notification sent", "type", payload.Event)
	})
}

// Reset forgets an ongoing silence period, for when the live stream stops
// being monitored. No recovery is reported.
func (n *SilenceNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.mu.Unlock()
	n.metrics.SetSilence(false)
}

// Wait blocks until in-flight webhooks have finished.
func (n *SilenceNotifier) Wait() {
	n.wg.Wait()
}
