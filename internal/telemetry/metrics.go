// Package telemetry exposes player metrics in Prometheus format.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "player"

// Metrics holds the player's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	probeResults    *prometheus.CounterVec
	streamLive      prometheus.Gauge
	playbackToggles *prometheus.CounterVec
	meterLevel      prometheus.Gauge
	silence         prometheus.Gauge
	clipClaims      prometheus.Counter
	clipErrors      prometheus.Counter
	clipsPlaying    prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_probe_total",
			Help:      "Stream availability checks by result.",
		}, []string{"result"}),
		streamLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_live",
			Help:      "1 when the last availability check found the stream live.",
		}),
		playbackToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_toggles_total",
			Help:      "Play control presses by outcome.",
		}, []string{"outcome"}),
		meterLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "meter_level",
			Help:      "Current normalized meter level (0..1).",
		}),
		silence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "silence_active",
			Help:      "1 while dead air is detected on the live stream.",
		}),
		clipClaims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clip_claims_total",
			Help:      "Playback claims published by clip players.",
		}),
		clipErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clip_decoder_errors_total",
			Help:      "Clip decoder failures.",
		}),
		clipsPlaying: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clips_playing",
			Help:      "Clip players currently playing.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.probeResults,
		m.streamLive,
		m.playbackToggles,
		m.meterLevel,
		m.silence,
		m.clipClaims,
		m.clipErrors,
		m.clipsPlaying,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveProbe records one availability check.
func (m *Metrics) ObserveProbe(result string, live bool) {
	if m == nil {
		return
	}
	m.probeResults.WithLabelValues(result).Inc()
	m.streamLive.Set(boolToFloat(live))
}

// ObserveToggle records a play control press.
func (m *Metrics) ObserveToggle(outcome string) {
	if m == nil {
		return
	}
	m.playbackToggles.WithLabelValues(outcome).Inc()
}

// SetLevel records the current meter level.
func (m *Metrics) SetLevel(level float64) {
	if m == nil {
		return
	}
	m.meterLevel.Set(level)
}

// SetSilence records whether dead air is active.
func (m *Metrics) SetSilence(active bool) {
	if m == nil {
		return
	}
	m.silence.Set(boolToFloat(active))
}

// ClipClaimed counts a published playback claim.
func (m *Metrics) ClipClaimed() {
	if m == nil {
		return
	}
	m.clipClaims.Inc()
}

// ClipError counts a clip decoder failure.
func (m *Metrics) ClipError() {
	if m == nil {
		return
	}
	m.clipErrors.Inc()
}

// SetClipsPlaying records how many clips are playing.
func (m *Metrics) SetClipsPlaying(n int) {
	if m == nil {
		return
	}
	m.clipsPlaying.Set(float64(n))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
