package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveProbe("live", true)
	m.ObserveToggle("play")
	m.SetLevel(0.5)
	m.SetSilence(true)
	m.ClipClaimed()
	m.ClipError()
	m.SetClipsPlaying(1)
}

func TestObserveProbe(t *testing.T) {
	m := New()
	m.ObserveProbe("live", true)
	m.ObserveProbe("off_air", false)
	m.ObserveProbe("off_air", false)

	if got := testutil.ToFloat64(m.probeResults.WithLabelValues("off_air")); got != 2 {
		t.Errorf("off_air = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.streamLive); got != 0 {
		t.Errorf("stream_live = %v, want 0", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ClipClaimed()
	m.SetClipsPlaying(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{"player_clip_claims_total 1", "player_clips_playing 1", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
