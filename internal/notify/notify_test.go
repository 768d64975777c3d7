package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/config"
	"github.com/moafunk/player/internal/eventlog"
)

type recorder struct {
	mu       sync.Mutex
	payloads []WebhookPayload
}

func (r *recorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", req.Method)
		}
		if ct := req.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var p WebhookPayload
		if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		r.mu.Lock()
		r.payloads = append(r.payloads, p)
		r.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.payloads))
	for i, p := range r.payloads {
		out[i] = p.Event
	}
	return out
}

func newConfig(t *testing.T, webhook string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	body := fmt.Sprintf(`{"web":{"station_name":"Test FM"},"silence_detection":{"webhook_url":%q}}`, webhook)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestSilenceNotifierWebhook(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := NewSilenceNotifier(newConfig(t, srv.URL), nil, nil)

	n.HandleEvent(audio.SilenceEvent{JustEntered: true, InSilence: true, DurationMs: 15000, CurrentLevel: -70})
	n.Wait()
	// Repeated entry within one silence period does not resend.
	n.HandleEvent(audio.SilenceEvent{JustEntered: true, InSilence: true, DurationMs: 16000, CurrentLevel: -70})
	n.Wait()
	n.HandleEvent(audio.SilenceEvent{JustRecovered: true, TotalDurationMs: 20000, CurrentLevel: -12})
	n.Wait()

	got := rec.events()
	want := []string{EventSilenceDetected, EventSilenceRecovered}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	rec.mu.Lock()
	first, last := rec.payloads[0], rec.payloads[1]
	rec.mu.Unlock()
	if first.Station != "Test FM" {
		t.Errorf("Station = %q", first.Station)
	}
	if first.SilenceDurationMs != 15000 || first.LevelDB != -70 {
		t.Errorf("start payload = %+v", first)
	}
	if last.SilenceDurationMs != 20000 {
		t.Errorf("recovery duration = %d, want 20000", last.SilenceDurationMs)
	}
}

func TestSilenceNotifierRecoveryWithoutStart(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := NewSilenceNotifier(newConfig(t, srv.URL), nil, nil)
	n.HandleEvent(audio.SilenceEvent{JustRecovered: true, TotalDurationMs: 1000})
	n.Wait()

	if got := rec.events(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
}

func TestSilenceNotifierReset(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := NewSilenceNotifier(newConfig(t, srv.URL), nil, nil)
	n.HandleEvent(audio.SilenceEvent{JustEntered: true})
	n.Wait()
	n.Reset()
	n.HandleEvent(audio.SilenceEvent{JustRecovered: true})
	n.Wait()

	if got := rec.events(); len(got) != 1 {
		t.Errorf("events = %v, want only the start", got)
	}
}

func TestSilenceNotifierEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	events, err := eventlog.NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer events.Close()

	n := NewSilenceNotifier(newConfig(t, ""), events, nil)
	n.HandleEvent(audio.SilenceEvent{JustEntered: true, CurrentLevel: -65})
	n.HandleEvent(audio.SilenceEvent{JustRecovered: true, TotalDurationMs: 4000, CurrentLevel: -10})

	got, _, err := eventlog.ReadLast(path, 10, 0, eventlog.FilterSilence)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != eventlog.SilenceEnd || got[1].Type != eventlog.SilenceStart {
		t.Errorf("types = %s, %s", got[0].Type, got[1].Type)
	}
}

func TestSendWebhookStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := sendWebhook(srv.Client(), srv.URL, &WebhookPayload{Event: EventSilenceDetected})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}
