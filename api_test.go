package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/backend"
	"github.com/moafunk/player/internal/clip"
	"github.com/moafunk/player/internal/config"
	"github.com/moafunk/player/internal/eventlog"
	"github.com/moafunk/player/internal/media"
	"github.com/moafunk/player/internal/meter"
	"github.com/moafunk/player/internal/playback"
	"github.com/moafunk/player/internal/probe"
	"github.com/moafunk/player/internal/telemetry"
	"github.com/moafunk/player/internal/types"
)

type nopDecoder struct{}

func (nopDecoder) Play() error { return nil }
func (nopDecoder) Pause()      {}
func (nopDecoder) Destroy()    {}

type testEnv struct {
	srv     *Server
	handler http.Handler
	cookie  *http.Cookie
}

func newTestEnv(t *testing.T, eventPath string) *testEnv {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}

	actx := audio.NewContext(&audio.NullSink{}, 0)
	t.Cleanup(func() { actx.Close() })
	graph := audio.NewGraph(actx)
	el := media.NewElement("live", actx, media.ElementOptions{Client: upstream.Client()})
	t.Cleanup(el.Close)
	controller := playback.New(graph, el)
	session := playback.NewSession(t.Context(), probe.New(upstream.Client(), upstream.URL+"/live.m3u8"), el, controller, playback.SessionConfig{
		URLs:     backend.URLs{Manifest: upstream.URL + "/live.m3u8", Raw: upstream.URL + "/live.mp3"},
		Codec:    "mp3",
		Platform: "Linux x86_64",
		Client:   upstream.Client(),
	})
	<-session.Settled()

	page := clip.NewPage(clip.PageOptions{
		NewDecoder: func(string, func(clip.Signal)) clip.Decoder { return nopDecoder{} },
	})
	t.Cleanup(page.Close)
	if _, err := page.Mount("intro", "https://cdn.test/intro.mp3", "Intro"); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(cfg, Services{
		Audio:      actx,
		Controller: controller,
		Session:    session,
		Meter:      meter.NewEngine(graph, meter.NewRasterCanvas(180, 30), meter.Options{}),
		Clips:      page,
		Metrics:    telemetry.New(),
		EventPath:  eventPath,
	}, NewVersionChecker())

	rec := httptest.NewRecorder()
	snap := cfg.Snapshot()
	if !srv.sessions.Login(rec, httptest.NewRequest(http.MethodPost, "/login", nil), snap.WebUser, snap.WebPassword, snap.WebUser, snap.WebPassword) {
		t.Fatal("login failed")
	}
	return &testEnv{srv: srv, handler: srv.SetupRoutes(), cookie: rec.Result().Cookies()[0]}
}

func (e *testEnv) do(method, path string, auth bool, header ...string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	if auth {
		r.AddCookie(e.cookie)
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func TestAPIRequiresSession(t *testing.T) {
	env := newTestEnv(t, "")
	if w := env.do(http.MethodGet, "/api/clips", false); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if w := env.do(http.MethodGet, "/", false); w.Code != http.StatusFound {
		t.Errorf("console status = %d, want redirect", w.Code)
	}
}

func TestAPIStreamStatus(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/api/stream/status", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got types.StreamStatus
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Live || !got.Checked || got.Status != probe.StatusLive {
		t.Errorf("stream = %+v", got)
	}
	if got.Backend != string(backend.DemuxAttach) || got.State != string(playback.Idle) {
		t.Errorf("stream = %+v", got)
	}
}

func TestAPIStreamSessionByUserAgent(t *testing.T) {
	env := newTestEnv(t, "")
	tests := map[string]backend.Kind{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)": backend.NativeSegmented,
		"Mozilla/5.0 (X11; Linux x86_64)":                        backend.DemuxAttach,
	}
	for ua, want := range tests {
		w := env.do(http.MethodGet, "/api/stream/session", true, "User-Agent", ua)
		var got streamSessionResponse
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.Backend != want {
			t.Errorf("%s: backend = %s, want %s", ua, got.Backend, want)
		}
		if want == backend.NativeSegmented && !strings.HasSuffix(got.URL, ".m3u8") {
			t.Errorf("%s: url = %s", ua, got.URL)
		}
	}
}

func TestAPIClips(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/api/clips", true)
	var clips []types.ClipStatus
	if err := json.NewDecoder(w.Body).Decode(&clips); err != nil {
		t.Fatal(err)
	}
	if len(clips) != 1 || clips[0].ID != "intro" || clips[0].State != string(clip.Uninitialized) {
		t.Errorf("clips = %+v", clips)
	}

	if w := env.do(http.MethodPost, "/api/clips/intro/toggle", true); w.Code != http.StatusAccepted {
		t.Errorf("toggle status = %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/clips/missing/toggle", true); w.Code != http.StatusNotFound {
		t.Errorf("missing clip status = %d", w.Code)
	}
}

func TestAPIEvents(t *testing.T) {
	if w := newTestEnv(t, "").do(http.MethodGet, "/api/events", true); w.Code != http.StatusNotFound {
		t.Errorf("disabled log status = %d", w.Code)
	}

	path := filepath.Join(t.TempDir(), "events.jsonl")
	logger, err := eventlog.NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	logger.LogToggle("play", true)
	logger.LogClip(eventlog.ClipClaimed, "intro", "https://cdn.test/intro.mp3", 1, "")
	logger.Close()

	env := newTestEnv(t, path)
	w := env.do(http.MethodGet, "/api/events?type=clip", true)
	var got struct {
		Events  []eventlog.Event `json:"events"`
		HasMore bool             `json:"has_more"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Events) != 1 || got.Events[0].Type != eventlog.ClipClaimed {
		t.Errorf("events = %+v", got.Events)
	}
	if w := env.do(http.MethodGet, "/api/events?type=bogus", true); w.Code != http.StatusBadRequest {
		t.Errorf("bogus filter status = %d", w.Code)
	}
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/meter.png", false)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("meter: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	w = env.do(http.MethodGet, "/metrics", false)
	if !strings.Contains(w.Body.String(), "player_stream_live") {
		t.Error("metrics missing player_stream_live")
	}
	w = env.do(http.MethodGet, "/login", false)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "csrf_token") {
		t.Errorf("login page: %d", w.Code)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing security headers")
	}
}
