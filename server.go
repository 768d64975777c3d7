package main

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/clip"
	"github.com/moafunk/player/internal/config"
	"github.com/moafunk/player/internal/meter"
	"github.com/moafunk/player/internal/playback"
	"github.com/moafunk/player/internal/server"
	"github.com/moafunk/player/internal/telemetry"
	"github.com/moafunk/player/internal/types"
	"github.com/moafunk/player/internal/util"
)

var loginTmpl = template.Must(template.New("login").Parse(loginHTML))
var indexTmpl = template.Must(template.New("index").Parse(indexHTML))
var faviconTmpl = template.Must(template.New("favicon").Parse(faviconSVG))

type pageData struct {
	Error       bool
	CSRFToken   string
	Version     string
	Year        int
	StationName string
	PrimaryCSS  template.CSS
	MeterWidth  int
	MeterHeight int
}

// Services are the running player components the web surface exposes.
type Services struct {
	Audio      *audio.Context
	Controller *playback.Controller
	Session    *playback.Session
	Meter      *meter.Engine
	Clips      *clip.Page
	Metrics    *telemetry.Metrics
	EventPath  string
}

// Server is the HTTP server for the player's control surface.
type Server struct {
	config   *config.Config
	svc      Services
	sessions *server.SessionManager
	commands *server.CommandHandler
	version  *VersionChecker
}

// NewServer returns a server over the running services.
func NewServer(cfg *config.Config, svc Services, version *VersionChecker) *Server {
	return &Server{
		config:   cfg,
		svc:      svc,
		sessions: server.NewSessionManager(),
		commands: server.NewCommandHandler(cfg, svc.Controller, svc.Clips, svc.Meter.SetSilenceConfig),
		version:  version,
	}
}

// handleWebSocket runs one control connection: commands in, status and
// meter levels out.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	client, err := server.Upgrade(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	statusUpdate := make(chan struct{}, 1)
	trigger := func() {
		select {
		case statusUpdate <- struct{}{}:
		default:
		}
	}
	go client.ReadCommands(func(cmd server.WSCommand) {
		s.commands.Handle(cmd, client.Send(), trigger)
	})

	s.runWebSocketEventLoop(client.Send(), client.Done(), statusUpdate)
}

// runWebSocketEventLoop pushes levels and status until the reader stops,
// then closes send.
func (s *Server) runWebSocketEventLoop(send chan<- any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(100 * time.Millisecond) // 10 fps
	statusTicker := time.NewTicker(3 * time.Second)
	defer levelsTicker.Stop()
	defer statusTicker.Stop()
	defer close(send)

	push := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !push(s.buildWSStatus()) {
		return
	}
	for {
		var msg any
		select {
		case <-done:
			return
		case <-statusUpdate:
			msg = s.buildWSStatus()
		case <-statusTicker.C:
			msg = s.buildWSStatus()
		case <-levelsTicker.C:
			msg = types.WSLevelsResponse{Type: "levels", Levels: s.levels()}
		}
		if !push(msg) {
			return
		}
	}
}

func (s *Server) levels() types.MeterLevels {
	f := s.svc.Meter.Frame()
	return types.MeterLevels{
		Level:             f.Level,
		Lit:               f.Lit,
		Silence:           f.Silence,
		SilenceDurationMs: f.SilenceDurationMs,
	}
}

func (s *Server) streamStatus() types.StreamStatus {
	sess := s.svc.Session
	res, settled := sess.Result()
	return types.StreamStatus{
		Live:       res.Live,
		Checked:    settled,
		Status:     res.Status,
		Backend:    string(sess.Backend),
		Platform:   sess.Platform,
		URL:        sess.URL,
		State:      string(s.svc.Controller.State()),
		Control:    string(s.svc.Controller.Visual()),
		NowPlaying: sess.NowPlaying(),
		Context:    string(s.svc.Audio.State()),
	}
}

func (s *Server) clipStatuses() []types.ClipStatus {
	views := s.svc.Clips.Views()
	out := make([]types.ClipStatus, len(views))
	for i, v := range views {
		out[i] = types.ClipStatus{
			ID:          v.Key,
			Title:       v.Title,
			Src:         v.Src,
			State:       string(v.Status),
			IsLoading:   v.IsLoading,
			IsPlaying:   v.IsPlaying,
			CurrentTime: v.CurrentTime,
			Duration:    v.Duration,
			Error:       v.Err,
		}
	}
	return out
}

func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()
	return types.WSStatusResponse{
		Type:   "status",
		Stream: s.streamStatus(),
		Clips:  s.clipStatuses(),
		Settings: types.WSSettings{
			StationName: cfg.StationName,
			Platform:    s.svc.Session.Platform,
			MeterWidth:  cfg.MeterWidth,
			MeterHeight: cfg.MeterHeight,
		},
		Version: s.version.Info(),
	}
}

// SetupRoutes returns the application's [http.Handler].
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.AuthMiddleware()

	// Public
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/style.css", s.handlePublicStatic)
	mux.HandleFunc("/favicon.svg", s.handleFavicon)
	mux.HandleFunc("GET /meter.png", s.handleMeterPNG)
	mux.Handle("GET /metrics", s.svc.Metrics.Handler())

	// JSON API
	mux.HandleFunc("GET /api/stream/status", s.apiAuth(s.handleStreamStatus))
	mux.HandleFunc("GET /api/stream/session", s.apiAuth(s.handleStreamSession))
	mux.HandleFunc("GET /api/clips", s.apiAuth(s.handleListClips))
	mux.HandleFunc("POST /api/clips/{id}/toggle", s.apiAuth(s.handleToggleClip))
	mux.HandleFunc("POST /api/player/toggle", s.apiAuth(s.handleTogglePlayer))
	mux.HandleFunc("GET /api/events", s.apiAuth(s.handleEvents))

	// Protected
	mux.HandleFunc("/ws", auth(s.handleWebSocket))
	mux.HandleFunc("/", auth(s.handleStatic))

	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePublicStatic(w http.ResponseWriter, r *http.Request) {
	if !serveStaticFile(w, r.URL.Path) {
		http.NotFound(w, r)
	}
}

// handleFavicon serves the favicon in the station colour.
func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := faviconTmpl.Execute(w, struct{ Color string }{Color: cfg.StationColorLight}); err != nil {
		slog.Error("failed to render favicon", "error", err)
	}
}

func serveStaticFile(w http.ResponseWriter, path string) bool {
	file, ok := staticFiles[path]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", file.contentType)
	if _, err := w.Write([]byte(file.content)); err != nil {
		slog.Error("failed to write static file", "file", file.name, "error", err)
	}
	return true
}

func (s *Server) pageData() pageData {
	cfg := s.config.Snapshot()
	return pageData{
		Version:     Version,
		Year:        time.Now().Year(),
		StationName: cfg.StationName,
		PrimaryCSS:  template.CSS(util.GenerateBrandCSS(cfg.StationColorLight, cfg.StationColorDark, cfg.MeterAccent)),
		MeterWidth:  cfg.MeterWidth,
		MeterHeight: cfg.MeterHeight,
	}
}

// handleLogin shows the login form and checks submitted credentials.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Authenticated(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	data := s.pageData()
	data.CSRFToken = s.sessions.CreateCSRFToken()

	if r.Method == http.MethodPost {
		if !s.sessions.ValidateCSRFToken(r.FormValue("csrf_token")) {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		cfg := s.config.Snapshot()
		if s.sessions.Login(w, r, r.FormValue("username"), r.FormValue("password"), cfg.WebUser, cfg.WebPassword) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		slog.Warn("failed login attempt", "remote", r.RemoteAddr)
		data.Error = true
	}

	w.Header().Set("Content-Type", "text/html")
	if err := loginTmpl.Execute(w, data); err != nil {
		slog.Error("failed to render login page", "error", err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

type staticFile struct {
	contentType string
	content     string
	name        string
}

var staticFiles = map[string]staticFile{
	"/style.css": {
		contentType: "text/css",
		content:     styleCSS,
		name:        "style.css",
	},
	"/app.js": {
		contentType: "application/javascript",
		content:     appJS,
		name:        "app.js",
	},
}

// handleStatic serves the console page and its assets.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" || path == "/index.html" {
		w.Header().Set("Content-Type", "text/html")
		if err := indexTmpl.Execute(w, s.pageData()); err != nil {
			slog.Error("failed to write index.html", "error", err)
		}
		return
	}
	if !serveStaticFile(w, path) {
		http.NotFound(w, r)
	}
}

// Start begins serving in the background and returns the server for
// graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}
