package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/moafunk/player/internal/backend"
	"github.com/moafunk/player/internal/clip"
	"github.com/moafunk/player/internal/eventlog"
	"github.com/moafunk/player/internal/playback"
)

// defaultEventLimit is the page size of /api/events when none is given.
const defaultEventLimit = 50

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// apiAuth requires a session cookie and answers 401 instead of redirecting.
func (s *Server) apiAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.Authenticated(r) {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// handleStreamStatus returns the live stream state.
// GET /api/stream/status
func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.streamStatus())
}

// streamSessionResponse tells a browser how to play the live stream.
type streamSessionResponse struct {
	Backend backend.Kind `json:"backend"`
	URL     string       `json:"url,omitempty"`
	Codec   string       `json:"codec,omitempty"`
}

// handleStreamSession picks the playback backend for the caller's
// User-Agent.
// GET /api/stream/session
func (s *Server) handleStreamSession(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()
	resp := streamSessionResponse{Backend: backend.ForUserAgent(r.UserAgent())}
	switch resp.Backend {
	case backend.NativeSegmented:
		resp.URL = cfg.ManifestURL
		resp.Codec = cfg.SegmentCodec
	case backend.DemuxAttach:
		resp.URL = cfg.RawURL
		resp.Codec = cfg.Codec
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleListClips returns every mounted clip.
// GET /api/clips
func (s *Server) handleListClips(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.clipStatuses())
}

// handleToggleClip toggles one clip.
// POST /api/clips/{id}/toggle
func (s *Server) handleToggleClip(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Clips.Get(r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, clip.ErrNotMounted) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err.Error())
		return
	}
	if err := p.Toggle(); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "toggling", "id": p.Key()})
}

// handleTogglePlayer toggles the live stream.
// POST /api/player/toggle
func (s *Server) handleTogglePlayer(w http.ResponseWriter, r *http.Request) {
	outcome := s.svc.Controller.Toggle()
	status := http.StatusOK
	if outcome == playback.OutcomeError {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, map[string]string{
		"outcome": string(outcome),
		"state":   string(s.svc.Controller.State()),
	})
}

// handleEvents pages through the event log, newest first.
// GET /api/events?type=stream|clip|silence&limit=N&offset=N
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.svc.EventPath == "" {
		s.writeError(w, http.StatusNotFound, "event log is disabled")
		return
	}

	q := r.URL.Query()
	filter := eventlog.TypeFilter(q.Get("type"))
	switch filter {
	case eventlog.FilterAll, eventlog.FilterStream, eventlog.FilterClip, eventlog.FilterSilence:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown event type filter")
		return
	}
	limit, err := queryInt(q.Get("limit"), defaultEventLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	events, more, err := eventlog.ReadLast(s.svc.EventPath, limit, offset, filter)
	if err != nil {
		slog.Error("failed to read event log", "path", s.svc.EventPath, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read event log")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events, "has_more": more})
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("not a non-negative integer")
	}
	return n, nil
}

// handleMeterPNG serves the current meter rendering.
// GET /meter.png
func (s *Server) handleMeterPNG(w http.ResponseWriter, r *http.Request) {
	png, err := s.svc.Meter.PNG()
	if err != nil {
		slog.Error("failed to encode meter", "error", err)
		http.Error(w, "meter unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(png); err != nil {
		slog.Debug("failed to write meter", "error", err)
	}
}
