package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/clip"
	"github.com/moafunk/player/internal/config"
	"github.com/moafunk/player/internal/playback"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// LivePlayer is the live stream control.
type LivePlayer interface {
	Toggle() playback.Outcome
	State() playback.State
}

// ClipPlayers looks up mounted clip players by id.
type ClipPlayers interface {
	Get(key string) (*clip.Player, error)
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg       *config.Config
	live      LivePlayer
	clips     ClipPlayers
	onSilence func(audio.SilenceConfig)
}

// NewCommandHandler creates a new command handler. onSilence receives new
// dead-air thresholds after they have been saved; it may be nil.
func NewCommandHandler(cfg *config.Config, live LivePlayer, clips ClipPlayers, onSilence func(audio.SilenceConfig)) *CommandHandler {
	return &CommandHandler{
		cfg:       cfg,
		live:      live,
		clips:     clips,
		onSilence: onSilence,
	}
}

// Handle processes a WebSocket command. Commands are namespace/action
// strings such as "player/toggle" or "clips/activate".
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "player":
		h.handlePlayer(action, cmd, send)
	case "clips":
		h.handleClips(action, cmd, send)
	case "silence":
		h.handleSilence(action, cmd, send)
	case "status":
		if action != "get" {
			slog.Warn("unknown status action", "action", action)
		}
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

func (h *CommandHandler) handlePlayer(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "toggle":
		outcome := h.live.Toggle()
		if outcome == playback.OutcomeError {
			SendError(send, cmd.Type, errPlaybackFailed)
			return
		}
		SendSuccess(send, cmd.Type, map[string]string{
			"outcome": string(outcome),
			"state":   string(h.live.State()),
		})
	default:
		slog.Warn("unknown player action", "action", action)
	}
}

func (h *CommandHandler) handleClips(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "activate":
		HandleCommand(h, cmd, send, func(req *ClipRequest) error {
			p, err := h.clips.Get(req.ID)
			if err != nil {
				return err
			}
			return p.Activate()
		})
	case "toggle":
		HandleCommand(h, cmd, send, func(req *ClipRequest) error {
			p, err := h.clips.Get(req.ID)
			if err != nil {
				return err
			}
			return p.Toggle()
		})
	case "src":
		HandleCommand(h, cmd, send, func(req *ClipSrcRequest) error {
			p, err := h.clips.Get(req.ID)
			if err != nil {
				return err
			}
			slog.Info("clips/src: changing clip source", "clip", req.ID, "src", req.Src)
			return p.SetSrc(req.Src)
		})
	default:
		slog.Warn("unknown clips action", "action", action)
	}
}

func (h *CommandHandler) handleSilence(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		HandleCommand(h, cmd, send, func(req *SilenceUpdateRequest) error {
			snap := h.cfg.Snapshot()
			next := config.SilenceDetectionConfig{
				ThresholdDB: snap.SilenceThreshold,
				DurationMs:  snap.SilenceDurationMs,
				RecoveryMs:  snap.SilenceRecoveryMs,
				WebhookURL:  snap.SilenceWebhook,
			}
			if req.ThresholdDB != nil {
				next.ThresholdDB = *req.ThresholdDB
			}
			if req.DurationMs != nil {
				next.DurationMs = *req.DurationMs
			}
			if req.RecoveryMs != nil {
				next.RecoveryMs = *req.RecoveryMs
			}
			if err := h.cfg.UpdateSilence(next); err != nil {
				return err
			}
			slog.Info("silence/update: thresholds changed",
				"threshold_db", next.ThresholdDB, "duration_ms", next.DurationMs, "recovery_ms", next.RecoveryMs)
			if h.onSilence != nil {
				h.onSilence(audio.SilenceConfig{
					Threshold:  next.ThresholdDB,
					DurationMs: next.DurationMs,
					RecoveryMs: next.RecoveryMs,
				})
			}
			return nil
		})
	case "get":
		snap := h.cfg.Snapshot()
		SendSuccess(send, cmd.Type, map[string]any{
			"threshold_db": snap.SilenceThreshold,
			"duration_ms":  snap.SilenceDurationMs,
			"recovery_ms":  snap.SilenceRecoveryMs,
		})
	default:
		slog.Warn("unknown silence action", "action", action)
	}
}
