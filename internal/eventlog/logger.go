// Package eventlog provides event logging for the player.
// It records stream events (probe results, backend selection, playback
// toggles), clip events and silence events in a single JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Stream event types.
const (
	ProbeResult     EventType = "probe_result"
	BackendSelected EventType = "backend_selected"
	PlaybackToggled EventType = "playback_toggled"
)

// Clip event types.
const (
	ClipClaimed EventType = "clip_claimed"
	ClipError   EventType = "clip_error"
)

// Silence event types.
const (
	SilenceStart EventType = "silence_start"
	SilenceEnd   EventType = "silence_end"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// StreamDetails contains live stream event details.
type StreamDetails struct {
	Live     bool   `json:"live"`
	Code     int    `json:"code,omitempty"`
	Backend  string `json:"backend,omitempty"`
	Platform string `json:"platform,omitempty"`
	URL      string `json:"url,omitempty"`
	Action   string `json:"action,omitempty"`
}

// ClipDetails contains clip event details.
type ClipDetails struct {
	ClipID string `json:"clip_id"`
	Src    string `json:"src,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SilenceDetails contains silence-specific event details.
type SilenceDetails struct {
	LevelDB     float64 `json:"level_db"`
	ThresholdDB float64 `json:"threshold_db"`
	DurationMs  int64   `json:"duration_ms,omitempty"`
}

// Logger writes events to a JSON lines file. A nil *Logger discards events.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogProbe logs the result of a stream availability check.
func (l *Logger) LogProbe(live bool, status string, code int) error {
	return l.Log(&Event{
		Type:    ProbeResult,
		Message: status,
		Details: &StreamDetails{Live: live, Code: code},
	})
}

// LogBackend logs the decode strategy chosen for this platform.
func (l *Logger) LogBackend(backend, platform, url string) error {
	return l.Log(&Event{
		Type:    BackendSelected,
		Details: &StreamDetails{Backend: backend, Platform: platform, URL: url},
	})
}

// LogToggle logs a play control press and what it did.
func (l *Logger) LogToggle(action string, live bool) error {
	return l.Log(&Event{
		Type:    PlaybackToggled,
		Details: &StreamDetails{Action: action, Live: live},
	})
}

// LogClip logs a clip event.
func (l *Logger) LogClip(eventType EventType, clipID, src string, seq uint64, errMsg string) error {
	return l.Log(&Event{
		Type:    eventType,
		Details: &ClipDetails{ClipID: clipID, Src: src, Seq: seq, Error: errMsg},
	})
}

// LogSilenceStart logs a silence start event.
func (l *Logger) LogSilenceStart(level, threshold float64) error {
	return l.Log(&Event{
		Type:    SilenceStart,
		Details: &SilenceDetails{LevelDB: level, ThresholdDB: threshold},
	})
}

// LogSilenceEnd logs a silence end event.
func (l *Logger) LogSilenceEnd(durationMs int64, level, threshold float64) error {
	return l.Log(&Event{
		Type:    SilenceEnd,
		Details: &SilenceDetails{LevelDB: level, ThresholdDB: threshold, DurationMs: durationMs},
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterStream  TypeFilter = "stream"
	FilterClip    TypeFilter = "clip"
	FilterSilence TypeFilter = "silence"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// Matches reports whether t passes the filter.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterStream:
		return IsStreamEvent(t)
	case FilterClip:
		return IsClipEvent(t)
	case FilterSilence:
		return IsSilenceEvent(t)
	}
	return true
}

// ReadLast reads events from the log file with pagination support.
// Events are returned newest first; n is capped at MaxReadLimit.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	hasMore := false
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !filter.Matches(event.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) == n {
			hasMore = true
			break
		}
		events = append(events, event)
	}

	return events, hasMore, nil
}

// IsStreamEvent returns true if the event type is a live stream event.
func IsStreamEvent(t EventType) bool {
	return t == ProbeResult || t == BackendSelected || t == PlaybackToggled
}

// IsClipEvent returns true if the event type is a clip event.
func IsClipEvent(t EventType) bool {
	return t == ClipClaimed || t == ClipError
}

// IsSilenceEvent returns true if the event type is a silence event.
func IsSilenceEvent(t EventType) bool {
	return t == SilenceStart || t == SilenceEnd
}
