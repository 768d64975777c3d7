// Package types provides shared wire types used by the web surface and the
// player services.
package types

// StreamStatus is the live-broadcast part of a status message.
type StreamStatus struct {
	Live       bool   `json:"live"`                  // Probe reported the stream as live
	Checked    bool   `json:"checked"`               // Probe has settled
	Status     string `json:"status"`                // Human-readable availability text
	Backend    string `json:"backend"`               // Selected decode strategy
	Platform   string `json:"platform"`              // Platform identifier used for selection
	URL        string `json:"url,omitempty"`         // Source URL for the selected backend
	State      string `json:"state"`                 // Playback state (idle, playing, paused)
	Control    string `json:"control"`               // Visual state of the play control
	NowPlaying string `json:"now_playing,omitempty"` // ICY StreamTitle when demuxing
	Context    string `json:"context"`               // Audio context state
}

// ClipStatus is the projected state of one clip player.
type ClipStatus struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Src         string `json:"src"`
	State       string `json:"state"`
	IsLoading   bool   `json:"is_loading"`
	IsPlaying   bool   `json:"is_playing"`
	CurrentTime string `json:"current_time"` // m:ss
	Duration    string `json:"duration"`     // m:ss
	Error       string `json:"error,omitempty"`
}

// MeterLevels is one meter frame as sent to clients.
type MeterLevels struct {
	Level             float64 `json:"level"` // Normalized level 0..1
	Lit               int     `json:"lit"`   // Lit segments 0..6
	Silence           bool    `json:"silence,omitzero"`
	SilenceDurationMs int64   `json:"silence_duration_ms,omitzero"`
}

// WSStatusResponse is the periodic full status message.
type WSStatusResponse struct {
	Type     string       `json:"type"` // "status"
	Stream   StreamStatus `json:"stream"`
	Clips    []ClipStatus `json:"clips"`
	Settings WSSettings   `json:"settings"`
	Version  VersionInfo  `json:"version"`
}

// WSSettings contains the settings sub-object in status responses.
type WSSettings struct {
	StationName string `json:"station_name"`
	Platform    string `json:"platform"`
	MeterWidth  int    `json:"meter_width"`
	MeterHeight int    `json:"meter_height"`
}

// WSLevelsResponse is the high-rate meter message.
type WSLevelsResponse struct {
	Type   string      `json:"type"` // "levels"
	Levels MeterLevels `json:"levels"`
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
