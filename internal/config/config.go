// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/moafunk/player/internal/types"
	"github.com/moafunk/player/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort           = 8080
	DefaultWebUsername       = "admin"
	DefaultWebPassword       = "moafunk"
	DefaultStationName       = "Moafunk"
	DefaultStationColorLight = "#FF5A1F"
	DefaultStationColorDark  = "#FF7A45"
	DefaultManifestURL       = "https://stream.moafunk.de/hls/stream.m3u8"
	DefaultRawURL            = "https://stream.moafunk.de/live/stream.mp3"
	DefaultCodec             = "mp3"
	DefaultProbeTimeoutMs    = 10000
	DefaultOutput            = "speaker"
	DefaultSampleRate        = 44100
	DefaultMeterWidth        = 180
	DefaultMeterHeight       = 30
	DefaultMeterFPS          = 60
	DefaultMeterFill         = "#D9D9D9"
	DefaultMeterStroke       = "#8C8C8C"
	DefaultMeterAccent       = "#FF5A1F"
	DefaultSilenceThreshold  = -50.0
	DefaultSilenceDurationMs = 15000
	DefaultSilenceRecoveryMs = 5000
	DefaultPresignTTLMinutes = 60
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

var (
	// Station name: printable characters only.
	stationNamePattern = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	hexColorPattern    = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// validate is the shared struct validator; field names in errors use JSON tags.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port     int    `json:"port" validate:"gte=1,lte=65535"` // HTTP server port
	Username string `json:"username" validate:"required"`    // Login username
	Password string `json:"password" validate:"required"`    // Login password
	Platform string `json:"platform"`                        // Platform identifier override (empty = detect)
}

// WebConfig holds station branding settings.
type WebConfig struct {
	StationName string `json:"station_name"` // Station display name
	ColorLight  string `json:"color_light"`  // Theme color for light mode (#RRGGBB)
	ColorDark   string `json:"color_dark"`   // Theme color for dark mode (#RRGGBB)
}

// StreamConfig holds the live broadcast endpoints.
type StreamConfig struct {
	ManifestURL    string `json:"manifest_url" validate:"required,url"`            // Segmented-streaming manifest, also the probe target
	RawURL         string `json:"raw_url" validate:"required,url"`                 // Continuous stream for demux-attach decoding
	Codec          string `json:"codec" validate:"oneof=mp3 ogg flac wav"`         // Codec of the raw stream
	SegmentCodec   string `json:"segment_codec" validate:"oneof=mp3 ogg flac wav"` // Codec carried in manifest segments
	ProbeTimeoutMs int64  `json:"probe_timeout_ms" validate:"gte=500,lte=60000"`   // Liveness check timeout
}

// AudioConfig selects the audio output.
type AudioConfig struct {
	Output     string `json:"output" validate:"oneof=speaker null"` // speaker or null (headless)
	SampleRate int    `json:"sample_rate" validate:"gte=8000,lte=192000"`
}

// MeterConfig holds level meter drawing settings.
type MeterConfig struct {
	Width       int    `json:"width" validate:"gte=24,lte=2000"` // Canvas width in pixels
	Height      int    `json:"height" validate:"gte=8,lte=500"`  // Canvas height in pixels
	FPS         int    `json:"fps" validate:"gte=1,lte=120"`     // Frames per second
	FillColor   string `json:"fill_color"`                       // Neutral fill (#RRGGBB)
	StrokeColor string `json:"stroke_color"`                     // Outline (#RRGGBB)
	AccentColor string `json:"accent_color"`                     // Highest segment fill (#RRGGBB)
}

// SilenceDetectionConfig holds dead-air thresholds and timing parameters.
type SilenceDetectionConfig struct {
	ThresholdDB float64 `json:"threshold_db"`                              // Silence threshold in dB of the meter level
	DurationMs  int64   `json:"duration_ms"`                               // Duration below threshold before silence is reported
	RecoveryMs  int64   `json:"recovery_ms"`                               // Duration above threshold before recovery
	WebhookURL  string  `json:"webhook_url" validate:"omitempty,http_url"` // Receives dead-air alerts (empty = disabled)
}

// Clip is one on-page clip. Exactly one of URL or Key is set.
type Clip struct {
	ID    string `json:"id" validate:"required,max=64"`
	Title string `json:"title" validate:"max=200"`
	URL   string `json:"url" validate:"omitempty,url"`
	Key   string `json:"key" validate:"max=1024"`
}

// S3Config holds object storage settings for clips stored by key.
type S3Config struct {
	Endpoint          string `json:"endpoint"`            // Custom endpoint (empty = AWS)
	Region            string `json:"region"`              // Region (default "auto")
	Bucket            string `json:"bucket"`              // Bucket holding clip objects
	AccessKeyID       string `json:"access_key_id"`       // Access key
	SecretAccessKey   string `json:"secret_access_key"`   // Secret key
	PresignTTLMinutes int    `json:"presign_ttl_minutes"` // Lifetime of presigned URLs
}

// IsConfigured reports whether the S3 settings are complete.
func (s *S3Config) IsConfigured() bool {
	return util.IsConfigured(s.Bucket, s.AccessKeyID, s.SecretAccessKey)
}

// ClipsConfig holds the clip list.
type ClipsConfig struct {
	Items []Clip   `json:"items" validate:"dive"`
	S3    S3Config `json:"s3"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `json:"level" validate:"oneof=debug info warn error"`
	Format    string `json:"format" validate:"oneof=text json"`
	EventPath string `json:"event_path"` // JSON lines event log (empty = disabled)
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System           SystemConfig           `json:"system"`
	Web              WebConfig              `json:"web"`
	Stream           StreamConfig           `json:"stream"`
	Audio            AudioConfig            `json:"audio"`
	Meter            MeterConfig            `json:"meter"`
	SilenceDetection SilenceDetectionConfig `json:"silence_detection"`
	Clips            ClipsConfig            `json:"clips"`
	Log              LogConfig              `json:"log"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{filePath: filePath}
	c.applyDefaults()
	return c
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	verr := types.NewValidationError()

	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				verr.Add(strings.TrimPrefix(fe.Namespace(), "Config."), "failed '"+fe.Tag()+"'", fe.Value())
			}
		} else {
			verr.Add("", err.Error(), nil)
		}
	}

	name := c.Web.StationName
	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		verr.Add("web.station_name", "must be 1-30 printable characters", name)
	}
	colors := map[string]string{
		"web.color_light":    c.Web.ColorLight,
		"web.color_dark":     c.Web.ColorDark,
		"meter.fill_color":   c.Meter.FillColor,
		"meter.stroke_color": c.Meter.StrokeColor,
		"meter.accent_color": c.Meter.AccentColor,
	}
	for _, field := range slices.Sorted(maps.Keys(colors)) {
		if !hexColorPattern.MatchString(colors[field]) {
			verr.Add(field, "must be hex format (#RRGGBB)", colors[field])
		}
	}

	seen := make(map[string]bool, len(c.Clips.Items))
	for _, clip := range c.Clips.Items {
		if seen[clip.ID] {
			verr.Add("clips.items.id", "must be unique", clip.ID)
		}
		seen[clip.ID] = true
		if (clip.URL == "") == (clip.Key == "") {
			verr.Add("clips.items", "exactly one of url or key is required", clip.ID)
		}
		if clip.URL != "" {
			if err := util.ValidateHTTPURL("clips.items.url", clip.URL); err != nil {
				verr.Add("clips.items.url", err.Error(), clip.URL)
			}
		}
		if clip.Key != "" && !c.Clips.S3.IsConfigured() {
			verr.Add("clips.s3", "is required for clips stored by key", clip.ID)
		}
	}

	if c.Clips.S3.Endpoint != "" {
		if err := util.ValidateHTTPURL("clips.s3.endpoint", c.Clips.S3.Endpoint); err != nil {
			verr.Add("clips.s3.endpoint", err.Error(), c.Clips.S3.Endpoint)
		}
	}

	if c.Log.EventPath != "" {
		if err := util.ValidatePath("log.event_path", c.Log.EventPath); err != nil {
			verr.Add("log.event_path", err.Error(), c.Log.EventPath)
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	c.System.Port = cmp.Or(c.System.Port, DefaultWebPort)
	c.System.Username = cmp.Or(c.System.Username, DefaultWebUsername)
	c.System.Password = cmp.Or(c.System.Password, DefaultWebPassword)

	c.Web.StationName = cmp.Or(c.Web.StationName, DefaultStationName)
	c.Web.ColorLight = cmp.Or(c.Web.ColorLight, DefaultStationColorLight)
	c.Web.ColorDark = cmp.Or(c.Web.ColorDark, DefaultStationColorDark)

	c.Stream.ManifestURL = cmp.Or(c.Stream.ManifestURL, DefaultManifestURL)
	c.Stream.RawURL = cmp.Or(c.Stream.RawURL, DefaultRawURL)
	c.Stream.Codec = cmp.Or(c.Stream.Codec, DefaultCodec)
	c.Stream.SegmentCodec = cmp.Or(c.Stream.SegmentCodec, c.Stream.Codec)
	c.Stream.ProbeTimeoutMs = cmp.Or(c.Stream.ProbeTimeoutMs, DefaultProbeTimeoutMs)

	c.Audio.Output = cmp.Or(c.Audio.Output, DefaultOutput)
	c.Audio.SampleRate = cmp.Or(c.Audio.SampleRate, DefaultSampleRate)

	c.Meter.Width = cmp.Or(c.Meter.Width, DefaultMeterWidth)
	c.Meter.Height = cmp.Or(c.Meter.Height, DefaultMeterHeight)
	c.Meter.FPS = cmp.Or(c.Meter.FPS, DefaultMeterFPS)
	c.Meter.FillColor = cmp.Or(c.Meter.FillColor, DefaultMeterFill)
	c.Meter.StrokeColor = cmp.Or(c.Meter.StrokeColor, DefaultMeterStroke)
	c.Meter.AccentColor = cmp.Or(c.Meter.AccentColor, DefaultMeterAccent)

	c.SilenceDetection.ThresholdDB = cmp.Or(c.SilenceDetection.ThresholdDB, DefaultSilenceThreshold)
	c.SilenceDetection.DurationMs = cmp.Or(c.SilenceDetection.DurationMs, DefaultSilenceDurationMs)
	c.SilenceDetection.RecoveryMs = cmp.Or(c.SilenceDetection.RecoveryMs, DefaultSilenceRecoveryMs)

	if c.Clips.Items == nil {
		c.Clips.Items = []Clip{}
	}
	c.Clips.S3.Region = cmp.Or(c.Clips.S3.Region, "auto")
	c.Clips.S3.PresignTTLMinutes = cmp.Or(c.Clips.S3.PresignTTLMinutes, DefaultPresignTTLMinutes)

	c.Log.Level = cmp.Or(c.Log.Level, DefaultLogLevel)
	c.Log.Format = cmp.Or(c.Log.Format, DefaultLogFormat)
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// UpdateSilence replaces the silence detection settings and saves the configuration.
func (c *Config) UpdateSilence(s SilenceDetectionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection = s
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	Platform    string

	// Web/Branding
	StationName       string
	StationColorLight string
	StationColorDark  string

	// Stream
	ManifestURL  string
	RawURL       string
	Codec        string
	SegmentCodec string
	ProbeTimeout int64

	// Audio
	Output     string
	SampleRate int

	// Meter
	MeterWidth  int
	MeterHeight int
	MeterFPS    int
	MeterFill   string
	MeterStroke string
	MeterAccent string

	// Silence Detection
	SilenceThreshold  float64
	SilenceDurationMs int64
	SilenceRecoveryMs int64
	SilenceWebhook    string

	// Clips
	Clips []Clip
	S3    S3Config

	// Logging
	LogLevel  string
	LogFormat string
	EventPath string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,
		Platform:    c.System.Platform,

		StationName:       c.Web.StationName,
		StationColorLight: c.Web.ColorLight,
		StationColorDark:  c.Web.ColorDark,

		ManifestURL:  c.Stream.ManifestURL,
		RawURL:       c.Stream.RawURL,
		Codec:        c.Stream.Codec,
		SegmentCodec: c.Stream.SegmentCodec,
		ProbeTimeout: c.Stream.ProbeTimeoutMs,

		Output:     c.Audio.Output,
		SampleRate: c.Audio.SampleRate,

		MeterWidth:  c.Meter.Width,
		MeterHeight: c.Meter.Height,
		MeterFPS:    c.Meter.FPS,
		MeterFill:   c.Meter.FillColor,
		MeterStroke: c.Meter.StrokeColor,
		MeterAccent: c.Meter.AccentColor,

		SilenceThreshold:  c.SilenceDetection.ThresholdDB,
		SilenceDurationMs: c.SilenceDetection.DurationMs,
		SilenceRecoveryMs: c.SilenceDetection.RecoveryMs,
		SilenceWebhook:    c.SilenceDetection.WebhookURL,

		Clips: slices.Clone(c.Clips.Items),
		S3:    c.Clips.S3,

		LogLevel:  c.Log.Level,
		LogFormat: c.Log.Format,
		EventPath: c.Log.EventPath,
	}
}
