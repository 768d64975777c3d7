package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moafunk/player/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	snap := c.Snapshot()
	if snap.WebPort != DefaultWebPort {
		t.Errorf("WebPort = %d, want %d", snap.WebPort, DefaultWebPort)
	}
	if snap.SegmentCodec != DefaultCodec {
		t.Errorf("SegmentCodec = %q, want %q", snap.SegmentCodec, DefaultCodec)
	}
	if snap.MeterFPS != DefaultMeterFPS {
		t.Errorf("MeterFPS = %d, want %d", snap.MeterFPS, DefaultMeterFPS)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, `{"web":{"station_name":"Night Radio"},"stream":{"codec":"ogg"}}`)
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := c.Snapshot()
	if snap.StationName != "Night Radio" {
		t.Errorf("StationName = %q", snap.StationName)
	}
	if snap.Codec != "ogg" || snap.SegmentCodec != "ogg" {
		t.Errorf("codecs = %q/%q, want ogg/ogg", snap.Codec, snap.SegmentCodec)
	}
	if snap.ManifestURL != DefaultManifestURL {
		t.Errorf("ManifestURL = %q", snap.ManifestURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad codec", `{"stream":{"codec":"aac"}}`, "stream.codec"},
		{"bad url", `{"stream":{"manifest_url":"not a url"}}`, "stream.manifest_url"},
		{"bad color", `{"meter":{"accent_color":"red"}}`, "meter.accent_color"},
		{"bad output", `{"audio":{"output":"alsa"}}`, "audio.output"},
		{"clip without source", `{"clips":{"items":[{"id":"a"}]}}`, "clips.items"},
		{"clip with both sources", `{"clips":{"items":[{"id":"a","url":"https://x.test/a.mp3","key":"a.mp3","s3":{}}]}}`, "clips.items"},
		{"duplicate clip", `{"clips":{"items":[{"id":"a","url":"https://x.test/a.mp3"},{"id":"a","url":"https://x.test/b.mp3"}]}}`, "clips.items.id"},
		{"key without s3", `{"clips":{"items":[{"id":"a","key":"a.mp3"}]}}`, "clips.s3"},
		{"clip not http", `{"clips":{"items":[{"id":"a","url":"ftp://x.test/a.mp3"}]}}`, "clips.items.url"},
		{"bad s3 endpoint", `{"clips":{"s3":{"endpoint":"minio:9000"}}}`, "clips.s3.endpoint"},
		{"bad webhook", `{"silence_detection":{"webhook_url":"hooks"}}`, "silence_detection.webhook_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(writeConfig(t, tt.body))
			err := c.Load()
			var verr *types.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Load error = %v, want ValidationError", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if strings.HasPrefix(fe.Field, tt.field) {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for %s in %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestLoadAcceptsKeyedClipWithS3(t *testing.T) {
	body := `{"clips":{"items":[{"id":"a","key":"shows/a.mp3"}],"s3":{"bucket":"b","access_key_id":"k","secret_access_key":"s"}}}`
	c := New(writeConfig(t, body))
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := c.Snapshot()
	if len(snap.Clips) != 1 || snap.Clips[0].Key != "shows/a.mp3" {
		t.Fatalf("Clips = %+v", snap.Clips)
	}
	if snap.S3.Region != "auto" || snap.S3.PresignTTLMinutes != DefaultPresignTTLMinutes {
		t.Errorf("S3 defaults not applied: %+v", snap.S3)
	}
}

func TestSnapshotClipsAreCopied(t *testing.T) {
	c := New(writeConfig(t, `{"clips":{"items":[{"id":"a","url":"https://x.test/a.mp3"}]}}`))
	if err := c.Load(); err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	snap.Clips[0].ID = "changed"
	if got := c.Snapshot().Clips[0].ID; got != "a" {
		t.Errorf("snapshot mutation leaked: %q", got)
	}
}

func TestUpdateSilencePersists(t *testing.T) {
	path := writeConfig(t, `{}`)
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatal(err)
	}
	want := SilenceDetectionConfig{ThresholdDB: -42, DurationMs: 3000, RecoveryMs: 1000}
	if err := c.UpdateSilence(want); err != nil {
		t.Fatal(err)
	}
	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	snap := reloaded.Snapshot()
	if snap.SilenceThreshold != -42 || snap.SilenceDurationMs != 3000 || snap.SilenceRecoveryMs != 1000 {
		t.Errorf("reloaded silence = %v/%v/%v", snap.SilenceThreshold, snap.SilenceDurationMs, snap.SilenceRecoveryMs)
	}
}
