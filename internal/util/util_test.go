package util

import (
	"image/color"
	"testing"
	"time"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-time.Second, "0:00"},
		{999 * time.Millisecond, "0:00"},
		{5 * time.Second, "0:05"},
		{65 * time.Second, "1:05"},
		{10*time.Minute + 9*time.Second, "10:09"},
		{75 * time.Minute, "75:00"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.in); got != tt.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{45000, "45s"},
		{154000, "2m 34s"},
		{4980000, "1h 23m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestParseColor(t *testing.T) {
	fallback := color.RGBA{A: 0xff}
	if got := ParseColor("#E6007E", fallback); got != (color.RGBA{R: 0xE6, G: 0x00, B: 0x7E, A: 0xff}) {
		t.Errorf("ParseColor(#E6007E) = %v", got)
	}
	if got := ParseColor("nope", fallback); got != fallback {
		t.Errorf("ParseColor(nope) = %v, want fallback", got)
	}
}

func TestValidateHTTPURL(t *testing.T) {
	if err := ValidateHTTPURL("u", "https://stream.example.org/live.m3u8"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"ftp://x/y", "/relative", "https://"} {
		if err := ValidateHTTPURL("u", bad); err == nil {
			t.Errorf("ValidateHTTPURL(%q) = nil, want error", bad)
		}
	}
}
