// Package backend selects how the live stream is decoded on this platform.
package backend

import (
	"log/slog"
	"runtime"
	"strings"

	"github.com/moafunk/player/internal/media"
)

// Kind is a decode strategy.
type Kind string

// Decode strategies.
const (
	// NativeSegmented hands the manifest URL straight to the element.
	NativeSegmented Kind = "native_segmented"
	// DemuxAttach demuxes the raw stream and attaches it to the element.
	DemuxAttach Kind = "demux_attach"
	// Unsupported means nothing on this platform can play the stream.
	Unsupported Kind = "unsupported"
)

// Capability reports whether the demuxing decoder works here.
type Capability interface {
	Supported() bool
}

var appleMobileTokens = []string{"iPhone", "iPod", "iPad"}

// IsAppleMobile reports whether platformID names an iPhone, iPod or iPad.
func IsAppleMobile(platformID string) bool {
	for _, tok := range appleMobileTokens {
		if strings.Contains(platformID, tok) {
			return true
		}
	}
	return false
}

// Decide picks the strategy for platformID. Apple mobile devices always get
// NativeSegmented; otherwise DemuxAttach when demux is supported.
func Decide(platformID string, demux Capability) Kind {
	if IsAppleMobile(platformID) {
		return NativeSegmented
	}
	if demux != nil && demux.Supported() {
		return DemuxAttach
	}
	return Unsupported
}

// DetectPlatform returns override when set, otherwise a navigator-style
// platform string for the running OS.
func DetectPlatform(override string) string {
	if override != "" {
		return override
	}
	return platformFor(runtime.GOOS, runtime.GOARCH)
}

func platformFor(goos, goarch string) string {
	switch goos {
	case "ios":
		return "iPhone"
	case "darwin":
		return "MacIntel"
	case "windows":
		return "Win32"
	case "linux":
		return "Linux " + linuxArch(goarch)
	}
	return goos
}

func linuxArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	}
	return goarch
}

// ForUserAgent decides the strategy for a browser client. Browsers that are
// not Apple mobile are assumed to support demuxing.
func ForUserAgent(ua string) Kind {
	return Decide(ua, alwaysSupported{})
}

type alwaysSupported struct{}

func (alwaysSupported) Supported() bool { return true }

// URLs are the live stream endpoints.
type URLs struct {
	Manifest string // segmented-streaming manifest
	Raw      string // continuous stream for demuxing
}

// DemuxerFactory builds a demuxer for the raw stream.
type DemuxerFactory func(rawURL string) *media.Demuxer

// Apply configures el for kind and returns the URL it will play, or "" for
// Unsupported. The demuxer, if one was created, is returned so its metadata
// can be read later.
func Apply(kind Kind, el *media.Element, urls URLs, newDemuxer DemuxerFactory) (string, *media.Demuxer, error) {
	switch kind {
	case NativeSegmented:
		el.SetSrc(urls.Manifest)
		el.SetAttribute("playsinline", "")
		el.SetAttribute("webkit-playsinline", "")
		// Shrunk rather than hidden so the element keeps decoding.
		el.SetStyle("width", "1px")
		el.SetStyle("height", "1px")
		el.SetStyle("opacity", "0.01")
		return urls.Manifest, nil, nil

	case DemuxAttach:
		d := newDemuxer(urls.Raw)
		d.AttachMedia(el)
		if err := d.Load(); err != nil {
			return "", nil, err
		}
		return urls.Raw, d, nil
	}

	slog.Warn("no playback backend for this platform; live player disabled")
	return "", nil, nil
}
