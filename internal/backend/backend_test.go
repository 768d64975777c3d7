package backend

import (
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/media"
)

type capability bool

func (c capability) Supported() bool { return bool(c) }

type nopSink struct{}

func (nopSink) Start(beep.SampleRate, beep.Streamer) error { return nil }
func (nopSink) Close() error                               { return nil }

func newElement() *media.Element {
	return media.NewElement("live", audio.NewContext(nopSink{}, 0), media.ElementOptions{})
}

func TestDecide(t *testing.T) {
	tests := []struct {
		platform string
		demux    bool
		want     Kind
	}{
		{"iPhone", true, NativeSegmented},
		{"iPhone", false, NativeSegmented},
		{"iPad", true, NativeSegmented},
		{"iPod touch", true, NativeSegmented},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", true, NativeSegmented},
		{"MacIntel", true, DemuxAttach},
		{"Linux x86_64", true, DemuxAttach},
		{"Win32", false, Unsupported},
		{"", false, Unsupported},
		{"iphone", true, DemuxAttach},
	}
	for _, tt := range tests {
		if got := Decide(tt.platform, capability(tt.demux)); got != tt.want {
			t.Errorf("Decide(%q, %v) = %s, want %s", tt.platform, tt.demux, got, tt.want)
		}
	}
}

func TestDecideAppleNeverDemux(t *testing.T) {
	for _, p := range []string{"iPhone", "iPod", "iPad", "xxiPadxx"} {
		if Decide(p, capability(true)) == DemuxAttach {
			t.Errorf("%q selected demux", p)
		}
	}
}

func TestDecideNilCapability(t *testing.T) {
	if got := Decide("Linux x86_64", nil); got != Unsupported {
		t.Errorf("Decide = %s", got)
	}
}

func TestPlatformFor(t *testing.T) {
	tests := map[[2]string]string{
		{"ios", "arm64"}:     "iPhone",
		{"darwin", "arm64"}:  "MacIntel",
		{"windows", "amd64"}: "Win32",
		{"linux", "amd64"}:   "Linux x86_64",
		{"linux", "arm64"}:   "Linux aarch64",
		{"freebsd", "amd64"}: "freebsd",
	}
	for in, want := range tests {
		if got := platformFor(in[0], in[1]); got != want {
			t.Errorf("platformFor(%v) = %q, want %q", in, got, want)
		}
	}
	if got := DetectPlatform("iPad"); got != "iPad" {
		t.Errorf("override ignored: %q", got)
	}
}

func TestForUserAgent(t *testing.T) {
	if ForUserAgent("Mozilla/5.0 (iPad; CPU OS 16_0)") != NativeSegmented {
		t.Error("iPad UA should use native segmented")
	}
	if ForUserAgent("Mozilla/5.0 (X11; Linux x86_64) Firefox/120.0") != DemuxAttach {
		t.Error("desktop UA should use demux")
	}
}

func TestApplyNativeSegmented(t *testing.T) {
	el := newElement()
	urls := URLs{Manifest: "https://stream.test/hls/stream.m3u8", Raw: "https://stream.test/live.mp3"}

	got, d, err := Apply(NativeSegmented, el, urls, nil)
	if err != nil || d != nil {
		t.Fatalf("Apply: %v %v", d, err)
	}
	if got != urls.Manifest || el.Src() != urls.Manifest {
		t.Errorf("src = %q, url = %q", el.Src(), got)
	}
	for _, attr := range []string{"playsinline", "webkit-playsinline"} {
		if _, ok := el.Attribute(attr); !ok {
			t.Errorf("missing %s", attr)
		}
	}
	if el.Style() != "height: 1px; opacity: 0.01; width: 1px" {
		t.Errorf("Style = %q", el.Style())
	}
}

func TestApplyDemuxAttach(t *testing.T) {
	el := newElement()
	urls := URLs{Manifest: "https://stream.test/hls/stream.m3u8", Raw: "https://stream.test/live.mp3"}
	factory := func(raw string) *media.Demuxer { return media.NewDemuxer(nil, raw, "mp3") }

	got, d, err := Apply(DemuxAttach, el, urls, factory)
	if err != nil {
		t.Fatal(err)
	}
	if got != urls.Raw || d == nil || !d.Loaded() {
		t.Fatalf("url = %q, demuxer = %v", got, d)
	}
	if el.Src() != "" {
		t.Errorf("manifest set as src: %q", el.Src())
	}
	if !el.HasSource() {
		t.Error("element has no source")
	}
}

func TestApplyUnsupported(t *testing.T) {
	el := newElement()
	got, d, err := Apply(Unsupported, el, URLs{Manifest: "m", Raw: "r"}, nil)
	if got != "" || d != nil || err != nil {
		t.Errorf("Apply = %q %v %v", got, d, err)
	}
	if el.HasSource() {
		t.Error("unsupported backend left a source")
	}
}
