package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// ErrNotAttached is returned by Load before AttachMedia.
var ErrNotAttached = errors.New("demuxer not attached to an element")

// Demuxer reads a continuous Icecast/SHOUTcast stream, strips interleaved
// ICY metadata and hands the bare audio to an attached element.
type Demuxer struct {
	client *http.Client
	url    string
	codec  string

	mu     sync.Mutex
	el     *Element
	title  string
	loaded bool
}

// NewDemuxer creates a demuxer for the raw stream at rawURL.
func NewDemuxer(client *http.Client, rawURL, codec string) *Demuxer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Demuxer{client: client, url: rawURL, codec: codec}
}

// URL returns the raw stream URL.
func (d *Demuxer) URL() string { return d.url }

// Codec implements Source.
func (d *Demuxer) Codec() string { return d.codec }

// AttachMedia attaches the demuxer to el. The element's src is left untouched.
func (d *Demuxer) AttachMedia(el *Element) {
	d.mu.Lock()
	d.el = el
	d.mu.Unlock()
	el.AttachSource(d)
}

// Load prepares the attached element for playback. The connection is opened
// when playback starts, so a live stream never begins with stale audio.
func (d *Demuxer) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.el == nil {
		return ErrNotAttached
	}
	d.loaded = true
	slog.Info("demuxer loaded", "url", d.url, "codec", d.codec)
	return nil
}

// Loaded reports whether Load succeeded.
func (d *Demuxer) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// Destroy detaches the demuxer from its element and stops playback.
func (d *Demuxer) Destroy() {
	d.mu.Lock()
	el := d.el
	d.el = nil
	d.loaded = false
	d.mu.Unlock()
	if el != nil {
		el.AttachSource(nil)
	}
}

// Title returns the last StreamTitle announced by the server.
func (d *Demuxer) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

func (d *Demuxer) setTitle(title string) {
	d.mu.Lock()
	changed := d.title != title
	d.title = title
	d.mu.Unlock()
	if changed {
		slog.Info("now playing", "title", title)
	}
}

// Open implements Source.
func (d *Demuxer) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := get(ctx, d.client, d.url, http.Header{"Icy-Metadata": {"1"}})
	if err != nil {
		return nil, err
	}
	metaint, _ := strconv.Atoi(resp.Header.Get("Icy-Metaint"))
	if metaint <= 0 {
		return resp.Body, nil
	}
	return &icyReader{rc: resp.Body, metaint: metaint, remaining: metaint, onTitle: d.setTitle}, nil
}

// icyReader removes metadata blocks that follow every metaint audio bytes.
type icyReader struct {
	rc        io.ReadCloser
	metaint   int
	remaining int
	onTitle   func(string)
}

func (r *icyReader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		if err := r.readMeta(); err != nil {
			return 0, err
		}
		r.remaining = r.metaint
	}
	if len(p) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.rc.Read(p)
	r.remaining -= n
	return n, err
}

func (r *icyReader) readMeta() error {
	var lenByte [1]byte
	if _, err := io.ReadFull(r.rc, lenByte[:]); err != nil {
		return err
	}
	size := int(lenByte[0]) * 16
	if size == 0 {
		return nil
	}
	block := make([]byte, size)
	if _, err := io.ReadFull(r.rc, block); err != nil {
		return err
	}
	if title, ok := ParseStreamTitle(string(block)); ok {
		r.onTitle(title)
	}
	return nil
}

func (r *icyReader) Close() error {
	return r.rc.Close()
}

// ParseStreamTitle extracts StreamTitle from an ICY metadata block.
func ParseStreamTitle(meta string) (string, bool) {
	meta = strings.TrimRight(meta, "\x00")
	const key = "StreamTitle='"
	start := strings.Index(meta, key)
	if start < 0 {
		return "", false
	}
	rest := meta[start+len(key):]
	end := strings.Index(rest, "';")
	if end < 0 {
		end = strings.LastIndex(rest, "'")
	}
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
