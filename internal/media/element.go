package media

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/util"
)

// ErrNoSource is returned by Play when the element has neither a src nor an
// attached source.
var ErrNoSource = errors.New("media element has no source")

// UserAgent is sent with every media request.
const UserAgent = "moafunk-player"

// bufferDepth is the number of decoded chunks held ahead of the output.
const bufferDepth = 64

// Source opens the byte stream an element decodes.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Codec() string
}

// ElementOptions configures an Element.
type ElementOptions struct {
	Client       *http.Client
	SegmentCodec string // codec of segments referenced by .m3u8 sources
}

// Element is a headless media element. Output is routed into the audio
// context's destination, optionally through a Router set by the audio graph.
type Element struct {
	id   string
	actx *audio.Context
	opts ElementOptions

	mu       sync.Mutex
	src      string
	source   Source
	attached Source
	attrs    map[string]string
	style    map[string]string
	router   audio.Router
	paused   bool
	sess     *elementSession
	onError  func(error)
	onEnded  func()
}

type elementSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	ctrl   *beep.Ctrl
	out    beep.Streamer
}

// NewElement creates a paused element without a source.
func NewElement(id string, actx *audio.Context, opts ElementOptions) *Element {
	opts.Client = cmp.Or(opts.Client, http.DefaultClient)
	return &Element{
		id:     id,
		actx:   actx,
		opts:   opts,
		attrs:  make(map[string]string),
		style:  make(map[string]string),
		paused: true,
	}
}

// ID returns the element's stable identity.
func (e *Element) ID() string { return e.id }

// Route sets the router applied to the element's output. It takes effect
// from the next load.
func (e *Element) Route(r audio.Router) {
	e.mu.Lock()
	e.router = r
	e.mu.Unlock()
}

// OnError registers a callback for load and decode failures.
func (e *Element) OnError(fn func(error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

// OnEnded registers a callback for when the source ends without an error,
// such as a live stream whose server closed the connection.
func (e *Element) OnEnded(fn func()) {
	e.mu.Lock()
	e.onEnded = fn
	e.mu.Unlock()
}

// SetSrc sets the source URL, stopping any current playback. Manifest URLs
// (.m3u8) are read as segmented streams.
func (e *Element) SetSrc(src string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.src = src
	e.paused = true
	e.source = nil
	if src == "" {
		return
	}
	if isManifest(src) {
		e.source = NewSegmentReader(e.opts.Client, src, e.opts.SegmentCodec)
		return
	}
	e.source = &httpSource{client: e.opts.Client, url: src, codec: CodecFromPath(src)}
}

// Src returns the source URL, which is empty when a demuxer is attached.
func (e *Element) Src() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

// AttachSource hands the element a source without setting src. A nil source
// detaches.
func (e *Element) AttachSource(s Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.paused = true
	e.attached = s
}

// HasSource reports whether Play has something to load.
func (e *Element) HasSource() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentSourceLocked() != nil
}

func (e *Element) currentSourceLocked() Source {
	if e.attached != nil {
		return e.attached
	}
	return e.source
}

// SetAttribute sets an element attribute.
func (e *Element) SetAttribute(name, value string) {
	e.mu.Lock()
	e.attrs[name] = value
	e.mu.Unlock()
}

// Attribute returns an attribute value.
func (e *Element) Attribute(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok
}

// SetStyle sets one style property.
func (e *Element) SetStyle(prop, value string) {
	e.mu.Lock()
	e.style[prop] = value
	e.mu.Unlock()
}

// Style returns the style declaration, properties sorted by name.
func (e *Element) Style() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	parts := make([]string, 0, len(e.style))
	for _, k := range slices.Sorted(maps.Keys(e.style)) {
		parts = append(parts, k+": "+e.style[k])
	}
	return strings.Join(parts, "; ")
}

// Paused reports whether the element is paused.
func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Play starts or resumes playback. Loading happens in the background; the
// element reports itself as not paused immediately.
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src := e.currentSourceLocked()
	if src == nil {
		return ErrNoSource
	}
	e.paused = false

	if e.sess != nil {
		if e.sess.ctrl != nil {
			e.setCtrlPausedLocked(false)
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &elementSession{ctx: ctx, cancel: cancel}
	e.sess = sess
	go e.load(sess, src, e.router)
	return nil
}

// Pause pauses playback. The stream stays open and resumes where it stopped.
func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	if e.sess != nil && e.sess.ctrl != nil {
		e.setCtrlPausedLocked(true)
	}
}

func (e *Element) setCtrlPausedLocked(paused bool) {
	e.actx.Lock()
	e.sess.ctrl.Paused = paused
	e.actx.Unlock()
}

// Close stops playback and releases the stream.
func (e *Element) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.paused = true
}

func (e *Element) stopLocked() {
	if e.sess == nil {
		return
	}
	e.sess.cancel()
	if e.sess.out != nil {
		e.actx.Destination().Remove(e.sess.out)
	}
	e.sess = nil
}

func (e *Element) load(sess *elementSession, src Source, router audio.Router) {
	defer util.Recover("media element " + e.id)

	rc, err := src.Open(sess.ctx)
	if err != nil {
		e.fail(sess, err)
		return
	}
	stream, format, err := Decode(src.Codec(), rc)
	if err != nil {
		e.fail(sess, err)
		return
	}

	var s beep.Streamer = stream
	if rate := e.actx.SampleRate(); format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, s)
	}
	buf := audio.NewBuffer(sess.ctx, s, bufferDepth)
	ctrl := &beep.Ctrl{Streamer: buf}
	var out beep.Streamer = ctrl
	if router != nil {
		out = router(out)
	}

	e.mu.Lock()
	if e.sess != sess {
		e.mu.Unlock()
		sess.cancel()
		<-buf.Done()
		stream.Close()
		return
	}
	ctrl.Paused = e.paused
	sess.ctrl = ctrl
	sess.out = out
	e.actx.Destination().Add(out)
	e.mu.Unlock()

	slog.Debug("media element loaded", "id", e.id, "codec", src.Codec(), "sample_rate", format.SampleRate)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sess.ctx.Done():
			<-buf.Done()
			stream.Close()
			return
		case <-ticker.C:
			if !buf.Drained() {
				continue
			}
			<-buf.Done()
			stream.Close()
			if err := buf.Err(); err != nil {
				e.fail(sess, err)
				return
			}
			e.mu.Lock()
			if e.sess != sess {
				e.mu.Unlock()
				return
			}
			e.stopLocked()
			e.paused = true
			onEnded := e.onEnded
			e.mu.Unlock()

			slog.Info("media element ended", "id", e.id)
			if onEnded != nil {
				onEnded()
			}
			return
		}
	}
}

func (e *Element) fail(sess *elementSession, err error) {
	e.mu.Lock()
	if e.sess != sess {
		e.mu.Unlock()
		return
	}
	e.stopLocked()
	e.paused = true
	onError := e.onError
	e.mu.Unlock()

	slog.Error("media element failed", "id", e.id, "error", err)
	if onError != nil {
		onError(err)
	}
}

func isManifest(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

// httpSource is a progressive HTTP download.
type httpSource struct {
	client *http.Client
	url    string
	codec  string
}

func (h *httpSource) Codec() string { return h.codec }

func (h *httpSource) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := get(ctx, h.client, h.url, nil)
	if err != nil {
		return nil, err
	}
	if h.codec == "" {
		h.codec = CodecFromContentType(resp.Header.Get("Content-Type"))
	}
	return resp.Body, nil
}

// get issues a GET and returns the response when it is 200 OK.
func get(ctx context.Context, client *http.Client, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, util.WrapError("create request", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}
	return resp, nil
}
