package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/grafov/m3u8"
	"github.com/moafunk/player/internal/util"
)

// ErrNotPlaylist is returned when a manifest lacks the #EXTM3U header.
var ErrNotPlaylist = errors.New("not an m3u8 playlist")

// Segment is one media segment of a playlist.
type Segment struct {
	Seq      uint64
	URI      string
	Duration time.Duration
}

// Playlist is a parsed HLS playlist. A master playlist has Variants and no
// Segments.
type Playlist struct {
	Variants       []string
	Segments       []Segment
	MediaSequence  uint64
	TargetDuration time.Duration
	Ended          bool
}

// ParsePlaylist parses an m3u8 playlist. Relative URIs are resolved against base.
func ParsePlaylist(r io.Reader, base *url.URL) (*Playlist, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, util.WrapError("read playlist", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("#EXTM3U")) {
		return nil, ErrNotPlaylist
	}

	decoded, kind, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, util.WrapError("decode playlist", err)
	}

	p := &Playlist{}
	switch kind {
	case m3u8.MASTER:
		master := decoded.(*m3u8.MasterPlaylist)
		for _, v := range master.Variants {
			if v != nil && v.URI != "" {
				p.Variants = append(p.Variants, resolve(base, v.URI))
			}
		}

	case m3u8.MEDIA:
		mp := decoded.(*m3u8.MediaPlaylist)
		p.MediaSequence = mp.SeqNo
		p.TargetDuration = seconds(mp.TargetDuration)
		p.Ended = mp.Closed
		// Segments is a ring buffer; unused slots are nil.
		for _, seg := range mp.Segments {
			if seg == nil {
				continue
			}
			p.Segments = append(p.Segments, Segment{
				Seq:      seg.SeqId,
				URI:      resolve(base, seg.URI),
				Duration: seconds(seg.Duration),
			})
		}
	}
	return p, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// SegmentReader turns a live or finished HLS playlist into one continuous
// byte stream by polling the playlist and fetching new segments in order.
// Segments must carry a codec the decoder registry understands.
type SegmentReader struct {
	client      *http.Client
	manifestURL string
	codec       string
	minPoll     time.Duration
}

// NewSegmentReader creates a reader for the manifest at manifestURL.
func NewSegmentReader(client *http.Client, manifestURL, codec string) *SegmentReader {
	return &SegmentReader{
		client:      client,
		manifestURL: manifestURL,
		codec:       codec,
		minPoll:     time.Second,
	}
}

// Codec returns the segment codec.
func (r *SegmentReader) Codec() string { return r.codec }

// Open starts fetching segments. Reads block until the next segment arrives.
func (r *SegmentReader) Open(ctx context.Context) (io.ReadCloser, error) {
	pl, base, err := r.fetchMedia(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	go func() {
		defer util.Recover("segment reader")
		pw.CloseWithError(r.run(ctx, pl, base, pw))
	}()
	return &cancelReader{ReadCloser: pr, cancel: cancel}, nil
}

// fetchMedia fetches the manifest, following a master playlist to its first variant.
func (r *SegmentReader) fetchMedia(ctx context.Context) (*Playlist, string, error) {
	target := r.manifestURL
	for range 2 {
		pl, err := r.fetchPlaylist(ctx, target)
		if err != nil {
			return nil, "", err
		}
		if len(pl.Variants) == 0 {
			return pl, target, nil
		}
		target = pl.Variants[0]
	}
	return nil, "", fmt.Errorf("playlist %s: nested master playlists", r.manifestURL)
}

func (r *SegmentReader) fetchPlaylist(ctx context.Context, target string) (*Playlist, error) {
	base, err := url.Parse(target)
	if err != nil {
		return nil, util.WrapError("parse manifest url", err)
	}
	resp, err := get(ctx, r.client, target, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParsePlaylist(resp.Body, base)
}

func (r *SegmentReader) run(ctx context.Context, pl *Playlist, mediaURL string, w io.Writer) error {
	var (
		next    uint64
		started bool
	)
	for {
		for _, seg := range pl.Segments {
			if started && seg.Seq < next {
				continue
			}
			if err := r.copySegment(ctx, seg, w); err != nil {
				return err
			}
			next = seg.Seq + 1
			started = true
		}
		if pl.Ended {
			return io.EOF
		}

		wait := max(pl.TargetDuration/2, r.minPoll)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		fresh, err := r.fetchPlaylist(ctx, mediaURL)
		if err != nil {
			slog.Warn("playlist refresh failed", "url", mediaURL, "error", err)
			continue
		}
		pl = fresh
	}
}

func (r *SegmentReader) copySegment(ctx context.Context, seg Segment, w io.Writer) error {
	resp, err := get(ctx, r.client, seg.URI, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("segment %d: %w", seg.Seq, err)
	}
	return nil
}

type cancelReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReader) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}
