// Package media provides the player's media element: a source URL, an
// optional attached demuxer, and a decode pipeline into the audio context.
package media

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedCodec is returned when no decoder is registered for a codec.
var ErrUnsupportedCodec = errors.New("unsupported codec")

// DecodeFunc opens a decoder over rc. The returned streamer owns rc.
type DecodeFunc func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]DecodeFunc{
	"mp3":  mp3.Decode,
	"ogg":  vorbis.Decode,
	"wav":  owning(wav.Decode),
	"flac": owning(flac.Decode),
}

// owning adapts a reader-based decoder so closing the stream also closes rc.
func owning(dec func(io.Reader) (beep.StreamSeekCloser, beep.Format, error)) DecodeFunc {
	return func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		s, format, err := dec(rc)
		if err != nil {
			return nil, beep.Format{}, err
		}
		return &closeBoth{StreamSeekCloser: s, rc: rc}, format, nil
	}
}

type closeBoth struct {
	beep.StreamSeekCloser
	rc io.Closer
}

func (c *closeBoth) Close() error {
	return errors.Join(c.StreamSeekCloser.Close(), c.rc.Close())
}

// Decode opens a decoder for codec over rc. On error rc is closed.
func Decode(codec string, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	dec, ok := decoders[codec]
	if !ok {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedCodec, codec)
	}
	s, format, err := dec(rc)
	if err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", codec, err)
	}
	return s, format, nil
}

// Supported reports whether a decoder is registered for codec.
func Supported(codec string) bool {
	_, ok := decoders[codec]
	return ok
}

// CodecFromPath returns the codec implied by a file name or URL path, or ""
// when the extension is unknown.
func CodecFromPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".mp3":
		return "mp3"
	case ".ogg", ".oga":
		return "ogg"
	case ".wav", ".wave":
		return "wav"
	case ".flac":
		return "flac"
	}
	return ""
}

// CodecFromContentType returns the codec for a Content-Type header value, or "".
func CodecFromContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mt {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg", "application/ogg", "audio/vorbis":
		return "ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/flac", "audio/x-flac":
		return "flac"
	}
	return ""
}

// DemuxSupport reports whether the raw stream of a given codec can be
// demuxed and decoded in this build.
type DemuxSupport struct {
	Codec string
}

// Supported implements backend.Capability.
func (d DemuxSupport) Supported() bool {
	return Supported(d.Codec)
}
