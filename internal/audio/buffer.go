package audio

import (
	"context"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// bufferChunk is the number of frames decoded per fill.
const bufferChunk = 1024

// Buffer decouples a slow or network-backed decoder from the output. A
// goroutine decodes ahead into a bounded queue; Stream never blocks and plays
// silence on underrun.
type Buffer struct {
	chunks  chan [][2]float64
	exited  chan struct{}
	pending [][2]float64
	done    atomic.Bool
	err     atomic.Pointer[error]
	played  atomic.Int64
}

// NewBuffer starts decoding src into a queue holding up to depth chunks. The
// decode goroutine exits when src is drained or ctx is cancelled.
func NewBuffer(ctx context.Context, src beep.Streamer, depth int) *Buffer {
	b := &Buffer{
		chunks: make(chan [][2]float64, max(depth, 1)),
		exited: make(chan struct{}),
	}
	go b.fill(ctx, src)
	return b
}

func (b *Buffer) fill(ctx context.Context, src beep.Streamer) {
	defer close(b.exited)
	defer close(b.chunks)
	for {
		chunk := make([][2]float64, bufferChunk)
		n, ok := src.Stream(chunk)
		if n > 0 {
			select {
			case b.chunks <- chunk[:n]:
			case <-ctx.Done():
				return
			}
		}
		if !ok {
			if err := src.Err(); err != nil {
				b.err.Store(&err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Stream implements beep.Streamer.
func (b *Buffer) Stream(samples [][2]float64) (int, bool) {
	if b.done.Load() {
		return 0, false
	}
	filled := 0
	for filled < len(samples) {
		if len(b.pending) == 0 {
			select {
			case chunk, ok := <-b.chunks:
				if !ok {
					b.done.Store(true)
					b.played.Add(int64(filled))
					return filled, filled > 0
				}
				b.pending = chunk
			default:
				// Underrun: pad with silence and keep the stream alive.
				clear(samples[filled:])
				b.played.Add(int64(filled))
				return len(samples), true
			}
		}
		n := copy(samples[filled:], b.pending)
		b.pending = b.pending[n:]
		filled += n
	}
	b.played.Add(int64(filled))
	return filled, true
}

// Err returns the decoder error that ended the stream, if any.
func (b *Buffer) Err() error {
	if p := b.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Done is closed once the decode goroutine has stopped reading the source.
// Only then may the source be closed.
func (b *Buffer) Done() <-chan struct{} {
	return b.exited
}

// Played returns the number of decoded frames handed to the output.
func (b *Buffer) Played() int64 {
	return b.played.Load()
}

// Drained reports whether the source ended and all audio was played.
func (b *Buffer) Drained() bool {
	return b.done.Load()
}
