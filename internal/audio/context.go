// Package audio provides the shared audio graph: an output context, a
// frequency analyser and the binding of media elements into it.
package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// DefaultSampleRate is the output rate used when none is configured.
const DefaultSampleRate = beep.SampleRate(44100)

// State is the lifecycle state of a Context.
type State string

// Context states.
const (
	StateSuspended State = "suspended"
	StateRunning   State = "running"
	StateClosed    State = "closed"
)

// Sentinel errors returned by the audio graph.
var (
	ErrClosed       = errors.New("audio context closed")
	ErrAlreadyBound = errors.New("element already bound to the audio graph")
)

// Sink is an audio output that pulls samples from a streamer once started.
type Sink interface {
	Start(sr beep.SampleRate, s beep.Streamer) error
	Close() error
}

// Context owns the audio output. It starts suspended and produces no sound
// until Resume is called from a user action.
type Context struct {
	mu    sync.Mutex
	state State
	sink  Sink
	rate  beep.SampleRate
	dest  *Mixer
}

// NewContext creates a suspended context that will play through sink.
func NewContext(sink Sink, rate beep.SampleRate) *Context {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Context{
		state: StateSuspended,
		sink:  sink,
		rate:  rate,
		dest:  NewMixer(),
	}
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SampleRate returns the output sample rate.
func (c *Context) SampleRate() beep.SampleRate {
	return c.rate
}

// Destination returns the mixer feeding the output.
func (c *Context) Destination() *Mixer {
	return c.dest
}

// Resume starts the output. It returns immediately once the sink is running
// and is a no-op on a running context.
func (c *Context) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRunning:
		return nil
	case StateClosed:
		return ErrClosed
	}
	if err := c.sink.Start(c.rate, c.dest); err != nil {
		return err
	}
	c.state = StateRunning
	return nil
}

// Lock blocks the output from pulling samples. Use it around changes to
// streamers that are currently playing.
func (c *Context) Lock() { c.dest.mu.Lock() }

// Unlock releases Lock.
func (c *Context) Unlock() { c.dest.mu.Unlock() }

// Close stops the output and releases the sink.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	c.dest.Clear()
	return c.sink.Close()
}

// NullSink consumes samples in real time without producing sound. It is used
// on headless hosts.
type NullSink struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// nullTick is how much audio the null sink pulls per wakeup.
const nullTick = 20 * time.Millisecond

// Start begins pulling from s on its own goroutine.
func (n *NullSink) Start(sr beep.SampleRate, s beep.Streamer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop != nil {
		return nil
	}
	n.stop = make(chan struct{})
	n.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		buf := make([][2]float64, sr.N(nullTick))
		ticker := time.NewTicker(nullTick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Stream(buf)
			}
		}
	}(n.stop, n.done)
	return nil
}

// Close stops the pulling goroutine.
func (n *NullSink) Close() error {
	n.mu.Lock()
	stop, done := n.stop, n.done
	n.stop = nil
	n.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}
