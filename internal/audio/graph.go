package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Router wraps an element's decoded output before it reaches the destination.
type Router func(beep.Streamer) beep.Streamer

// Routable is a media element that can be bound into the graph.
type Routable interface {
	ID() string
	Route(Router)
}

// Graph is the single audio graph of the player: one context and one
// analyser, with each element bound at most once.
type Graph struct {
	ctx      *Context
	analyser *Analyser

	mu    sync.Mutex
	bound map[string]struct{}
	bins  []byte
}

// NewGraph creates the graph and its analyser eagerly.
func NewGraph(ctx *Context) *Graph {
	a := NewAnalyser(DefaultFFTSize)
	return &Graph{
		ctx:      ctx,
		analyser: a,
		bound:    make(map[string]struct{}),
		bins:     make([]byte, a.FrequencyBinCount()),
	}
}

// Context returns the audio context.
func (g *Graph) Context() *Context { return g.ctx }

// Analyser returns the analysis node.
func (g *Graph) Analyser() *Analyser { return g.analyser }

// Bind routes el's output through the analyser. Binding the same element
// twice returns ErrAlreadyBound and leaves the routing untouched; callers
// should check IsBound first.
func (g *Graph) Bind(el Routable) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.bound[el.ID()]; ok {
		return ErrAlreadyBound
	}
	g.bound[el.ID()] = struct{}{}
	el.Route(g.analyser.Tap)
	return nil
}

// IsBound reports whether el has been bound.
func (g *Graph) IsBound(el Routable) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.bound[el.ID()]
	return ok
}

// Level returns the mean analyser magnitude normalized to [0,1].
func (g *Graph) Level() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.analyser.ByteFrequencyData(g.bins)
	return MeanLevel(g.bins[:n])
}
