package meter

import (
	"context"
	"sync"
	"time"

	"github.com/moafunk/player/internal/audio"
)

// DefaultFPS matches a display refresh rate.
const DefaultFPS = 60

// LevelSource provides the current normalized level.
type LevelSource interface {
	Level() float64
}

// Frame is one meter reading.
type Frame struct {
	Level             float64
	Lit               int
	Silence           bool
	SilenceDurationMs int64
}

// Options configures an Engine.
type Options struct {
	FPS       int
	Palette   Palette
	Silence   audio.SilenceConfig
	OnFrame   func(Frame)
	OnSilence func(audio.SilenceEvent)
	// Active gates silence detection; dead air only counts while it
	// returns true. Nil means always active.
	Active func() bool
	// OnSilenceReset runs when detection is switched off by Active.
	OnSilenceReset func()
}

// Engine samples the level source once per frame and redraws the meter.
type Engine struct {
	src    LevelSource
	canvas *RasterCanvas
	layout Layout
	opts   Options
	det    *audio.SilenceDetector

	mu      sync.Mutex
	frame   Frame
	silence audio.SilenceConfig
	running bool
	active  bool
}

// NewEngine creates an engine drawing into canvas.
func NewEngine(src LevelSource, canvas *RasterCanvas, opts Options) *Engine {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	b := canvas.Image().Bounds()
	e := &Engine{
		src:     src,
		canvas:  canvas,
		layout:  NewLayout(b.Dx(), b.Dy()),
		opts:    opts,
		det:     audio.NewSilenceDetector(),
		silence: opts.Silence,
	}
	Render(canvas, e.layout, 0, opts.Palette)
	return e
}

// Layout returns the meter geometry.
func (e *Engine) Layout() Layout { return e.layout }

// SetSilenceConfig replaces the dead-air thresholds.
func (e *Engine) SetSilenceConfig(cfg audio.SilenceConfig) {
	e.mu.Lock()
	e.silence = cfg
	e.mu.Unlock()
}

// Run draws frames until ctx is cancelled. Only one Run may be active.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	ticker := time.NewTicker(time.Second / time.Duration(e.opts.FPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

// Tick computes and draws one frame.
func (e *Engine) Tick(now time.Time) Frame {
	level := e.src.Level()

	active := e.opts.Active == nil || e.opts.Active()

	e.mu.Lock()
	var ev audio.SilenceEvent
	if active {
		ev = e.det.Update(audio.LevelToDB(level), e.silence, now)
	} else {
		e.det.Reset()
	}
	deactivated := e.active && !active
	e.active = active
	f := Frame{
		Level:             level,
		Lit:               LitSegments(level),
		Silence:           ev.InSilence,
		SilenceDurationMs: ev.DurationMs,
	}
	Render(e.canvas, e.layout, f.Lit, e.opts.Palette)
	e.frame = f
	e.mu.Unlock()

	if e.opts.OnFrame != nil {
		e.opts.OnFrame(f)
	}
	if (ev.JustEntered || ev.JustRecovered) && e.opts.OnSilence != nil {
		e.opts.OnSilence(ev)
	}
	if deactivated && e.opts.OnSilenceReset != nil {
		e.opts.OnSilenceReset()
	}
	return f
}

// Frame returns the latest frame.
func (e *Engine) Frame() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

// PNG returns the latest rendering.
func (e *Engine) PNG() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canvas.PNG()
}
