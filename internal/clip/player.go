package clip

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/moafunk/player/internal/bus"
	"github.com/moafunk/player/internal/eventlog"
	"github.com/moafunk/player/internal/telemetry"
	"github.com/moafunk/player/internal/util"
)

// ErrClosed is returned when a closed player is asked to do something.
var ErrClosed = errors.New("clip player closed")

// Claim is broadcast by a player that is about to start playing.
type Claim struct {
	InstanceID string
}

// Signal is a decoder lifecycle signal. Only the Signal* event kinds are valid.
type Signal = Event

// Decoder decodes one clip. Play and Pause are asynchronous: the decoder
// confirms them with SignalPlay and SignalPause.
type Decoder interface {
	Play() error
	Pause()
	Destroy()
}

// DecoderFactory creates a decoder for src that reports through emit. The
// decoder starts loading immediately.
type DecoderFactory func(src string, emit func(Signal)) Decoder

// Options configures a Player.
type Options struct {
	Bus        *bus.Bus[Claim]
	NewDecoder DecoderFactory
	Events     *eventlog.Logger
	Metrics    *telemetry.Metrics
	// OnChange is called from the player's goroutine after every state change.
	OnChange func(View)
}

// View is the read-only projection of a player.
type View struct {
	ID          string
	Key         string
	Title       string
	Src         string
	Status      Status
	IsLoading   bool
	IsPlaying   bool
	CurrentTime string
	Duration    string
	Err         string
}

// session is one activation: a decoder and the flag that silences it.
type session struct {
	dec       Decoder
	destroyed atomic.Bool
}

type message struct {
	ev     Event
	sess   *session // decoder signals only
	src    string   // src changes only
	srcSet bool
}

// Player is one clip player. All transitions and decoder calls run on the
// player's own goroutine, in the order events were received.
type Player struct {
	id    string
	key   string
	title string
	opts  Options

	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
	closed      atomic.Bool

	qmu    sync.Mutex
	queue  []message
	wakeup chan struct{}

	mu    sync.Mutex
	src   string
	state State
	sess  *session
}

// New mounts a player for src. No decoder is created until the first
// activation.
func New(key, src, title string, opts Options) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		id:     uuid.NewString(),
		key:    key,
		title:  title,
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
		wakeup: make(chan struct{}, 1),
		src:    src,
		state:  State{Status: Uninitialized},
	}
	p.unsubscribe = opts.Bus.Subscribe(p.onClaim)
	go p.loop(ctx)
	return p
}

// ID returns the player's unique instance id.
func (p *Player) ID() string { return p.id }

// Key returns the mount key.
func (p *Player) Key() string { return p.key }

// Activate creates the decoder on first use. It is a no-op once loaded.
func (p *Player) Activate() error {
	return p.send(message{ev: Event{Kind: EventActivate}})
}

// Toggle plays or pauses, activating the player first if needed.
func (p *Player) Toggle() error {
	return p.send(message{ev: Event{Kind: EventToggle}})
}

// SetSrc changes the clip URL. A URL naming the same resource only updates
// the stored value; any other URL resets the player.
func (p *Player) SetSrc(src string) error {
	return p.send(message{src: src, srcSet: true})
}

// View returns the current projection.
func (p *Player) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Player) viewLocked() View {
	return View{
		ID:          p.id,
		Key:         p.key,
		Title:       p.title,
		Src:         p.src,
		Status:      p.state.Status,
		IsLoading:   p.state.Loading,
		IsPlaying:   p.state.Status == ReadyPlaying,
		CurrentTime: util.FormatClock(p.state.Position),
		Duration:    util.FormatClock(p.state.Duration),
		Err:         p.state.Err,
	}
}

// Close unmounts the player: the current session is marked destroyed before
// anything else, the bus subscription is dropped, the decoder released and
// the state reset to uninitialized. A closed player never changes state
// again.
func (p *Player) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.mu.Lock()
	if p.sess != nil {
		p.sess.destroyed.Store(true)
	}
	p.mu.Unlock()

	p.unsubscribe()
	p.cancel()
	<-p.done

	p.mu.Lock()
	p.state = State{Status: Uninitialized, ClaimSeq: p.state.ClaimSeq}
	p.mu.Unlock()
	p.releaseSession()
}

func (p *Player) send(m message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.qmu.Lock()
	p.queue = append(p.queue, m)
	p.qmu.Unlock()
	select {
	case p.wakeup <- struct{}{}:
	default:
	}
	return nil
}

// onClaim runs on the publisher's goroutine and only enqueues.
func (p *Player) onClaim(env bus.Envelope[Claim]) {
	if env.Msg.InstanceID == p.id {
		return
	}
	_ = p.send(message{ev: Event{Kind: EventClaim, Seq: env.Seq}})
}

func (p *Player) loop(ctx context.Context) {
	defer close(p.done)
	defer util.Recover("clip player " + p.key)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wakeup:
		}
		p.qmu.Lock()
		batch := p.queue
		p.queue = nil
		p.qmu.Unlock()
		for _, m := range batch {
			if p.closed.Load() {
				return
			}
			p.handle(m)
		}
	}
}

func (p *Player) handle(m message) {
	if m.srcSet {
		p.changeSrc(m.src)
		return
	}

	p.mu.Lock()
	// Signals from a torn-down session never reach the state machine.
	if m.sess != nil && (m.sess != p.sess || m.sess.destroyed.Load()) {
		p.mu.Unlock()
		return
	}
	wasPlaying := p.state.Status == ReadyPlaying
	next, effects := Transition(p.state, m.ev)
	changed := next != p.state
	p.state = next
	p.mu.Unlock()

	if m.ev.Kind == SignalError {
		slog.Error("clip decoder failed", "clip", p.key, "src", p.View().Src, "error", m.ev.Err)
		p.opts.Metrics.ClipError()
		if err := p.opts.Events.LogClip(eventlog.ClipError, p.key, p.View().Src, 0, next.Err); err != nil {
			slog.Warn("failed to log clip error", "error", err)
		}
	}
	if playing := next.Status == ReadyPlaying; playing != wasPlaying {
		slog.Debug("clip playback changed", "clip", p.key, "playing", playing)
	}

	for _, eff := range effects {
		p.apply(eff)
	}
	if changed || len(effects) > 0 {
		p.notify()
	}
}

func (p *Player) apply(eff Effect) {
	p.mu.Lock()
	sess := p.sess
	src := p.src
	p.mu.Unlock()

	switch eff {
	case EffectCreateDecoder:
		p.startSession(src)

	case EffectClaim:
		seq := p.opts.Bus.Publish(Claim{InstanceID: p.id})
		p.mu.Lock()
		p.state.ClaimSeq = seq
		p.mu.Unlock()
		p.opts.Metrics.ClipClaimed()
		if err := p.opts.Events.LogClip(eventlog.ClipClaimed, p.key, src, seq, ""); err != nil {
			slog.Warn("failed to log clip claim", "error", err)
		}

	case EffectPlay:
		if sess == nil {
			return
		}
		if err := sess.dec.Play(); err != nil {
			p.enqueueSignal(sess, Signal{Kind: SignalError, Err: err})
		}

	case EffectPause:
		if sess != nil {
			sess.dec.Pause()
		}

	case EffectRelease:
		p.releaseSession()
	}
}

func (p *Player) startSession(src string) {
	p.releaseSession()

	sess := &session{}
	p.mu.Lock()
	p.sess = sess
	p.mu.Unlock()

	sess.dec = p.opts.NewDecoder(src, func(sig Signal) {
		if sess.destroyed.Load() {
			return
		}
		p.enqueueSignal(sess, sig)
	})
}

func (p *Player) enqueueSignal(sess *session, sig Signal) {
	_ = p.send(message{ev: sig, sess: sess})
}

// releaseSession tears down the current session. The destroyed flag is set
// before the decoder is touched.
func (p *Player) releaseSession() {
	p.mu.Lock()
	sess := p.sess
	p.sess = nil
	p.mu.Unlock()
	if sess == nil {
		return
	}
	sess.destroyed.Store(true)
	sess.dec.Destroy()
}

func (p *Player) changeSrc(src string) {
	p.mu.Lock()
	old := p.src
	p.src = src
	if SameResource(old, src) {
		p.mu.Unlock()
		p.notify()
		return
	}
	p.state = State{Status: Uninitialized, ClaimSeq: p.state.ClaimSeq}
	p.mu.Unlock()

	slog.Info("clip source changed", "clip", p.key, "from", old, "to", src)
	p.releaseSession()
	p.notify()
}

func (p *Player) notify() {
	if p.opts.OnChange != nil {
		p.opts.OnChange(p.View())
	}
}
