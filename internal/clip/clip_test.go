package clip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/bus"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		ev      Event
		want    State
		effects []Effect
	}{
		{
			name:    "activate creates decoder",
			state:   State{Status: Uninitialized, ClaimSeq: 4},
			ev:      Event{Kind: EventActivate},
			want:    State{Status: Loading, Loading: true, ClaimSeq: 4},
			effects: []Effect{EffectCreateDecoder},
		},
		{
			name:  "activate while loading is a no-op",
			state: State{Status: Loading, Loading: true},
			ev:    Event{Kind: EventActivate},
			want:  State{Status: Loading, Loading: true},
		},
		{
			name:    "toggle from uninitialized activates",
			state:   State{Status: Uninitialized, Err: "boom"},
			ev:      Event{Kind: EventToggle},
			want:    State{Status: Loading, Loading: true},
			effects: []Effect{EffectCreateDecoder},
		},
		{
			name:    "first ready autoplays",
			state:   State{Status: Loading, Loading: true},
			ev:      Event{Kind: SignalReady, Duration: time.Minute},
			want:    State{Status: ReadyPaused, AutoPlayed: true, PlayPending: true, Duration: time.Minute},
			effects: []Effect{EffectClaim, EffectPlay},
		},
		{
			name:  "ready outside loading is ignored",
			state: State{Status: ReadyPlaying},
			ev:    Event{Kind: SignalReady, Duration: time.Minute},
			want:  State{Status: ReadyPlaying},
		},
		{
			name:  "play signal",
			state: State{Status: ReadyPaused, PlayPending: true},
			ev:    Event{Kind: SignalPlay},
			want:  State{Status: ReadyPlaying},
		},
		{
			name:    "toggle while paused claims then plays",
			state:   State{Status: ReadyPaused},
			ev:      Event{Kind: EventToggle},
			want:    State{Status: ReadyPaused, PlayPending: true},
			effects: []Effect{EffectClaim, EffectPlay},
		},
		{
			name:    "toggle while play pending cancels it",
			state:   State{Status: ReadyPaused, PlayPending: true, ClaimSeq: 3},
			ev:      Event{Kind: EventToggle},
			want:    State{Status: ReadyPaused, ClaimSeq: 3},
			effects: []Effect{EffectPause},
		},
		{
			name:    "toggle while playing pauses",
			state:   State{Status: ReadyPlaying},
			ev:      Event{Kind: EventToggle},
			want:    State{Status: ReadyPlaying},
			effects: []Effect{EffectPause},
		},
		{
			name:  "finish pauses at the end",
			state: State{Status: ReadyPlaying, Position: time.Second, Duration: 3 * time.Second},
			ev:    Event{Kind: SignalFinish},
			want:  State{Status: ReadyPaused, Position: 3 * time.Second, Duration: 3 * time.Second},
		},
		{
			name:  "time update",
			state: State{Status: ReadyPlaying},
			ev:    Event{Kind: SignalTimeUpdate, Position: 2 * time.Second, Duration: 9 * time.Second},
			want:  State{Status: ReadyPlaying, Position: 2 * time.Second, Duration: 9 * time.Second},
		},
		{
			name:    "error resets and releases",
			state:   State{Status: ReadyPlaying, AutoPlayed: true, ClaimSeq: 7, Duration: time.Second},
			ev:      Event{Kind: SignalError, Err: errors.New("decode failed")},
			want:    State{Status: Uninitialized, ClaimSeq: 7, Err: "decode failed"},
			effects: []Effect{EffectRelease},
		},
		{
			name:    "newer claim pauses a playing player",
			state:   State{Status: ReadyPlaying, ClaimSeq: 2},
			ev:      Event{Kind: EventClaim, Seq: 3},
			want:    State{Status: ReadyPlaying, ClaimSeq: 2},
			effects: []Effect{EffectPause},
		},
		{
			name:    "newer claim cancels a pending play",
			state:   State{Status: ReadyPaused, PlayPending: true, ClaimSeq: 2},
			ev:      Event{Kind: EventClaim, Seq: 3},
			want:    State{Status: ReadyPaused, ClaimSeq: 2},
			effects: []Effect{EffectPause},
		},
		{
			name:  "older claim is ignored",
			state: State{Status: ReadyPlaying, ClaimSeq: 5},
			ev:    Event{Kind: EventClaim, Seq: 3},
			want:  State{Status: ReadyPlaying, ClaimSeq: 5},
		},
		{
			name:  "claim while paused is ignored",
			state: State{Status: ReadyPaused, ClaimSeq: 1},
			ev:    Event{Kind: EventClaim, Seq: 3},
			want:  State{Status: ReadyPaused, ClaimSeq: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects := Transition(tt.state, tt.ev)
			if got != tt.want {
				t.Errorf("state = %+v, want %+v", got, tt.want)
			}
			if len(effects) != len(tt.effects) {
				t.Fatalf("effects = %v, want %v", effects, tt.effects)
			}
			for i := range effects {
				if effects[i] != tt.effects[i] {
					t.Errorf("effects = %v, want %v", effects, tt.effects)
				}
			}
		})
	}
}

// fakeDecoder becomes ready as soon as it is created and confirms play and
// pause immediately.
type fakeDecoder struct {
	src  string
	emit func(Signal)

	mu        sync.Mutex
	plays     int
	destroyed bool
}

func (f *fakeDecoder) Play() error {
	f.mu.Lock()
	f.plays++
	f.mu.Unlock()
	f.emit(Signal{Kind: SignalPlay})
	return nil
}

func (f *fakeDecoder) Pause() {
	f.emit(Signal{Kind: SignalPause})
}

func (f *fakeDecoder) Destroy() {
	f.mu.Lock()
	f.destroyed = true
	f.mu.Unlock()
}

func (f *fakeDecoder) isDestroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

type fakeFactory struct {
	mu       sync.Mutex
	decoders []*fakeDecoder
}

func (ff *fakeFactory) New(src string, emit func(Signal)) Decoder {
	d := &fakeDecoder{src: src, emit: emit}
	ff.mu.Lock()
	ff.decoders = append(ff.decoders, d)
	ff.mu.Unlock()
	emit(Signal{Kind: SignalLoading})
	emit(Signal{Kind: SignalReady, Duration: 30 * time.Second})
	return d
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.decoders)
}

func (ff *fakeFactory) get(i int) *fakeDecoder {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.decoders[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// settled waits until cond has held for a while without interruption.
func settled(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var since time.Time
	for {
		if cond() {
			if since.IsZero() {
				since = time.Now()
			}
			if time.Since(since) > 100*time.Millisecond {
				return
			}
		} else {
			since = time.Time{}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestPlayer(t *testing.T, src string) (*Player, *fakeFactory) {
	t.Helper()
	ff := &fakeFactory{}
	p := New("clip", src, "Clip", Options{Bus: bus.New[Claim](), NewDecoder: ff.New})
	t.Cleanup(p.Close)
	return p, ff
}

func TestPlayerLazyDecoder(t *testing.T) {
	p, ff := newTestPlayer(t, "https://cdn.test/clip.mp3")

	time.Sleep(20 * time.Millisecond)
	if ff.count() != 0 {
		t.Fatal("decoder created before activation")
	}
	if v := p.View(); v.Status != Uninitialized || v.CurrentTime != "0:00" {
		t.Errorf("view = %+v", v)
	}

	if err := p.Activate(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "autoplay", func() bool { return p.View().IsPlaying })
	if err := p.Activate(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if ff.count() != 1 {
		t.Errorf("decoders = %d, want 1", ff.count())
	}
	if v := p.View(); v.Duration != "0:30" {
		t.Errorf("duration = %q, want 0:30", v.Duration)
	}
}

func TestPlayerToggle(t *testing.T) {
	p, _ := newTestPlayer(t, "https://cdn.test/clip.mp3")

	p.Toggle()
	waitFor(t, "playing", func() bool { return p.View().IsPlaying })
	p.Toggle()
	waitFor(t, "paused", func() bool { return p.View().Status == ReadyPaused })
	p.Toggle()
	waitFor(t, "playing again", func() bool { return p.View().IsPlaying })
}

func TestPlayersExclusivePlayback(t *testing.T) {
	ff := &fakeFactory{}
	page := NewPage(PageOptions{NewDecoder: ff.New})
	t.Cleanup(page.Close)

	a, err := page.Mount("a", "https://cdn.test/a.mp3", "A")
	if err != nil {
		t.Fatal(err)
	}
	b, err := page.Mount("b", "https://cdn.test/b.mp3", "B")
	if err != nil {
		t.Fatal(err)
	}

	a.Activate()
	b.Activate()
	settled(t, "exactly one playing", func() bool {
		va, vb := a.View(), b.View()
		ready := va.Status != Loading && vb.Status != Loading
		return ready && va.IsPlaying != vb.IsPlaying
	})
	if n := page.PlayingCount(); n != 1 {
		t.Errorf("playing count = %d, want 1", n)
	}

	// Starting the paused player pauses the other one.
	paused := a
	if a.View().IsPlaying {
		paused = b
	}
	paused.Toggle()
	settled(t, "switch", func() bool {
		return paused.View().IsPlaying && page.PlayingCount() == 1
	})
}

func TestPlayerIgnoresDestroyedSession(t *testing.T) {
	p, ff := newTestPlayer(t, "https://cdn.test/clip-a.mp3")

	p.Activate()
	waitFor(t, "playing", func() bool { return p.View().IsPlaying })
	old := ff.get(0)

	p.SetSrc("https://cdn.test/clip-b.mp3")
	waitFor(t, "reset", func() bool { return p.View().Status == Uninitialized })
	if !old.isDestroyed() {
		t.Fatal("old decoder not destroyed")
	}

	old.emit(Signal{Kind: SignalPlay})
	old.emit(Signal{Kind: SignalError, Err: errors.New("late")})
	time.Sleep(30 * time.Millisecond)
	if v := p.View(); v.Status != Uninitialized || v.Err != "" {
		t.Errorf("view changed after destroy: %+v", v)
	}
}

func TestPlayerSetSrcSameResource(t *testing.T) {
	p, ff := newTestPlayer(t, "https://cdn.test/clip.mp3?x=1")

	p.Activate()
	waitFor(t, "playing", func() bool { return p.View().IsPlaying })

	p.SetSrc("https://cdn.test/clip.mp3?x=2")
	waitFor(t, "src update", func() bool { return p.View().Src == "https://cdn.test/clip.mp3?x=2" })
	if v := p.View(); !v.IsPlaying {
		t.Errorf("query change reset the player: %+v", v)
	}
	if ff.get(0).isDestroyed() {
		t.Error("decoder destroyed for a query change")
	}
}

func TestPlayerClose(t *testing.T) {
	p, ff := newTestPlayer(t, "https://cdn.test/clip.mp3")

	p.Activate()
	waitFor(t, "playing", func() bool { return p.View().IsPlaying })
	p.Close()

	if !ff.get(0).isDestroyed() {
		t.Error("decoder not destroyed on close")
	}
	if v := p.View(); v.Status != Uninitialized || v.IsPlaying || v.IsLoading {
		t.Errorf("view after close = %+v, want reset to uninitialized", v)
	}
	if err := p.Toggle(); !errors.Is(err, ErrClosed) {
		t.Errorf("Toggle after close = %v, want ErrClosed", err)
	}
	before := p.View()
	ff.get(0).emit(Signal{Kind: SignalPause})
	time.Sleep(20 * time.Millisecond)
	if p.View() != before {
		t.Error("closed player changed state")
	}
	p.Close()
}

func TestPlayerClaimsAfterUnmountAreIgnored(t *testing.T) {
	ff := &fakeFactory{}
	page := NewPage(PageOptions{NewDecoder: ff.New})
	t.Cleanup(page.Close)

	a, _ := page.Mount("a", "https://cdn.test/a.mp3", "A")
	a.Activate()
	waitFor(t, "a playing", func() bool { return a.View().IsPlaying })

	if err := page.Unmount("a"); err != nil {
		t.Fatal(err)
	}
	if err := page.Unmount("a"); !errors.Is(err, ErrNotMounted) {
		t.Errorf("second unmount = %v, want ErrNotMounted", err)
	}

	b, _ := page.Mount("b", "https://cdn.test/b.mp3", "B")
	b.Activate()
	waitFor(t, "b playing", func() bool { return b.View().IsPlaying })
	if got := page.PlayingCount(); got != 1 {
		t.Errorf("playing count = %d, want 1", got)
	}
}

func TestPageMount(t *testing.T) {
	page := NewPage(PageOptions{NewDecoder: (&fakeFactory{}).New})
	t.Cleanup(page.Close)

	for _, key := range []string{"zeta", "alpha"} {
		if _, err := page.Mount(key, "https://cdn.test/"+key+".mp3", key); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := page.Mount("alpha", "x", "x"); !errors.Is(err, ErrAlreadyMounted) {
		t.Errorf("duplicate mount = %v", err)
	}
	views := page.Views()
	if len(views) != 2 || views[0].Key != "alpha" || views[1].Key != "zeta" {
		t.Errorf("views = %+v", views)
	}
	if _, err := page.Get("missing"); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Get missing = %v", err)
	}
}

func TestSameResource(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://cdn.test/clip.mp3?x=1", "https://cdn.test/clip.mp3?x=2", true},
		{"https://cdn.test/clip.mp3#t=1", "https://cdn.test/clip.mp3", true},
		{"HTTPS://CDN.test/clip.mp3", "https://cdn.test/clip.mp3", true},
		{"https://cdn.test/clip-a.mp3", "https://cdn.test/clip-b.mp3", false},
		{"https://cdn.test/Clip.mp3", "https://cdn.test/clip.mp3", false},
		{"https://a.test/clip.mp3", "https://b.test/clip.mp3", false},
	}
	for _, tt := range tests {
		if got := SameResource(tt.a, tt.b); got != tt.want {
			t.Errorf("SameResource(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func makeWAV(frames, rate int) []byte {
	var b bytes.Buffer
	dataLen := frames * 4
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*4))
	binary.Write(&b, binary.LittleEndian, uint16(4))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	for i := range frames {
		v := int16((i%50 - 25) * 1000)
		binary.Write(&b, binary.LittleEndian, v)
		binary.Write(&b, binary.LittleEndian, v)
	}
	return b.Bytes()
}

func TestHTTPDecoder(t *testing.T) {
	wav := makeWAV(11025, 44100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	t.Cleanup(srv.Close)

	actx := audio.NewContext(&audio.NullSink{}, 44100)
	t.Cleanup(func() { actx.Close() })

	signals := make(chan Signal, 64)
	factory := NewHTTPDecoderFactory(actx, srv.Client())
	dec := factory(srv.URL+"/jingle.wav", func(s Signal) { signals <- s })
	t.Cleanup(dec.Destroy)

	next := func(kind EventKind) Signal {
		t.Helper()
		timeout := time.After(3 * time.Second)
		for {
			select {
			case s := <-signals:
				if s.Kind == SignalError {
					t.Fatalf("decoder error: %v", s.Err)
				}
				if s.Kind == kind {
					return s
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %s", kind)
			}
		}
	}

	next(SignalLoading)
	ready := next(SignalReady)
	if ready.Duration != 250*time.Millisecond {
		t.Errorf("duration = %v, want 250ms", ready.Duration)
	}
	if err := dec.Play(); err != nil {
		t.Fatal(err)
	}
	next(SignalPlay)
	if actx.State() != audio.StateRunning {
		t.Errorf("context state = %s, want running", actx.State())
	}
	next(SignalFinish)
	if actx.Destination().Len() != 0 {
		t.Error("finished clip still attached to the mixer")
	}
	if peaks := dec.(*HTTPDecoder).Peaks(); len(peaks) == 0 {
		t.Error("no waveform peaks recorded")
	}
}

func TestHTTPDecoderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	actx := audio.NewContext(&audio.NullSink{}, 44100)
	t.Cleanup(func() { actx.Close() })

	errs := make(chan error, 1)
	dec := NewHTTPDecoderFactory(actx, srv.Client())(srv.URL+"/missing.mp3", func(s Signal) {
		if s.Kind == SignalError {
			errs <- s.Err
		}
	})
	t.Cleanup(dec.Destroy)

	select {
	case err := <-errs:
		if err == nil {
			t.Error("nil error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no error signal")
	}
}

// pendingDecoder accepts Play without confirming it, like a decoder that is
// still fetching the clip.
type pendingDecoder struct {
	mu     sync.Mutex
	plays  int
	pauses int
}

func (d *pendingDecoder) Play() error {
	d.mu.Lock()
	d.plays++
	d.mu.Unlock()
	return nil
}

func (d *pendingDecoder) Pause() {
	d.mu.Lock()
	d.pauses++
	d.mu.Unlock()
}

func (d *pendingDecoder) Destroy() {}

func (d *pendingDecoder) counts() (plays, pauses int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plays, d.pauses
}

func TestPlayerToggleCancelsPendingPlay(t *testing.T) {
	var dec *pendingDecoder
	created := make(chan struct{})
	p := New("clip", "https://cdn.test/clip.mp3", "Clip", Options{
		Bus: bus.New[Claim](),
		NewDecoder: func(_ string, emit func(Signal)) Decoder {
			dec = &pendingDecoder{}
			close(created)
			emit(Signal{Kind: SignalLoading})
			emit(Signal{Kind: SignalReady, Duration: 10 * time.Second})
			return dec
		},
	})
	t.Cleanup(p.Close)

	p.Activate()
	<-created
	waitFor(t, "autoplay requested", func() bool { plays, _ := dec.counts(); return plays == 1 })

	p.Toggle()
	waitFor(t, "pending play cancelled", func() bool { _, pauses := dec.counts(); return pauses == 1 })
	if v := p.View(); v.IsPlaying || v.Status != ReadyPaused {
		t.Errorf("view = %+v", v)
	}

	p.Toggle()
	waitFor(t, "play requested again", func() bool { plays, _ := dec.counts(); return plays == 2 })
}
