package clip

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/moafunk/player/internal/bus"
	"github.com/moafunk/player/internal/eventlog"
	"github.com/moafunk/player/internal/telemetry"
)

// ErrNotMounted is returned for an unknown mount key.
var ErrNotMounted = errors.New("clip not mounted")

// ErrAlreadyMounted is returned when a key is mounted twice.
var ErrAlreadyMounted = errors.New("clip already mounted")

// PageOptions configures a Page.
type PageOptions struct {
	NewDecoder DecoderFactory
	Events     *eventlog.Logger
	Metrics    *telemetry.Metrics
	// OnChange is called after any player changes state.
	OnChange func(View)
}

// Page holds the mounted clip players and the claim bus they share.
type Page struct {
	opts PageOptions
	bus  *bus.Bus[Claim]

	mu      sync.RWMutex
	players map[string]*Player
	playing map[string]bool
}

// NewPage creates an empty page.
func NewPage(opts PageOptions) *Page {
	return &Page{
		opts:    opts,
		bus:     bus.New[Claim](),
		players: make(map[string]*Player),
		playing: make(map[string]bool),
	}
}

// Mount adds a player under key.
func (pg *Page) Mount(key, src, title string) (*Player, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if _, ok := pg.players[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMounted, key)
	}
	p := New(key, src, title, Options{
		Bus:        pg.bus,
		NewDecoder: pg.opts.NewDecoder,
		Events:     pg.opts.Events,
		Metrics:    pg.opts.Metrics,
		OnChange:   pg.changed,
	})
	pg.players[key] = p
	slog.Debug("clip mounted", "clip", key, "src", src)
	return p, nil
}

// Unmount closes and removes the player under key.
func (pg *Page) Unmount(key string) error {
	pg.mu.Lock()
	p, ok := pg.players[key]
	delete(pg.players, key)
	pg.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMounted, key)
	}
	p.Close()

	pg.mu.Lock()
	delete(pg.playing, key)
	n := pg.countLocked()
	pg.mu.Unlock()
	pg.opts.Metrics.SetClipsPlaying(n)
	return nil
}

// Get returns the player mounted under key.
func (pg *Page) Get(key string) (*Player, error) {
	pg.mu.RLock()
	defer pg.mu.RUnlock()
	p, ok := pg.players[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotMounted, key)
	}
	return p, nil
}

// Players returns the mounted players sorted by key.
func (pg *Page) Players() []*Player {
	pg.mu.RLock()
	defer pg.mu.RUnlock()
	out := make([]*Player, 0, len(pg.players))
	for _, key := range slices.Sorted(maps.Keys(pg.players)) {
		out = append(out, pg.players[key])
	}
	return out
}

// Views returns a view of every mounted player sorted by key.
func (pg *Page) Views() []View {
	players := pg.Players()
	views := make([]View, len(players))
	for i, p := range players {
		views[i] = p.View()
	}
	return views
}

// PlayingCount returns the number of players currently playing.
func (pg *Page) PlayingCount() int {
	pg.mu.RLock()
	defer pg.mu.RUnlock()
	return pg.countLocked()
}

// Close unmounts every player.
func (pg *Page) Close() {
	pg.mu.Lock()
	players := pg.players
	pg.players = make(map[string]*Player)
	clear(pg.playing)
	pg.mu.Unlock()
	for _, p := range players {
		p.Close()
	}
	pg.opts.Metrics.SetClipsPlaying(0)
}

func (pg *Page) changed(v View) {
	pg.mu.Lock()
	if _, mounted := pg.players[v.Key]; mounted {
		if v.IsPlaying {
			pg.playing[v.Key] = true
		} else {
			delete(pg.playing, v.Key)
		}
	}
	n := pg.countLocked()
	pg.mu.Unlock()

	pg.opts.Metrics.SetClipsPlaying(n)
	if pg.opts.OnChange != nil {
		pg.opts.OnChange(v)
	}
}

func (pg *Page) countLocked() int {
	return len(pg.playing)
}
