// Package arcade owns one instance of every registered game and fans their
// views and tones out to subscribers such as the desktop bindings.
package arcade

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/MJE43/emoji-arcade/internal/autoplay"
	"github.com/MJE43/emoji-arcade/internal/content"
	"github.com/MJE43/emoji-arcade/internal/engine"
	"github.com/MJE43/emoji-arcade/internal/games"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/records"
	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("arcade: hub closed")
	// ErrNoAutoplay is returned when a game has never been autoplayed.
	ErrNoAutoplay = errors.New("arcade: no autoplay runner")
)

// Options configure a hub.
type Options struct {
	Clock    engine.Clock
	Records  *records.Book
	Content  *content.Holder
	Settings games.Settings
	// Seeds fix every game's randomness: each game gets the server seed and
	// the client seed suffixed with its id. Zero picks random seeds per game.
	Seeds     engine.Seeds
	Listeners []session.Listener
	Autoplay  autoplay.Config
}

// Update is pushed to subscribers. Exactly one of View and Tone is set.
type Update struct {
	Game string        `json:"game"`
	View *session.View `json:"view,omitempty"`
	Tone *tone.Tone    `json:"tone,omitempty"`
}

// Hub serialises access to the games and their autoplay runners.
type Hub struct {
	opts   Options
	logger zerolog.Logger
	// ctx outlives requests; autoplay loops stop when the hub closes.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	games   map[string]games.Game
	runners map[string]*autoplay.Runner

	subsMu  sync.RWMutex
	subs    map[uint64]func(Update)
	nextSub uint64
}

// New builds a hub. Games are created on first use.
func New(opts Options) *Hub {
	if opts.Records == nil {
		opts.Records = records.NewBook(records.NewMemoryStore(), "")
	}
	if opts.Content == nil {
		opts.Content = content.Static(content.Default())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		logger:  xlog.WithComponent("arcade"),
		games:   make(map[string]games.Game),
		runners: make(map[string]*autoplay.Runner),
		subs:    make(map[uint64]func(Update)),
	}
}

// Games lists every registered game.
func (h *Hub) Games() []games.GameSpec { return games.ListGames() }

// Subscribe registers fn for every view and tone. The returned function
// removes it. fn runs on the goroutine that caused the update and must not
// call back into the hub synchronously.
func (h *Hub) Subscribe(fn func(Update)) (cancel func()) {
	h.subsMu.Lock()
	h.nextSub++
	id := h.nextSub
	h.subs[id] = fn
	h.subsMu.Unlock()
	return func() {
		h.subsMu.Lock()
		delete(h.subs, id)
		h.subsMu.Unlock()
	}
}

func (h *Hub) publish(u Update) {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	for _, fn := range h.subs {
		fn(u)
	}
}

// Game returns the instance for id, creating it on first use.
func (h *Hub) Game(id string) (games.Game, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gameLocked(id)
}

func (h *Hub) gameLocked(id string) (games.Game, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if g, ok := h.games[id]; ok {
		return g, nil
	}
	g, err := games.New(id, games.Deps{
		Clock:   h.opts.Clock,
		Records: h.opts.Records,
		Player: tone.Func(func(t tone.Tone) {
			h.publish(Update{Game: id, Tone: &t})
		}),
		Observer: session.ObserverFunc(func(v session.View) {
			h.publish(Update{Game: id, View: &v})
		}),
		Listeners: h.opts.Listeners,
		Content:   h.opts.Content,
		Seeds:     h.seedsFor(id),
		Settings:  h.opts.Settings,
	})
	if err != nil {
		return nil, err
	}
	h.games[id] = g
	h.logger.Debug().Str(xlog.FieldGame, id).Msg("game created")
	return g, nil
}

func (h *Hub) seedsFor(id string) engine.Seeds {
	if h.opts.Seeds.Server == "" {
		return engine.RandomSeeds()
	}
	return engine.Seeds{Server: h.opts.Seeds.Server, Client: h.opts.Seeds.Client + ":" + id}
}

// RotateSeeds reveals the seeds id has used and switches it to a fresh
// server seed. An empty clientSeed keeps a random one.
func (h *Hub) RotateSeeds(id, clientSeed string) (games.SeedReveal, error) {
	g, err := h.Game(id)
	if err != nil {
		return games.SeedReveal{}, err
	}
	next := engine.RandomSeeds()
	if clientSeed != "" {
		next.Client = clientSeed
	}
	reveal, err := g.RotateSeeds(next)
	if err != nil {
		return games.SeedReveal{}, err
	}
	h.logger.Info().
		Str(xlog.FieldGame, id).
		Str("revealed_hash", reveal.ServerSeedHash).
		Uint64("last_nonce", reveal.LastNonce).
		Msg("seeds rotated")
	return reveal, nil
}

// Start begins a run of id.
func (h *Hub) Start(id string) (session.View, error) {
	g, err := h.Game(id)
	if err != nil {
		return session.View{}, err
	}
	if err := g.Start(); err != nil {
		return g.View(), err
	}
	return g.View(), nil
}

// Stop ends the active run of id, if any.
func (h *Hub) Stop(id string) (session.View, error) {
	g, err := h.Game(id)
	if err != nil {
		return session.View{}, err
	}
	g.Stop()
	return g.View(), nil
}

// Act applies a player action to id.
func (h *Hub) Act(id string, a games.Action) (session.View, error) {
	g, err := h.Game(id)
	if err != nil {
		return session.View{}, err
	}
	if err := g.Act(a); err != nil {
		return g.View(), err
	}
	return g.View(), nil
}

// View returns the current view of id.
func (h *Hub) View(id string) (session.View, error) {
	g, err := h.Game(id)
	if err != nil {
		return session.View{}, err
	}
	return g.View(), nil
}

// Records returns every stored record keyed by record name.
func (h *Hub) Records(ctx context.Context) map[string]int {
	return h.opts.Records.All(ctx)
}

// StartAutoplay runs script against id until it stops, the game ends or the
// hub closes.
func (h *Hub) StartAutoplay(id, script string) (autoplay.Snapshot, error) {
	h.mu.Lock()
	g, err := h.gameLocked(id)
	if err != nil {
		h.mu.Unlock()
		return autoplay.Snapshot{}, err
	}
	r, ok := h.runners[id]
	if !ok {
		r, err = autoplay.NewRunner(g, h.opts.Autoplay)
		if err != nil {
			h.mu.Unlock()
			return autoplay.Snapshot{}, err
		}
		h.runners[id] = r
	}
	h.mu.Unlock()

	if err := r.Start(h.ctx, script); err != nil {
		return r.Snapshot(), err
	}
	return r.Snapshot(), nil
}

// StopAutoplay stops the runner of id.
func (h *Hub) StopAutoplay(id string) (autoplay.Snapshot, error) {
	r, err := h.runner(id)
	if err != nil {
		return autoplay.Snapshot{}, err
	}
	r.Stop()
	return r.Snapshot(), nil
}

// Autoplay returns the runner state of id.
func (h *Hub) Autoplay(id string) (autoplay.Snapshot, error) {
	r, err := h.runner(id)
	if err != nil {
		return autoplay.Snapshot{}, err
	}
	return r.Snapshot(), nil
}

func (h *Hub) runner(id string) (*autoplay.Runner, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := games.GetGame(id); !ok {
		return nil, fmt.Errorf("%w: %q", games.ErrUnknownGame, id)
	}
	r, ok := h.runners[id]
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrNoAutoplay, id)
	}
	return r, nil
}

// Close stops every runner and game. It is safe to call twice.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	runners, gs := h.runners, h.games
	h.runners, h.games = nil, nil
	h.mu.Unlock()

	h.cancel()
	for _, r := range runners {
		r.Stop()
	}
	for _, g := range gs {
		g.Close()
	}
}
