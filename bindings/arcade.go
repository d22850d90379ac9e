// Package bindings exposes the arcade to the Wails frontend. Views and tones
// are pushed as runtime events; everything else is a bound method.
package bindings

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/MJE43/emoji-arcade/internal/arcade"
	"github.com/MJE43/emoji-arcade/internal/autoplay"
	"github.com/MJE43/emoji-arcade/internal/engine"
	"github.com/MJE43/emoji-arcade/internal/games"
	"github.com/MJE43/emoji-arcade/internal/history"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

// Frontend event names.
const (
	EventView = "arcade:view"
	EventTone = "arcade:tone"
)

// EmitFunc matches runtime.EventsEmit.
type EmitFunc func(ctx context.Context, name string, data ...any)

// HistoryPage is a page of stored sessions.
type HistoryPage struct {
	Sessions []history.Session `json:"sessions"`
	Total    int               `json:"total"`
}

// ArcadeModule is the Wails-bound arcade facade.
type ArcadeModule struct {
	hub    *arcade.Hub
	hist   *history.Store
	emit   EmitFunc
	clock  engine.Clock
	logger zerolog.Logger

	mu     sync.RWMutex
	ctx    context.Context
	cancel func()
}

// NewArcadeModule binds hub and the optional history store.
func NewArcadeModule(hub *arcade.Hub, hist *history.Store) *ArcadeModule {
	return &ArcadeModule{
		hub:    hub,
		hist:   hist,
		emit:   runtime.EventsEmit,
		clock:  engine.RealClock{},
		logger: xlog.WithComponent("bindings"),
	}
}

// Startup is called by Wails on application startup.
func (m *ArcadeModule) Startup(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	subscribed := m.cancel != nil
	m.mu.Unlock()
	if subscribed {
		return
	}
	// Subscribe outside m.mu; forward takes it while the hub holds its own lock.
	cancel := m.hub.Subscribe(m.forward)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	m.logger.Debug().Msg("forwarding arcade updates to the frontend")
}

// Shutdown stops forwarding updates.
func (m *ArcadeModule) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel, m.ctx = nil, nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *ArcadeModule) forward(u arcade.Update) {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()
	if ctx == nil {
		return
	}
	switch {
	case u.View != nil:
		m.emit(ctx, EventView+":"+u.Game, *u.View)
	case u.Tone != nil:
		m.emit(ctx, EventTone, *u.Tone)
	}
}

func (m *ArcadeModule) GetGames() []games.GameSpec {
	return m.hub.Games()
}

func (m *ArcadeModule) StartGame(id string) (session.View, error) {
	return m.hub.Start(id)
}

func (m *ArcadeModule) StopGame(id string) (session.View, error) {
	return m.hub.Stop(id)
}

func (m *ArcadeModule) Act(id string, a games.Action) (session.View, error) {
	return m.hub.Act(id, a)
}

func (m *ArcadeModule) GetView(id string) (session.View, error) {
	return m.hub.View(id)
}

// RotateSeeds reveals the seeds id has used so the player can verify past
// runs, then switches to a fresh server seed.
func (m *ArcadeModule) RotateSeeds(id, clientSeed string) (games.SeedReveal, error) {
	return m.hub.RotateSeeds(id, clientSeed)
}

func (m *ArcadeModule) GetRecords() map[string]int {
	return m.hub.Records(m.context())
}

func (m *ArcadeModule) StartAutoplay(id, script string) (autoplay.Snapshot, error) {
	return m.hub.StartAutoplay(id, script)
}

func (m *ArcadeModule) StopAutoplay(id string) (autoplay.Snapshot, error) {
	return m.hub.StopAutoplay(id)
}

func (m *ArcadeModule) GetAutoplay(id string) (autoplay.Snapshot, error) {
	return m.hub.Autoplay(id)
}

// HistoryEnabled reports whether session history is being stored.
func (m *ArcadeModule) HistoryEnabled() bool { return m.hist != nil }

func (m *ArcadeModule) ListHistory(game string, limit, offset int) (HistoryPage, error) {
	if m.hist == nil {
		return HistoryPage{Sessions: []history.Session{}}, nil
	}
	sessions, total, err := m.hist.ListSessions(m.context(), history.Filter{Game: game, Limit: limit, Offset: offset})
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Sessions: sessions, Total: total}, nil
}

func (m *ArcadeModule) GetHistoryStats(game string) (history.Stats, error) {
	if m.hist == nil {
		return history.Stats{Game: game}, nil
	}
	return m.hist.Stats(m.context(), game)
}

func (m *ArcadeModule) GetResolutions(sessionID string, page, perPage int) (*history.ResolutionsPage, error) {
	if m.hist == nil {
		return &history.ResolutionsPage{Resolutions: []history.Resolution{}}, nil
	}
	return m.hist.GetResolutions(m.context(), sessionID, page, perPage)
}

func (m *ArcadeModule) DeleteHistory(sessionID string) error {
	if m.hist == nil {
		return nil
	}
	return m.hist.DeleteSession(m.context(), sessionID)
}

// TestAudio plays a rising chime through the frontend synthesiser.
func (m *ArcadeModule) TestAudio() {
	player := tone.Func(func(t tone.Tone) {
		m.forward(arcade.Update{Tone: &t})
	})
	tone.Sequence(player, m.clock, 150*time.Millisecond,
		tone.New(523), tone.New(659), tone.New(784), tone.New(1047))
}

func (m *ArcadeModule) context() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}
