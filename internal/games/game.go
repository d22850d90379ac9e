// Package games implements the arcade mini-games on top of the shared
// session lifecycle.
package games

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MJE43/emoji-arcade/internal/content"
	"github.com/MJE43/emoji-arcade/internal/engine"
	"github.com/MJE43/emoji-arcade/internal/records"
	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

var (
	ErrUnknownGame       = errors.New("games: unknown game")
	ErrUnsupportedAction = errors.New("games: unsupported action")
	ErrNotReady          = errors.New("games: not accepting input")
	ErrInvalidSettings   = errors.New("games: invalid settings")
)

// Action types accepted by Act.
const (
	ActionAnswer = "answer" // Option: chosen option index
	ActionHit    = "hit"    // ChallengeID: target clicked
	ActionPress  = "press"  // Option: pad index
	ActionTap    = "tap"    // Lane: rhythm lane
	ActionAim    = "aim"    // X, Y: normalised goal coordinates
	ActionCharge = "charge"
)

// GameSpec describes a game for listings.
type GameSpec struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Emoji         string   `json:"emoji"`
	Description   string   `json:"description"`
	RecordName    string   `json:"recordName,omitempty"`
	LowerIsBetter bool     `json:"lowerIsBetter,omitempty"`
	Actions       []string `json:"actions"`
	// Choice marks discrete-choice games that expose options in the view.
	Choice bool `json:"choice"`
}

// Action is a player input. Inputs address challenges by id or option index.
type Action struct {
	Type        string  `json:"type"`
	ChallengeID string  `json:"challengeId,omitempty"`
	Option      int     `json:"option,omitempty"`
	Lane        int     `json:"lane,omitempty"`
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
}

// Game is one playable instance bound to its own session.
type Game interface {
	Spec() GameSpec
	Start() error
	Stop() bool
	Act(a Action) error
	View() session.View
	Session() *session.Session
	// RotateSeeds reveals the seeds used so far and switches to next.
	RotateSeeds(next engine.Seeds) (SeedReveal, error)
	Close()
}

// SeedReveal opens the commitment shown in earlier views. Runs used the
// nonces up to LastNonce.
type SeedReveal struct {
	ServerSeed         string `json:"serverSeed"`
	ClientSeed         string `json:"clientSeed"`
	ServerSeedHash     string `json:"serverSeedHash"`
	LastNonce          uint64 `json:"lastNonce"`
	NextServerSeedHash string `json:"nextServerSeedHash"`
}

// Deps are the collaborators shared by every game.
type Deps struct {
	Clock     engine.Clock
	Records   *records.Book
	Player    tone.Player
	Observer  session.Observer
	Listeners []session.Listener
	Content   *content.Holder
	// Seeds drive challenge generation; zero values pick random seeds.
	Seeds    engine.Seeds
	Settings Settings
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = engine.RealClock{}
	}
	if d.Content == nil {
		d.Content = content.Static(content.Default())
	}
	if d.Seeds.Server == "" {
		d.Seeds = engine.RandomSeeds()
	}
	if d.Settings.isZero() {
		d.Settings = DefaultSettings()
	}
	return d
}

func (d Deps) sessionOptions() []session.Option {
	opts := []session.Option{
		session.WithClock(d.Clock),
		session.WithPlayer(d.Player),
	}
	if d.Records != nil {
		opts = append(opts, session.WithRecords(d.Records))
	}
	if d.Observer != nil {
		opts = append(opts, session.WithObserver(d.Observer))
	}
	for _, l := range d.Listeners {
		opts = append(opts, session.WithListener(l))
	}
	return opts
}

// Factory builds a game from deps.
type Factory func(d Deps) (Game, error)

type registration struct {
	spec    GameSpec
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registration)
)

// RegisterGame adds a game to the registry.
func RegisterGame(spec GameSpec, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[spec.ID] = registration{spec: spec, factory: f}
}

// GetGame returns a registered game's spec.
func GetGame(id string) (GameSpec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[id]
	return r.spec, ok
}

// ListGames returns all registered specs ordered by id.
func ListGames() []GameSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]GameSpec, 0, len(registry))
	for _, r := range registry {
		specs = append(specs, r.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// New builds a registered game.
func New(id string, d Deps) (Game, error) {
	registryMu.RLock()
	r, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, id)
	}
	d = d.withDefaults()
	if err := d.Settings.Validate(); err != nil {
		return nil, err
	}
	return r.factory(d)
}

func init() {
	RegisterGame(quizSpec, newQuiz)
	RegisterGame(countingSpec, newCounting)
	RegisterGame(collectorSpec, newCollector)
	RegisterGame(simonSpec, newSimon)
	RegisterGame(bubblesSpec, newBubbles)
	RegisterGame(powerSpec, newPower)
	RegisterGame(rhythmSpec, newRhythm)
	RegisterGame(penaltySpec, newPenalty)
}

// base carries what every game shares: its spec, session and random source.
type base struct {
	spec GameSpec
	sess *session.Session
	src  *engine.Source
	pack *content.Pack
	deps Deps

	// state before the last refresh, restored by discard
	prevSrc  engine.Source
	prevPack *content.Pack
}

func newBase(spec GameSpec, d Deps) base {
	return base{
		spec: spec,
		src:  engine.NewSource(d.Seeds),
		pack: d.Content.Get(),
		deps: d,
	}
}

func (b *base) Spec() GameSpec            { return b.spec }
func (b *base) Start() error              { return b.sess.Start() }
func (b *base) Stop() bool                { return b.sess.Stop() }
func (b *base) View() session.View        { return b.sess.View() }
func (b *base) Session() *session.Session { return b.sess }
func (b *base) Close()                    { b.sess.Close() }

// refresh snapshots the content pack and moves the random source to a new
// nonce. It runs at the start of every run, under the session lock.
func (b *base) refresh() {
	b.prevSrc, b.prevPack = *b.src, b.pack
	b.pack = b.deps.Content.Get()
	b.src.Advance()
}

// discard undoes the last refresh after a rejected start.
func (b *base) discard() {
	*b.src, b.pack = b.prevSrc, b.prevPack
}

func (b *base) seedHash() string { return b.src.Seeds().ServerHash() }

// RotateSeeds is refused during a run so a live run's seed stays hidden.
func (b *base) RotateSeeds(next engine.Seeds) (SeedReveal, error) {
	if next.Server == "" {
		next = engine.RandomSeeds()
	}
	var out SeedReveal
	err := b.sess.Do(func(tx *session.Tx) error {
		if tx.Active() {
			return session.ErrAlreadyActive
		}
		old := b.src.Seeds()
		out = SeedReveal{
			ServerSeed:         old.Server,
			ClientSeed:         old.Client,
			ServerSeedHash:     old.ServerHash(),
			LastNonce:          b.src.Nonce(),
			NextServerSeedHash: next.ServerHash(),
		}
		b.src.Reseed(next)
		tx.Refresh()
		return nil
	})
	return out, err
}

// act runs fn for an active session.
func (b *base) act(fn func(tx *session.Tx) error) error {
	return b.sess.Do(func(tx *session.Tx) error {
		if !tx.Active() {
			return session.ErrNotActive
		}
		return fn(tx)
	})
}

func unsupported(game string, a Action) error {
	return fmt.Errorf("%w: %s does not accept %q", ErrUnsupportedAction, game, a.Type)
}
