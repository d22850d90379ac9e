package autoplay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MJE43/emoji-arcade/internal/games"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/session"
)

// ErrNotChoiceGame is returned for games without option challenges.
var ErrNotChoiceGame = errors.New("autoplay: game has no option challenges")

// ErrRunning is returned when starting a runner twice.
var ErrRunning = errors.New("autoplay: already running")

// State is the runner lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// Config bounds a runner.
type Config struct {
	Timeout  time.Duration // per choose() call
	Delay    time.Duration // between polls
	MaxMoves int           // 0 means unlimited
}

// Snapshot is a serialisable view of a runner.
type Snapshot struct {
	Game  string     `json:"game"`
	State State      `json:"state"`
	Error string     `json:"error,omitempty"`
	Moves int        `json:"moves"`
	Logs  []LogEntry `json:"logs,omitempty"`
}

// Runner feeds a game's challenges to a strategy and plays its answers.
type Runner struct {
	game   games.Game
	cfg    Config
	logger zerolog.Logger

	mu     sync.RWMutex
	state  State
	err    error
	moves  int
	vm     *VM
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner binds a runner to a discrete-choice game.
func NewRunner(g games.Game, cfg Config) (*Runner, error) {
	if !g.Spec().Choice {
		return nil, fmt.Errorf("%w: %s", ErrNotChoiceGame, g.Spec().ID)
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 200 * time.Millisecond
	}
	return &Runner{
		game:   g,
		cfg:    cfg,
		logger: xlog.WithGame("autoplay", g.Spec().ID),
		state:  StateIdle,
	}, nil
}

// Load compiles a strategy without starting the loop.
func (r *Runner) Load(script string) error {
	vm := NewVM(r.cfg.Timeout)
	if err := vm.Execute(script); err != nil {
		return err
	}
	r.mu.Lock()
	r.vm = vm
	r.moves = 0
	r.err = nil
	r.mu.Unlock()
	return nil
}

// Start loads script, starts the game if it is idle and plays until the
// game ends, the strategy calls stop(), MaxMoves is reached or Stop is called.
// Only one loop runs per runner; concurrent calls get ErrRunning.
func (r *Runner) Start(ctx context.Context, script string) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.mu.Lock()
	if r.state == StateRunning {
		r.mu.Unlock()
		cancel()
		return ErrRunning
	}
	r.state = StateRunning
	r.cancel, r.done = cancel, done
	r.mu.Unlock()

	abort := func(err error) error {
		cancel()
		close(done)
		r.fail(err)
		return err
	}
	if err := r.Load(script); err != nil {
		return abort(err)
	}
	if err := r.game.Start(); err != nil && !errors.Is(err, session.ErrAlreadyActive) {
		return abort(err)
	}

	r.logger.Info().Msg("autoplay started")
	go r.loop(ctx, done)
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.cfg.Delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.finish(StateStopped)
			return
		case <-ticker.C:
		}
		if _, err := r.Step(); err != nil {
			r.fail(err)
			return
		}
		if r.finished() {
			r.finish(StateStopped)
			return
		}
	}
}

func (r *Runner) finished() bool {
	r.mu.RLock()
	vm, moves := r.vm, r.moves
	r.mu.RUnlock()
	if vm != nil && vm.StopRequested() {
		return true
	}
	if r.cfg.MaxMoves > 0 && moves >= r.cfg.MaxMoves {
		return true
	}
	return r.game.View().Status == session.StatusEnded
}

// Step answers the current challenge if one is waiting. It reports whether
// an answer was played.
func (r *Runner) Step() (bool, error) {
	r.mu.RLock()
	vm := r.vm
	r.mu.RUnlock()
	if vm == nil {
		return false, ErrNoChoose
	}

	v := r.game.View()
	if v.Status != session.StatusActive || len(v.Challenges) == 0 {
		return false, nil
	}
	d, ok := v.Detail.(games.ChoiceDetail)
	if !ok || d.Answer != nil {
		return false, nil
	}

	choice, err := vm.Choose(Prompt{
		Game:    v.Game,
		Index:   d.Index,
		Total:   d.Total,
		Prompt:  d.Prompt,
		Emoji:   d.Emoji,
		Options: d.Options,
		Score:   v.Score,
		Combo:   v.Combo,
		Record:  v.Record,
	})
	if err != nil {
		return false, err
	}
	err = r.game.Act(games.Action{Type: games.ActionAnswer, ChallengeID: v.Challenges[0].ID, Option: choice})
	switch {
	case errors.Is(err, session.ErrAlreadyResolved), errors.Is(err, session.ErrNotActive), errors.Is(err, games.ErrNotReady):
		// The challenge moved on between the view and the answer.
		return false, nil
	case err != nil:
		return false, err
	}

	r.mu.Lock()
	r.moves++
	r.mu.Unlock()
	return true, nil
}

func (r *Runner) fail(err error) {
	r.mu.Lock()
	r.state = StateError
	r.err = err
	r.mu.Unlock()
	r.logger.Warn().Err(err).Msg("autoplay failed")
}

func (r *Runner) finish(s State) {
	r.mu.Lock()
	if r.state == StateRunning {
		r.state = s
	}
	moves := r.moves
	r.mu.Unlock()
	r.logger.Info().Int("moves", moves).Msg("autoplay stopped")
}

// Snapshot returns the runner state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{Game: r.game.Spec().ID, State: r.state, Moves: r.moves}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	if r.vm != nil {
		s.Logs = r.vm.Logs()
	}
	return s
}
