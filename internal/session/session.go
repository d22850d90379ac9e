// Package session implements the timed mini-game lifecycle shared by every
// arcade game: start, present challenges, score input, end, persist the best
// result.
//
// A Session serialises player input and timer callbacks behind one mutex, so
// each game sees a single logical timeline. Game rules run inside a Tx, which
// is only valid for the duration of the callback that received it.
package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MJE43/emoji-arcade/internal/engine"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/metrics"
	"github.com/MJE43/emoji-arcade/internal/records"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

// recordTimeout bounds record store calls made while the session is locked.
const recordTimeout = 2 * time.Second

// Config holds the per-game lifecycle parameters.
type Config struct {
	GameID string
	// TimeLimit arms a deadline at start; zero means no deadline.
	TimeLimit time.Duration
	// ComboBonus is added per consecutive prior hit.
	ComboBonus int
	// RecordName is the record key suffix; empty disables record keeping.
	RecordName    string
	LowerIsBetter bool
	// RequireQueue makes Start fail with ErrNoChallenges on an empty plan.
	RequireQueue bool
	// ResetDelay returns an ended session to idle after the delay. With
	// AutoRestart the session starts again instead; a zero delay restarts
	// at once.
	ResetDelay  time.Duration
	AutoRestart bool
}

// Rules are the game-specific hooks. Every hook runs with the session
// locked and must only touch the session through the Tx it is given.
type Rules struct {
	// Plan produces the challenge queue for each start.
	Plan func() []Challenge
	// Discard runs when a start is rejected after Plan, so the game can
	// undo whatever Plan prepared.
	Discard func()
	// Setup runs at the end of Start, after state is reset and the deadline
	// armed. Typical use: present the first challenge or schedule spawns.
	Setup func(tx *Tx)
	// OnResolved runs after every resolution, including timeouts.
	OnResolved func(tx *Tx, r Resolution)
	// OnDeadline runs when the time limit elapses. Nil ends the session as
	// lost.
	OnDeadline func(tx *Tx)
	// OnEnd runs once per session after its timers are cancelled and before
	// the record is settled.
	OnEnd func(tx *Tx, o Outcome)
	// RecordValue derives the record candidate; nil uses the score. Return
	// false to skip the write-back.
	RecordValue func(s Summary) (int, bool)
	// Detail adds the game-specific part of the view. The Tx is read-only.
	Detail func(tx *Tx) any
	// SeedHash identifies the randomness used by the current run.
	SeedHash func() string
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for deadlines and lifetimes.
func WithClock(c engine.Clock) Option { return func(s *Session) { s.clock = c } }

// WithRecords sets the record book.
func WithRecords(b *records.Book) Option { return func(s *Session) { s.book = b } }

// WithPlayer sets the tone player.
func WithPlayer(p tone.Player) Option { return func(s *Session) { s.player = tone.Safe(p) } }

// WithObserver sets the view observer.
func WithObserver(o Observer) Option { return func(s *Session) { s.observer = o } }

// WithListener adds a lifecycle event listener.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listeners = append(s.listeners, l) }
}

// Session is one game instance.
type Session struct {
	mu sync.Mutex

	cfg       Config
	rules     Rules
	clock     engine.Clock
	book      *records.Book
	player    tone.Player
	observer  Observer
	listeners []Listener
	logger    zerolog.Logger

	id        string
	status    Status
	outcome   Outcome
	score     int
	combo     int
	bestCombo int
	hits      int
	misses    int
	record    int
	improved  bool // shown in views; survives an immediate restart
	runBest   bool // the current run improved the record
	startedAt time.Time
	endedAt   time.Time
	deadline  time.Time
	message   Message

	queue       []Challenge
	cursor      int
	outstanding []Challenge
	lifetimes   map[string]uint64
	resolved    map[string]bool
	seq         int

	gen      uint64
	timerSeq uint64
	timers   map[uint64]engine.Timer

	version uint64
}

// New builds an idle session and loads its current record.
func New(cfg Config, rules Rules, opts ...Option) *Session {
	s := &Session{
		cfg:       cfg,
		rules:     rules,
		clock:     engine.RealClock{},
		player:    tone.Nop{},
		status:    StatusIdle,
		timers:    make(map[uint64]engine.Timer),
		lifetimes: make(map[string]uint64),
		resolved:  make(map[string]bool),
		logger:    xlog.WithGame("session", cfg.GameID),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.book != nil && cfg.RecordName != "" {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		s.record = s.book.Int(ctx, cfg.RecordName, 0)
		cancel()
	}
	return s
}

// Game returns the game id.
func (s *Session) Game() string { return s.cfg.GameID }

// Config returns the lifecycle configuration.
func (s *Session) Config() Config { return s.cfg }

// Start begins a new run. It fails without mutating state when the session
// is already active or when a queue is required and the plan is empty. An
// ended session may be started directly; its pending timers are cancelled.
func (s *Session) Start() error {
	return s.Do(func(tx *Tx) error {
		return tx.start(false)
	})
}

// Stop ends an active session as stopped. It reports whether a session was
// ended by this call.
func (s *Session) Stop() bool {
	var ended bool
	_ = s.Do(func(tx *Tx) error {
		ended = tx.End(OutcomeStopped)
		return nil
	})
	return ended
}

// Reset returns the session to idle, cancelling every timer.
func (s *Session) Reset() {
	_ = s.Do(func(tx *Tx) error {
		tx.reset()
		return nil
	})
}

// Close stops the session and cancels every timer. Views are still emitted.
func (s *Session) Close() {
	_ = s.Do(func(tx *Tx) error {
		tx.End(OutcomeStopped)
		s.cancelAllLocked()
		return nil
	})
}

// Do runs fn as one transition. Tones, events and the resulting view are
// delivered after the lock is released, in that order.
func (s *Session) Do(fn func(tx *Tx) error) error {
	deliver, err := s.apply(&Tx{s: s}, fn)
	deliver()
	return err
}

// apply runs fn with the session locked and returns the delivery of what it
// produced. The lock is released even if a hook panics.
func (s *Session) apply(tx *Tx, fn func(tx *Tx) error) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(tx)
	return s.pendingLocked(tx), err
}

// View returns the current snapshot without emitting it.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(nil)
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Record returns the best value known to the session.
func (s *Session) Record() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// PendingTimers reports how many timers the session still owns.
func (s *Session) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Session) viewLocked(tones []tone.Tone) View {
	v := View{
		Version:        s.version,
		Game:           s.cfg.GameID,
		SessionID:      s.id,
		Status:         s.status,
		Outcome:        s.outcome,
		Score:          s.score,
		Combo:          s.combo,
		BestCombo:      s.bestCombo,
		Hits:           s.hits,
		Misses:         s.misses,
		Record:         s.record,
		RecordImproved: s.improved,
		Cursor:         s.cursor,
		Total:          len(s.queue),
		Challenges:     append([]Challenge{}, s.outstanding...),
		Message:        s.message,
		Tones:          tones,
	}
	if s.status == StatusActive && !s.deadline.IsZero() {
		if rem := s.deadline.Sub(s.clock.Now()); rem > 0 {
			v.RemainingMs = rem.Milliseconds()
		}
	}
	if s.rules.Detail != nil {
		v.Detail = s.rules.Detail(&Tx{s: s})
	}
	return v
}

func (s *Session) pendingLocked(tx *Tx) func() {
	var view View
	if tx.dirty {
		s.version++
		view = s.viewLocked(tx.tones)
	}
	player, observer, listeners := s.player, s.observer, s.listeners
	return func() {
		for _, t := range tx.tones {
			player.Play(t)
		}
		for _, e := range tx.events {
			for _, l := range listeners {
				l.OnEvent(e)
			}
		}
		if tx.dirty && observer != nil {
			observer.Render(view)
		}
	}
}

// schedule registers a generation-stamped timer. The callback is dropped if
// the session was restarted or reset, or the timer cancelled, before it runs.
func (s *Session) scheduleLocked(d time.Duration, fn func(tx *Tx)) uint64 {
	s.timerSeq++
	id, gen := s.timerSeq, s.gen
	s.timers[id] = s.clock.AfterFunc(d, func() {
		deliver, _ := s.apply(&Tx{s: s}, func(tx *Tx) error {
			if s.gen != gen {
				return nil
			}
			if _, ok := s.timers[id]; !ok {
				return nil
			}
			delete(s.timers, id)
			tx.touch()
			fn(tx)
			return nil
		})
		deliver()
	})
	return id
}

func (s *Session) cancelLocked(id uint64) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Session) cancelAllLocked() {
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	for id := range s.lifetimes {
		delete(s.lifetimes, id)
	}
}

// Tx is the locked view of a session handed to game rules.
type Tx struct {
	s      *Session
	dirty  bool
	tones  []tone.Tone
	events []Event
}

func (tx *Tx) touch() { tx.dirty = true }

// Refresh marks the view as changed by state the session does not own, such
// as the game's seeds.
func (tx *Tx) Refresh() { tx.touch() }

// Game returns the game id.
func (tx *Tx) Game() string { return tx.s.cfg.GameID }

// Status returns the lifecycle state.
func (tx *Tx) Status() Status { return tx.s.status }

// Active reports whether the session is active.
func (tx *Tx) Active() bool { return tx.s.status == StatusActive }

// Score returns the current score.
func (tx *Tx) Score() int { return tx.s.score }

// Combo returns the current consecutive-hit count.
func (tx *Tx) Combo() int { return tx.s.combo }

// Record returns the best known record value.
func (tx *Tx) Record() int { return tx.s.record }

// Now returns the session clock time.
func (tx *Tx) Now() time.Time { return tx.s.clock.Now() }

// Elapsed returns the time since the run started.
func (tx *Tx) Elapsed() time.Duration {
	if tx.s.startedAt.IsZero() {
		return 0
	}
	end := tx.s.clock.Now()
	if tx.s.status == StatusEnded {
		end = tx.s.endedAt
	}
	return end.Sub(tx.s.startedAt)
}

// Cursor returns how many queued challenges have been presented.
func (tx *Tx) Cursor() int { return tx.s.cursor }

// QueueLen returns the size of the queue for this run.
func (tx *Tx) QueueLen() int { return len(tx.s.queue) }

// Say sets the player-facing message.
func (tx *Tx) Say(text string, mood Mood) {
	tx.s.message = Message{Text: text, Mood: mood}
	tx.touch()
}

// Play queues a tone for delivery after the transition.
func (tx *Tx) Play(t tone.Tone) {
	tx.tones = append(tx.tones, t.Normalize())
	tx.touch()
}

// PlaySequence plays the first tone now and each following tone step later
// than the previous one.
func (tx *Tx) PlaySequence(step time.Duration, tones ...tone.Tone) {
	for i, t := range tones {
		t := t
		if i == 0 {
			tx.Play(t)
			continue
		}
		tx.After(time.Duration(i)*step, func(tx *Tx) { tx.Play(t) })
	}
}

// After schedules fn on the session timeline. The returned id can be passed
// to Cancel.
func (tx *Tx) After(d time.Duration, fn func(tx *Tx)) uint64 {
	return tx.s.scheduleLocked(d, fn)
}

// Cancel stops a timer created by After.
func (tx *Tx) Cancel(id uint64) { tx.s.cancelLocked(id) }

// Award adds points outside any challenge. Negative totals clamp to zero.
func (tx *Tx) Award(points int) {
	tx.SetScore(tx.s.score + points)
}

// SetScore replaces the score, clamped to zero.
func (tx *Tx) SetScore(score int) {
	if score < 0 {
		score = 0
	}
	tx.s.score = score
	tx.touch()
}

// Outstanding returns the presented, unresolved challenges in presentation
// order.
func (tx *Tx) Outstanding() []Challenge {
	return append([]Challenge{}, tx.s.outstanding...)
}

// Current returns the oldest outstanding challenge.
func (tx *Tx) Current() (Challenge, bool) {
	if len(tx.s.outstanding) == 0 {
		return Challenge{}, false
	}
	return tx.s.outstanding[0], true
}

// Lookup returns an outstanding challenge by id.
func (tx *Tx) Lookup(id string) (Challenge, bool) {
	if i := tx.s.indexLocked(id); i >= 0 {
		return tx.s.outstanding[i], true
	}
	return Challenge{}, false
}

// Next presents the next queued challenge. It reports false when the queue
// is exhausted or the session is not active.
func (tx *Tx) Next() (Challenge, bool) {
	s := tx.s
	if s.status != StatusActive || s.cursor >= len(s.queue) {
		return Challenge{}, false
	}
	ch := s.queue[s.cursor]
	s.cursor++
	return tx.Present(ch), true
}

// Present makes ch outstanding, stamping its id and presentation time. A
// challenge with a lifetime resolves as a timeout when it elapses.
func (tx *Tx) Present(ch Challenge) Challenge {
	s := tx.s
	if s.status != StatusActive {
		return ch
	}
	s.seq++
	if ch.ID == "" {
		ch.ID = ch.Kind + "-" + strconv.Itoa(s.seq)
	}
	ch.PresentedAt = s.clock.Now()
	s.outstanding = append(s.outstanding, ch)
	if ch.Lifetime > 0 {
		id := ch.ID
		s.lifetimes[id] = s.scheduleLocked(ch.Lifetime, func(tx *Tx) {
			delete(tx.s.lifetimes, id)
			_, _ = tx.resolve(id, ResultTimeout, 0, "")
		})
	}
	tx.touch()
	return ch
}

// Hit resolves a challenge as a hit worth points before the combo bonus.
func (tx *Tx) Hit(id string, points int, tier string) (Resolution, error) {
	return tx.resolve(id, ResultHit, points, tier)
}

// Miss resolves a challenge as a miss.
func (tx *Tx) Miss(id string) (Resolution, error) {
	return tx.resolve(id, ResultMiss, 0, "")
}

// Discard removes an outstanding challenge without scoring it.
func (tx *Tx) Discard(id string) bool {
	s := tx.s
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.outstanding = append(s.outstanding[:i], s.outstanding[i+1:]...)
	if t, ok := s.lifetimes[id]; ok {
		s.cancelLocked(t)
		delete(s.lifetimes, id)
	}
	tx.touch()
	return true
}

func (tx *Tx) resolve(id string, result Result, points int, tier string) (Resolution, error) {
	s := tx.s
	if s.status != StatusActive {
		return Resolution{}, ErrNotActive
	}
	if s.resolved[id] {
		return Resolution{}, ErrAlreadyResolved
	}
	i := s.indexLocked(id)
	if i < 0 {
		return Resolution{}, ErrUnknownChallenge
	}
	ch := s.outstanding[i]
	s.outstanding = append(s.outstanding[:i], s.outstanding[i+1:]...)
	if t, ok := s.lifetimes[id]; ok {
		s.cancelLocked(t)
		delete(s.lifetimes, id)
	}
	s.resolved[id] = true

	r := Resolution{
		ChallengeID: id,
		Kind:        ch.Kind,
		Result:      result,
		Tier:        tier,
		ComboBefore: s.combo,
		At:          s.clock.Now(),
	}
	if result == ResultHit {
		if points < 0 {
			points = 0
		}
		r.Points = points
		r.Awarded = points + s.combo*s.cfg.ComboBonus
		s.score += r.Awarded
		s.combo++
		s.hits++
		if s.combo > s.bestCombo {
			s.bestCombo = s.combo
		}
	} else {
		s.combo = 0
		s.misses++
	}

	metrics.ChallengeResolved(s.cfg.GameID, string(result))
	tx.events = append(tx.events, Event{
		Kind:       EventResolved,
		Game:       s.cfg.GameID,
		SessionID:  s.id,
		Resolution: &r,
	})
	tx.touch()

	if s.rules.OnResolved != nil {
		s.rules.OnResolved(tx, r)
	}
	return r, nil
}

// Begin starts a run from inside a transition, with the same preconditions
// as Session.Start.
func (tx *Tx) Begin() error { return tx.start(false) }

// Checkpoint offers value to the record mid-run.
func (tx *Tx) Checkpoint(value int) bool {
	return tx.s.improveLocked(value)
}

// End settles an active session. It is idempotent: only the first call per
// run has any effect, and it reports whether this call ended the session.
func (tx *Tx) End(o Outcome) bool {
	s := tx.s
	if s.status != StatusActive {
		return false
	}
	s.cancelAllLocked()
	s.outstanding = nil
	s.status = StatusEnded
	s.outcome = o
	s.endedAt = s.clock.Now()
	s.deadline = time.Time{}
	tx.touch()

	s.logger.Debug().
		Str(xlog.FieldSessionID, s.id).
		Str(xlog.FieldOldState, string(StatusActive)).
		Str(xlog.FieldNewState, string(StatusEnded)).
		Str("outcome", string(o)).
		Int("score", s.score).
		Msg("session ended")

	if s.rules.OnEnd != nil {
		s.rules.OnEnd(tx, o)
	}

	sum := s.summaryLocked()
	value, ok := sum.Score, true
	if s.rules.RecordValue != nil {
		value, ok = s.rules.RecordValue(sum)
	}
	if ok {
		s.improveLocked(value)
	}
	s.improved = s.runBest

	metrics.SessionEnded(s.cfg.GameID, string(o))
	tx.events = append(tx.events, Event{
		Kind:      EventEnded,
		Game:      s.cfg.GameID,
		SessionID: s.id,
		Summary:   &sum,
		SeedHash:  s.seedHashLocked(),
	})

	// A stopped run stays stopped.
	restart := s.cfg.AutoRestart && o != OutcomeStopped
	switch {
	case s.cfg.ResetDelay > 0:
		s.scheduleLocked(s.cfg.ResetDelay, func(tx *Tx) {
			if restart {
				_ = tx.start(false)
				return
			}
			tx.reset()
		})
	case restart:
		_ = tx.start(true)
	}
	return true
}

// start begins a run. An immediate restart keeps the previous run's message
// and record flag so the surface can still show how it ended. A rejected
// start leaves the session as it was.
func (tx *Tx) start(keepFeedback bool) error {
	s := tx.s
	if s.status == StatusActive {
		return ErrAlreadyActive
	}
	var queue []Challenge
	if s.rules.Plan != nil {
		queue = s.rules.Plan()
	}
	if s.cfg.RequireQueue && len(queue) == 0 {
		if s.rules.Discard != nil {
			s.rules.Discard()
		}
		return ErrNoChallenges
	}

	s.cancelAllLocked()
	s.gen++
	s.id = uuid.NewString()
	s.status = StatusActive
	s.outcome = OutcomeNone
	s.score, s.combo, s.bestCombo, s.hits, s.misses = 0, 0, 0, 0, 0
	if !keepFeedback {
		s.improved = false
		s.message = Message{}
	}
	s.runBest = false
	s.queue = queue
	s.cursor = 0
	s.outstanding = nil
	s.resolved = make(map[string]bool)
	s.seq = 0
	s.startedAt = s.clock.Now()
	s.endedAt = time.Time{}
	s.deadline = time.Time{}
	if s.cfg.TimeLimit > 0 {
		s.deadline = s.startedAt.Add(s.cfg.TimeLimit)
		s.scheduleLocked(s.cfg.TimeLimit, func(tx *Tx) {
			if !tx.Active() {
				return
			}
			if tx.s.rules.OnDeadline != nil {
				tx.s.rules.OnDeadline(tx)
				return
			}
			tx.End(OutcomeLost)
		})
	}
	tx.touch()

	metrics.SessionStarted(s.cfg.GameID)
	s.logger.Debug().
		Str(xlog.FieldSessionID, s.id).
		Str(xlog.FieldNewState, string(StatusActive)).
		Int("queue", len(queue)).
		Msg("session started")
	tx.events = append(tx.events, Event{
		Kind:      EventStarted,
		Game:      s.cfg.GameID,
		SessionID: s.id,
		SeedHash:  s.seedHashLocked(),
	})

	if s.rules.Setup != nil {
		s.rules.Setup(tx)
	}
	return nil
}

func (tx *Tx) reset() {
	s := tx.s
	if s.status == StatusActive {
		tx.End(OutcomeStopped)
	}
	s.cancelAllLocked()
	s.gen++
	s.status = StatusIdle
	s.outstanding = nil
	s.deadline = time.Time{}
	tx.touch()
}

func (s *Session) improveLocked(value int) bool {
	if s.book == nil || s.cfg.RecordName == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	best, improved := s.book.Improve(ctx, s.cfg.RecordName, value, s.cfg.LowerIsBetter)
	s.record = best
	if improved {
		s.runBest = true
		s.improved = true
	}
	return improved
}

func (s *Session) summaryLocked() Summary {
	return Summary{
		Game:      s.cfg.GameID,
		SessionID: s.id,
		Outcome:   s.outcome,
		Score:     s.score,
		Hits:      s.hits,
		Misses:    s.misses,
		BestCombo: s.bestCombo,
		StartedAt: s.startedAt,
		Elapsed:   s.endedAt.Sub(s.startedAt),
	}
}

func (s *Session) seedHashLocked() string {
	if s.rules.SeedHash == nil {
		return ""
	}
	return s.rules.SeedHash()
}

func (s *Session) indexLocked(id string) int {
	for i, ch := range s.outstanding {
		if ch.ID == id {
			return i
		}
	}
	return -1
}
