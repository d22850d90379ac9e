package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/session"
)

const writeTimeout = 5 * time.Second

// Recorder is a session.Listener that persists lifecycle events. Events are
// queued and written by a single worker so sessions never wait on the
// database; when the queue is full, events are dropped and counted.
type Recorder struct {
	store     *Store
	logger    zerolog.Logger
	flushSize int

	mu     sync.RWMutex
	closed bool
	events chan session.Event
	done   chan struct{}

	dropped atomic.Int64

	// worker state
	known   map[string]bool
	pending map[string][]Resolution
	seq     map[string]int
}

// NewRecorder starts a recorder. bufferSize bounds the event queue and
// flushSize the number of resolutions batched per insert.
func NewRecorder(store *Store, bufferSize, flushSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if flushSize <= 0 {
		flushSize = 50
	}
	r := &Recorder{
		store:     store,
		logger:    xlog.WithComponent("history"),
		flushSize: flushSize,
		events:    make(chan session.Event, bufferSize),
		done:      make(chan struct{}),
		known:     make(map[string]bool),
		pending:   make(map[string][]Resolution),
		seq:       make(map[string]int),
	}
	go r.run()
	return r
}

// OnEvent queues e without blocking.
func (r *Recorder) OnEvent(e session.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- e:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn().Str(xlog.FieldGame, e.Game).Int64("dropped", n).Msg("history queue full, dropping events")
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close drains the queue, flushes buffered resolutions and stops the worker.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.events {
		r.handle(e)
	}
	for id := range r.pending {
		r.flush(id)
	}
}

func (r *Recorder) handle(e session.Event) {
	switch e.Kind {
	case session.EventStarted:
		r.ensure(e)
	case session.EventResolved:
		if e.Resolution == nil {
			return
		}
		r.ensure(e)
		r.seq[e.SessionID]++
		res := e.Resolution
		r.pending[e.SessionID] = append(r.pending[e.SessionID], Resolution{
			SessionID:   e.SessionID,
			Seq:         r.seq[e.SessionID],
			ChallengeID: res.ChallengeID,
			Kind:        res.Kind,
			Result:      string(res.Result),
			Tier:        res.Tier,
			Points:      res.Points,
			Awarded:     res.Awarded,
			ComboBefore: res.ComboBefore,
			At:          res.At,
		})
		if len(r.pending[e.SessionID]) >= r.flushSize {
			r.flush(e.SessionID)
		}
	case session.EventEnded:
		if e.Summary == nil {
			return
		}
		r.ensure(e)
		r.flush(e.SessionID)
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		endedAt := e.Summary.StartedAt.Add(e.Summary.Elapsed)
		if err := r.store.EndSession(ctx, *e.Summary, endedAt); err != nil {
			r.logger.Warn().Err(err).Str(xlog.FieldSessionID, e.SessionID).Msg("end session failed")
		}
		delete(r.known, e.SessionID)
		delete(r.seq, e.SessionID)
	}
}

func (r *Recorder) ensure(e session.Event) {
	if r.known[e.SessionID] {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	sess := &Session{ID: e.SessionID, Game: e.Game, SeedHash: e.SeedHash}
	if e.Summary != nil {
		sess.StartedAt = e.Summary.StartedAt
	}
	if _, err := r.store.CreateSession(ctx, sess); err != nil {
		r.logger.Warn().Err(err).Str(xlog.FieldSessionID, e.SessionID).Msg("create session failed")
		return
	}
	r.known[e.SessionID] = true
}

func (r *Recorder) flush(sessionID string) {
	batch := r.pending[sessionID]
	delete(r.pending, sessionID)
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.InsertResolutionsBatch(ctx, sessionID, batch); err != nil {
		r.logger.Warn().Err(err).Str(xlog.FieldSessionID, sessionID).Int("count", len(batch)).Msg("flush resolutions failed")
	}
}
