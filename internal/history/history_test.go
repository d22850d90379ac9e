package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/MJE43/emoji-arcade/internal/engine"
	"github.com/MJE43/emoji-arcade/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(t.Context()))
	t.Cleanup(func() { store.Close() })
	return store
}

var t0 = time.UnixMilli(1_700_000_000_000)

func summary(id, game string, outcome session.Outcome, score, hits, misses int) session.Summary {
	return session.Summary{
		Game:      game,
		SessionID: id,
		Outcome:   outcome,
		Score:     score,
		Hits:      hits,
		Misses:    misses,
		BestCombo: hits,
		StartedAt: t0,
		Elapsed:   12 * time.Second,
	}
}

func TestCreateEndAndGetSession(t *testing.T) {
	store := testStore(t)
	ctx := t.Context()

	id, err := store.CreateSession(ctx, &Session{Game: "quiz", SeedHash: "abc"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.State)
	assert.Nil(t, got.EndedAt)

	require.NoError(t, store.EndSession(ctx, summary(id, "quiz", session.OutcomeCompleted, 9, 9, 3), t0.Add(12*time.Second)))
	got, err = store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateEnded, got.State)
	assert.Equal(t, "completed", got.Outcome)
	assert.Equal(t, 9, got.Score)
	assert.Equal(t, int64(12000), got.ElapsedMs)
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(t0.Add(12*time.Second)))

	_, err = store.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.EndSession(ctx, summary("nope", "quiz", session.OutcomeLost, 0, 0, 0), t0), ErrNotFound)
}

func TestListSessionsFiltersAndPages(t *testing.T) {
	store := testStore(t)
	ctx := t.Context()
	for i := 0; i < 5; i++ {
		game := "quiz"
		if i%2 == 1 {
			game = "simon"
		}
		_, err := store.CreateSession(ctx, &Session{Game: game, StartedAt: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	all, total, err := store.ListSessions(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, all, 2)
	assert.True(t, all[0].StartedAt.After(all[1].StartedAt), "newest first")

	quiz, total, err := store.ListSessions(ctx, Filter{Game: "quiz"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, quiz, 3)
}

func TestResolutionsPagination(t *testing.T) {
	store := testStore(t)
	ctx := t.Context()
	id, err := store.CreateSession(ctx, &Session{Game: "rhythm"})
	require.NoError(t, err)

	var rs []Resolution
	for i := 1; i <= 7; i++ {
		rs = append(rs, Resolution{Seq: i, ChallengeID: "note-" + string(rune('0'+i)), Kind: "note", Result: "hit", Points: 100, Awarded: 100, At: t0})
	}
	require.NoError(t, store.InsertResolutionsBatch(ctx, id, rs))

	page, err := store.GetResolutions(ctx, id, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Resolutions, 3)
	assert.Equal(t, 4, page.Resolutions[0].Seq)

	require.NoError(t, store.DeleteSession(ctx, id))
	page, err = store.GetResolutions(ctx, id, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount, "resolutions cascade with their session")
	assert.ErrorIs(t, store.DeleteSession(ctx, id), ErrNotFound)
}

func TestStats(t *testing.T) {
	store := testStore(t)
	ctx := t.Context()
	for _, s := range []session.Summary{
		summary("a", "quiz", session.OutcomeCompleted, 10, 10, 2),
		summary("b", "quiz", session.OutcomeCompleted, 5, 5, 7),
		summary("c", "quiz", session.OutcomeStopped, 0, 0, 0),
		summary("d", "simon", session.OutcomeFailed, 4, 4, 1),
	} {
		_, err := store.CreateSession(ctx, &Session{ID: s.SessionID, Game: s.Game})
		require.NoError(t, err)
		require.NoError(t, store.EndSession(ctx, s, t0))
	}
	_, err := store.CreateSession(ctx, &Session{Game: "quiz"})
	require.NoError(t, err)

	st, err := store.Stats(ctx, "quiz")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Sessions, "running sessions are excluded")
	assert.Equal(t, 15, st.Hits)
	assert.Equal(t, 9, st.Misses)
	assert.Equal(t, 10, st.BestScore)
	assert.True(t, st.Accuracy.Equal(decimal.RequireFromString("0.625")), st.Accuracy.String())
	assert.True(t, st.AverageScore.Equal(decimal.RequireFromString("5")), st.AverageScore.String())
	assert.Equal(t, map[string]int{"completed": 2, "stopped": 1}, st.Outcomes)

	all, err := store.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, all.Sessions)
}

func TestAccuracyRounding(t *testing.T) {
	assert.True(t, Accuracy(0, 0).IsZero())
	assert.Equal(t, "0.6667", Accuracy(2, 1).String())
}

func TestRecorderPersistsSessionLifecycle(t *testing.T) {
	store := testStore(t)
	rec := NewRecorder(store, 64, 2)

	clock := engine.NewManualClock(t0)
	sess := session.New(session.Config{GameID: "quiz", RecordName: "quiz_record", RequireQueue: true},
		session.Rules{
			Plan: func() []session.Challenge {
				return []session.Challenge{{Kind: "q"}, {Kind: "q"}, {Kind: "q"}}
			},
			Setup: func(tx *session.Tx) { tx.Next() },
		},
		session.WithClock(clock), session.WithListener(rec))
	defer sess.Close()

	require.NoError(t, sess.Start())
	id := sess.View().SessionID
	for _, hit := range []bool{true, false, true} {
		require.NoError(t, sess.Do(func(tx *session.Tx) error {
			ch, _ := tx.Current()
			var err error
			if hit {
				_, err = tx.Hit(ch.ID, 1, "")
			} else {
				_, err = tx.Miss(ch.ID)
			}
			tx.Next()
			return err
		}))
		clock.Advance(time.Second)
	}
	require.True(t, sess.Stop())
	rec.Close()
	assert.Zero(t, rec.Dropped())

	got, err := store.GetSession(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, StateEnded, got.State)
	assert.Equal(t, "stopped", got.Outcome)
	assert.Equal(t, 2, got.Score)
	assert.Equal(t, 2, got.Hits)
	assert.Equal(t, 1, got.Misses)

	page, err := store.GetResolutions(t.Context(), id, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Resolutions, 3)
	assert.Equal(t, []string{"hit", "miss", "hit"},
		[]string{page.Resolutions[0].Result, page.Resolutions[1].Result, page.Resolutions[2].Result})

	// Closed recorders ignore late events.
	rec.OnEvent(session.Event{Kind: session.EventStarted, SessionID: "late", Game: "quiz"})
	_, err = store.GetSession(t.Context(), "late")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecorderDropsWhenQueueIsFull(t *testing.T) {
	store := testStore(t)
	// Holding the only connection stalls the worker on its first write.
	tx, err := store.db.BeginTx(t.Context(), nil)
	require.NoError(t, err)

	rec := NewRecorder(store, 1, 10)
	for i := 0; i < 3; i++ {
		rec.OnEvent(session.Event{Kind: session.EventStarted, SessionID: "s" + string(rune('0'+i)), Game: "quiz"})
	}
	assert.Positive(t, rec.Dropped())

	require.NoError(t, tx.Rollback())
	rec.Close()
}
