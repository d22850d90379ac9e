// Package history persists settled arcade sessions and their resolutions.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MJE43/emoji-arcade/internal/session"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("history: session not found")

// State of a stored session.
const (
	StateRunning = "running"
	StateEnded   = "ended"
)

// Session is one stored run.
type Session struct {
	ID        string     `json:"id"`
	Game      string     `json:"game"`
	SeedHash  string     `json:"seedHash,omitempty"`
	State     string     `json:"state"`
	Outcome   string     `json:"outcome,omitempty"`
	Score     int        `json:"score"`
	Hits      int        `json:"hits"`
	Misses    int        `json:"misses"`
	BestCombo int        `json:"bestCombo"`
	ElapsedMs int64      `json:"elapsedMs"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Resolution is one stored challenge resolution.
type Resolution struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"sessionId"`
	Seq         int       `json:"seq"`
	ChallengeID string    `json:"challengeId"`
	Kind        string    `json:"kind"`
	Result      string    `json:"result"`
	Tier        string    `json:"tier,omitempty"`
	Points      int       `json:"points"`
	Awarded     int       `json:"awarded"`
	ComboBefore int       `json:"comboBefore"`
	At          time.Time `json:"at"`
}

// ResolutionsPage is a paginated resolutions response.
type ResolutionsPage struct {
	Resolutions []Resolution `json:"resolutions"`
	TotalCount  int          `json:"totalCount"`
	Page        int          `json:"page"`
	PerPage     int          `json:"perPage"`
	TotalPages  int          `json:"totalPages"`
}

// Filter narrows ListSessions.
type Filter struct {
	Game   string
	Limit  int
	Offset int
}

// Store provides SQLite persistence for session history.
type Store struct {
	db *sql.DB
}

// New opens the history database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	// One writer keeps the recorder and API reads from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// Migrate creates the history tables.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS arcade_sessions (
			id TEXT PRIMARY KEY,
			game TEXT NOT NULL,
			seed_hash TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'running',
			outcome TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			hits INTEGER NOT NULL DEFAULT 0,
			misses INTEGER NOT NULL DEFAULT 0,
			best_combo INTEGER NOT NULL DEFAULT 0,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_arcade_sessions_game ON arcade_sessions(game, started_at)`,
		`CREATE TABLE IF NOT EXISTS arcade_resolutions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			challenge_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			result TEXT NOT NULL,
			tier TEXT NOT NULL DEFAULT '',
			points INTEGER NOT NULL DEFAULT 0,
			awarded INTEGER NOT NULL DEFAULT 0,
			combo_before INTEGER NOT NULL DEFAULT 0,
			at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES arcade_sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_arcade_resolutions_session ON arcade_resolutions(session_id, seq)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("history: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession inserts a running session. Inserting an id twice is a no-op.
func (s *Store) CreateSession(ctx context.Context, sess *Session) (string, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO arcade_sessions (id, game, seed_hash, state, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Game, sess.SeedHash, StateRunning, sess.StartedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("history: create session: %w", err)
	}
	return sess.ID, nil
}

// EndSession stores the settled summary of a session.
func (s *Store) EndSession(ctx context.Context, sum session.Summary, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE arcade_sessions SET
			state = ?, outcome = ?, score = ?, hits = ?, misses = ?,
			best_combo = ?, elapsed_ms = ?, started_at = ?, ended_at = ?
		 WHERE id = ?`,
		StateEnded, string(sum.Outcome), sum.Score, sum.Hits, sum.Misses,
		sum.BestCombo, sum.Elapsed.Milliseconds(), sum.StartedAt.UnixMilli(), endedAt.UnixMilli(),
		sum.SessionID,
	)
	if err != nil {
		return fmt.Errorf("history: end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, sum.SessionID)
	}
	return nil
}

// InsertResolutionsBatch records resolutions in a single transaction.
func (s *Store) InsertResolutionsBatch(ctx context.Context, sessionID string, rs []Resolution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO arcade_resolutions
			(session_id, seq, challenge_id, kind, result, tier, points, awarded, combo_before, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rs {
		_, err := stmt.ExecContext(ctx, sessionID, r.Seq, r.ChallengeID, r.Kind, r.Result, r.Tier,
			r.Points, r.Awarded, r.ComboBefore, r.At.UnixMilli())
		if err != nil {
			return fmt.Errorf("history: insert resolution #%d: %w", r.Seq, err)
		}
	}
	return tx.Commit()
}

const sessionColumns = `id, game, seed_hash, state, outcome, score, hits, misses,
	best_combo, elapsed_ms, started_at, ended_at`

type scanner interface{ Scan(dest ...any) error }

func scanSession(row scanner) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
	)
	err := row.Scan(&sess.ID, &sess.Game, &sess.SeedHash, &sess.State, &sess.Outcome,
		&sess.Score, &sess.Hits, &sess.Misses, &sess.BestCombo, &sess.ElapsedMs, &started, &ended)
	if err != nil {
		return sess, err
	}
	sess.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		t := time.UnixMilli(ended.Int64)
		sess.EndedAt = &t
	}
	return sess, nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM arcade_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns sessions newest first with the total matching count.
func (s *Store) ListSessions(ctx context.Context, f Filter) ([]Session, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	where, args := "", []any{}
	if f.Game != "" {
		where, args = " WHERE game = ?", append(args, f.Game)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM arcade_sessions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history: count sessions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM arcade_sessions`+where+
			` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("history: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("history: scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

// GetResolutions returns a page of a session's resolutions in play order.
func (s *Store) GetResolutions(ctx context.Context, sessionID string, page, perPage int) (*ResolutionsPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM arcade_resolutions WHERE session_id = ?", sessionID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("history: count resolutions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, seq, challenge_id, kind, result, tier, points, awarded, combo_before, at
		 FROM arcade_resolutions WHERE session_id = ? ORDER BY seq LIMIT ? OFFSET ?`,
		sessionID, perPage, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("history: get resolutions: %w", err)
	}
	defer rows.Close()

	out := []Resolution{}
	for rows.Next() {
		var (
			r  Resolution
			at int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Seq, &r.ChallengeID, &r.Kind, &r.Result,
			&r.Tier, &r.Points, &r.Awarded, &r.ComboBefore, &at); err != nil {
			return nil, fmt.Errorf("history: scan resolution: %w", err)
		}
		r.At = time.UnixMilli(at)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: get resolutions: %w", err)
	}

	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}
	return &ResolutionsPage{
		Resolutions: out,
		TotalCount:  total,
		Page:        page,
		PerPage:     perPage,
		TotalPages:  totalPages,
	}, nil
}

// DeleteSession removes a session and its resolutions.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM arcade_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("history: delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return nil
}
