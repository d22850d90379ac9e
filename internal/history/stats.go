package history

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Stats aggregates the settled sessions of one game, or of every game when
// Game is empty.
type Stats struct {
	Game         string          `json:"game,omitempty"`
	Sessions     int             `json:"sessions"`
	Hits         int             `json:"hits"`
	Misses       int             `json:"misses"`
	BestScore    int             `json:"bestScore"`
	BestCombo    int             `json:"bestCombo"`
	Accuracy     decimal.Decimal `json:"accuracy"`     // hits / (hits + misses), 4 places
	AverageScore decimal.Decimal `json:"averageScore"` // 2 places
	Outcomes     map[string]int  `json:"outcomes"`
}

// Stats computes aggregates over ended sessions.
func (s *Store) Stats(ctx context.Context, game string) (Stats, error) {
	st := Stats{Game: game, Outcomes: map[string]int{}}
	where, args := " WHERE state = ?", []any{StateEnded}
	if game != "" {
		where, args = where+" AND game = ?", append(args, game)
	}

	var scoreSum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hits), 0), COALESCE(SUM(misses), 0),
		        COALESCE(SUM(score), 0), COALESCE(MAX(score), 0), COALESCE(MAX(best_combo), 0)
		 FROM arcade_sessions`+where, args...,
	).Scan(&st.Sessions, &st.Hits, &st.Misses, &scoreSum, &st.BestScore, &st.BestCombo)
	if err != nil {
		return st, fmt.Errorf("history: stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM arcade_sessions`+where+` GROUP BY outcome`, args...)
	if err != nil {
		return st, fmt.Errorf("history: outcome stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return st, fmt.Errorf("history: scan outcome: %w", err)
		}
		st.Outcomes[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("history: outcome stats: %w", err)
	}

	st.Accuracy = Accuracy(st.Hits, st.Misses)
	if st.Sessions > 0 {
		st.AverageScore = decimal.NewFromInt(scoreSum).DivRound(decimal.NewFromInt(int64(st.Sessions)), 2)
	}
	return st, nil
}

// Accuracy is hits over attempts, rounded to four places; zero attempts is 0.
func Accuracy(hits, misses int) decimal.Decimal {
	attempts := hits + misses
	if attempts == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(hits)).DivRound(decimal.NewFromInt(int64(attempts)), 4)
}
