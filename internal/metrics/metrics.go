// Package metrics exposes Prometheus counters for arcade sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcade_sessions_started_total",
		Help: "Sessions started per game",
	}, []string{"game"})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcade_sessions_ended_total",
		Help: "Sessions ended per game by terminal outcome",
	}, []string{"game", "outcome"}) // outcome=won|lost|completed|failed|stopped

	challengesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcade_challenges_resolved_total",
		Help: "Challenge resolutions per game by result",
	}, []string{"game", "result"}) // result=hit|miss|timeout

	activeSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arcade_sessions_active",
		Help: "Whether a game currently has an active session (1) or not (0)",
	}, []string{"game"})

	recordsImproved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcade_records_improved_total",
		Help: "Best-score records overwritten by a better value",
	}, []string{"record"})

	recordStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcade_record_store_errors_total",
		Help: "Record store failures that were swallowed",
	}, []string{"op"}) // op=get|set|keys

	tonesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcade_tones_dropped_total",
		Help: "Tones skipped because audio output was unavailable",
	})
)

// SessionStarted marks a game session as active.
func SessionStarted(game string) {
	sessionsStarted.WithLabelValues(game).Inc()
	activeSessions.WithLabelValues(game).Set(1)
}

// SessionEnded records the terminal outcome of a session.
func SessionEnded(game, outcome string) {
	sessionsEnded.WithLabelValues(game, outcome).Inc()
	activeSessions.WithLabelValues(game).Set(0)
}

// ChallengeResolved counts one resolution.
func ChallengeResolved(game, result string) {
	challengesResolved.WithLabelValues(game, result).Inc()
}

// RecordImproved counts an improve-only write that went through.
func RecordImproved(record string) {
	recordsImproved.WithLabelValues(record).Inc()
}

// RecordStoreError counts a swallowed record store failure.
func RecordStoreError(op string) {
	recordStoreErrors.WithLabelValues(op).Inc()
}

// ToneDropped counts a tone that could not be played.
func ToneDropped() {
	tonesDropped.Inc()
}
