package api

import (
	"github.com/MJE43/emoji-arcade/internal/games"
	"github.com/MJE43/emoji-arcade/internal/history"
	"github.com/MJE43/emoji-arcade/internal/session"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"
	ErrTypeInvalidAction = "invalid_action"
	ErrTypeScript        = "script_error"

	// Game-related errors
	ErrTypeGameNotFound = "game_not_found"
	ErrTypeNotFound     = "not_found"
	ErrTypeConflict     = "conflict"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeRateLimit          = "rate_limit_exceeded"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidParams, ErrTypeValidation, ErrTypeInvalidAction, ErrTypeScript:
		return CategoryValidation
	case ErrTypeGameNotFound, ErrTypeNotFound, ErrTypeConflict:
		return CategoryGame
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// GamesResponse lists the playable games.
type GamesResponse struct {
	Games         []games.GameSpec `json:"games"`
	EngineVersion string           `json:"engine_version"`
}

// GameResponse describes one game and its current view.
type GameResponse struct {
	Game games.GameSpec `json:"game"`
	View session.View   `json:"view"`
}

// RecordsResponse holds every stored best score keyed by record name.
type RecordsResponse struct {
	Records map[string]int `json:"records"`
}

// AutoplayRequest starts a strategy against a discrete-choice game.
type AutoplayRequest struct {
	Script string `json:"script"`
}

// HistoryResponse is a page of stored sessions.
type HistoryResponse struct {
	Sessions []history.Session `json:"sessions"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// RotateSeedsRequest picks the client seed for a game's next server seed.
type RotateSeedsRequest struct {
	ClientSeed string `json:"clientSeed"`
}

// VerifyRequest replays the random stream behind a session run. The seed
// hash and nonce shown in a choice view identify the run; rotating the
// game's seeds reveals the server seed.
type VerifyRequest struct {
	ServerSeed string `json:"serverSeed"`
	ClientSeed string `json:"clientSeed"`
	Nonce      uint64 `json:"nonce"`
	Count      int    `json:"count"`
}

// VerifyResponse carries the seed commitment and the first floats drawn
// for the requested nonce.
type VerifyResponse struct {
	ServerSeedHash string    `json:"serverSeedHash"`
	Nonce          uint64    `json:"nonce"`
	Floats         []float64 `json:"floats"`
	EngineVersion  string    `json:"engine_version"`
}
