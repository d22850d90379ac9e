package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/MJE43/emoji-arcade/internal/arcade"
	"github.com/MJE43/emoji-arcade/internal/autoplay"
	"github.com/MJE43/emoji-arcade/internal/games"
	"github.com/MJE43/emoji-arcade/internal/history"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/session"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps domain errors to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, games.ErrUnknownGame):
		return http.StatusNotFound, ErrTypeGameNotFound
	case errors.Is(err, arcade.ErrNoAutoplay), errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, session.ErrAlreadyActive),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrAlreadyResolved),
		errors.Is(err, session.ErrUnknownChallenge),
		errors.Is(err, games.ErrNotReady),
		errors.Is(err, autoplay.ErrRunning):
		return http.StatusConflict, ErrTypeConflict
	case errors.Is(err, session.ErrInvalidChoice),
		errors.Is(err, games.ErrUnsupportedAction),
		errors.Is(err, autoplay.ErrNotChoiceGame):
		return http.StatusBadRequest, ErrTypeInvalidAction
	case errors.Is(err, autoplay.ErrScript),
		errors.Is(err, autoplay.ErrNoChoose),
		errors.Is(err, autoplay.ErrBadChoice),
		errors.Is(err, autoplay.ErrTimeout):
		return http.StatusUnprocessableEntity, ErrTypeScript
	case errors.Is(err, session.ErrNoChallenges), errors.Is(err, arcade.ErrClosed):
		return http.StatusServiceUnavailable, ErrTypeServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, ErrTypeTimeout
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger zerolog.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{logger: xlog.WithComponent("api")}
}

// HandleError classifies err and writes the matching response.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := classify(err)
	b := NewError(errType, err.Error()).
		WithRequestID(middleware.GetReqID(r.Context()))
	if game := chi.URLParam(r, "id"); game != "" {
		b.WithContext("game", game)
	}
	engineErr := b.Build()
	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		Build()
	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleUnavailable reports a disabled subsystem.
func (eh *ErrorHandler) HandleUnavailable(w http.ResponseWriter, r *http.Request, what string) {
	engineErr := NewError(ErrTypeServiceUnavailable, what+" is disabled").
		WithRequestID(middleware.GetReqID(r.Context())).
		Build()
	eh.logError(r, engineErr, http.StatusServiceUnavailable)
	eh.writeErrorResponse(w, http.StatusServiceUnavailable, engineErr)
}

func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	ev := eh.logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = eh.logger.Error()
	}
	ev.Str(xlog.FieldRequestID, engineErr.RequestID).
		Str("type", engineErr.Type).
		Str("category", string(GetErrorCategory(engineErr.Type))).
		Int("status", status).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Fields(engineErr.Context).
		Msg(engineErr.Message)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		eh.logger.Error().Err(err).Msg("encode error response")
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			requestID := middleware.GetReqID(r.Context())
			eh.logger.Error().
				Str(xlog.FieldRequestID, requestID).
				Str("path", r.URL.Path).
				Interface("panic", rvr).
				Msg("panic recovered")

			engineErr := NewError(ErrTypeInternal, "Internal server error").
				WithRequestID(requestID).
				Build()
			eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
		}()
		next.ServeHTTP(w, r)
	})
}
