// Package api serves the arcade over HTTP for headless play, tooling and
// automation.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MJE43/emoji-arcade/internal/arcade"
	"github.com/MJE43/emoji-arcade/internal/config"
	"github.com/MJE43/emoji-arcade/internal/history"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
)

// Server handles HTTP requests
type Server struct {
	hub       *arcade.Hub
	hist      *history.Store // nil when history is disabled
	cfg       config.HTTPConfig
	errors    *ErrorHandler
	logger    zerolog.Logger
	startTime time.Time
}

// NewServer creates a new API server
func NewServer(hub *arcade.Hub, hist *history.Store, cfg config.HTTPConfig) *Server {
	s := &Server{
		hub:       hub,
		hist:      hist,
		cfg:       cfg,
		errors:    NewErrorHandler(),
		logger:    xlog.WithComponent("api"),
		startTime: time.Now(),
	}
	s.logger.Info().
		Int("games_available", len(hub.Games())).
		Bool("history_enabled", hist != nil).
		Int("rate_limit", cfg.RateLimit).
		Msg("api server created")
	return s
}

// HTTPServer wraps Routes in an http.Server with the configured timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.errors.RecoveryHandler)
	if s.cfg.RateLimit > 0 {
		r.Use(s.rateLimit(s.cfg.RateLimit, time.Minute))
	}

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/games", s.handleListGames)
		r.Route("/games/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetGame)
			r.Get("/view", s.handleView)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/act", s.handleAct)
			r.Post("/seeds/rotate", s.handleRotateSeeds)
			r.Get("/autoplay", s.handleGetAutoplay)
			r.Post("/autoplay", s.handleStartAutoplay)
			r.Delete("/autoplay", s.handleStopAutoplay)
		})
		r.Get("/records", s.handleRecords)
		r.Post("/verify", s.handleVerify)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListHistory)
			r.Get("/stats", s.handleHistoryStats)
			r.Get("/{sid}", s.handleGetHistory)
			r.Delete("/{sid}", s.handleDeleteHistory)
			r.Get("/{sid}/resolutions", s.handleHistoryResolutions)
		})
	})

	return r
}

// rateLimit limits requests per client IP over window.
func (s *Server) rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			engineErr := NewError(ErrTypeRateLimit, "Too many requests. Please try again later.").
				WithRequestID(middleware.GetReqID(r.Context())).
				Build()
			s.errors.writeErrorResponse(w, http.StatusTooManyRequests, engineErr)
		}),
	)
}

// requestLogger logs one line per request and echoes the request id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		if reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		ev.Str(xlog.FieldRequestID, reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}
