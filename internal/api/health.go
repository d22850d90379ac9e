package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

func (s *Server) runChecks(ctx context.Context) (HealthStatus, map[string]HealthCheck) {
	checks := map[string]HealthCheck{
		"games":   s.checkGamesHealth(),
		"history": s.checkHistoryHealth(ctx),
	}
	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}
	return overall, checks
}

// handleHealthCheck provides comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status, checks := s.runChecks(r.Context())
	resp := HealthCheckResponse{
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Checks:        checks,
		System:        getSystemInfo(),
		RequestID:     middleware.GetReqID(r.Context()),
	}
	code := http.StatusOK
	if status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

// handleReadiness reports whether the server can take traffic.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, checks := s.runChecks(r.Context())
	code := http.StatusOK
	if status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"ready":  code == http.StatusOK,
		"checks": checks,
	})
}

// handleLiveness reports that the process is serving requests.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alive":     true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) checkGamesHealth() HealthCheck {
	start := time.Now()
	n := len(s.hub.Games())
	check := HealthCheck{
		Status:      HealthStatusHealthy,
		Message:     fmt.Sprintf("%d games registered", n),
		LastChecked: start.UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
	if n == 0 {
		check.Status = HealthStatusUnhealthy
		check.Message = "no games registered"
	}
	return check
}

func (s *Server) checkHistoryHealth(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{LastChecked: start.UTC().Format(time.RFC3339)}
	if s.hist == nil {
		check.Status = HealthStatusHealthy
		check.Message = "history disabled"
		return check
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.hist.Ping(ctx); err != nil {
		// Play continues without history.
		check.Status = HealthStatusDegraded
		check.Message = err.Error()
	} else {
		check.Status = HealthStatusHealthy
		check.Message = "history database reachable"
	}
	check.Duration = time.Since(start).String()
	return check
}

func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}
