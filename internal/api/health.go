// =============================================================================
// KUBERNETES-READY HEALTH CHECK ENDPOINTS
// =============================================================================
//
// ENDPOINT OVERVIEW:
//
//   GET /health      - Overall health status with partition count
//   GET /healthz     - Liveness probe
//   GET /readyz      - Readiness probe (?verbose=true runs named checks)
//   GET /livez       - Startup probe
//   GET /version     - Build information
//
//   ┌─────────────────────────────────────────────────────────────────────────┐
//   │   Pod Created ─────► startupProbe (/livez)                              │
//   │                       │                                                 │
//   │                       └── Success ──► readinessProbe (/readyz)          │
//   │                                        │                                │
//   │                                        ├── ready ──► receives traffic   │
//   │                                        └── not ready ──► no traffic     │
//   │                                                                         │
//   │   Running ─────────► livenessProbe (/healthz)                           │
//   └─────────────────────────────────────────────────────────────────────────┘
//
// READINESS:
//   The serve command marks the server ready once the configured assignment
//   is installed, and not ready as soon as shutdown begins.
//
// =============================================================================

package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// HEALTH CHECK STATE
// =============================================================================

// HealthState tracks the server's status for probes.
type HealthState struct {
	ready     atomic.Bool
	live      atomic.Bool
	startTime time.Time

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// HealthCheck is a function that checks a specific component's health.
type HealthCheck func(ctx context.Context) HealthCheckResult

// Health check statuses.
const (
	CheckPass = "pass"
	CheckWarn = "warn"
	CheckFail = "fail"
)

// HealthCheckResult contains the result of a health check.
type HealthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthState creates a health state that is live but not yet ready.
func NewHealthState() *HealthState {
	h := &HealthState{
		startTime: time.Now(),
		checks:    make(map[string]HealthCheck),
	}
	h.live.Store(true)
	return h
}

// SetReady marks the server as ready to receive traffic.
func (h *HealthState) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetLive marks the server as alive.
func (h *HealthState) SetLive(live bool) {
	h.live.Store(live)
}

// AddCheck registers a named health check.
func (h *HealthState) AddCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// IsReady returns whether the server is ready for traffic.
func (h *HealthState) IsReady() bool {
	return h.ready.Load()
}

// IsLive returns whether the server is alive.
func (h *HealthState) IsLive() bool {
	return h.live.Load()
}

// Uptime returns how long the server has been running.
func (h *HealthState) Uptime() time.Duration {
	return time.Since(h.startTime)
}

// run executes every registered check, timing each.
func (h *HealthState) run(ctx context.Context) (map[string]HealthCheckResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make(map[string]HealthCheckResult, len(h.checks))
	ok := true
	for name, check := range h.checks {
		start := time.Now()
		result := check(ctx)
		result.Latency = time.Since(start).String()
		results[name] = result
		if result.Status == CheckFail {
			ok = false
		}
	}
	return results, ok
}

// =============================================================================
// HEALTH CHECK HANDLERS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"partitions": s.session.Size(),
		"uptime":     s.health.Uptime().Round(time.Second).String(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// handleHealthz is the liveness probe. It does no work beyond answering.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.health.IsLive() {
		s.probeResponse(w, http.StatusServiceUnavailable, "server is not alive", nil)
		return
	}
	s.probeResponse(w, http.StatusOK, "", nil)
}

// handleReadyz is the readiness probe.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	var checks map[string]HealthCheckResult
	checksOK := true
	if verbose {
		checks, checksOK = s.health.run(r.Context())
	}

	switch {
	case !s.health.IsReady():
		s.probeResponse(w, http.StatusServiceUnavailable, "server is not ready", checks)
	case !checksOK:
		s.probeResponse(w, http.StatusServiceUnavailable, "health check failed", checks)
	default:
		s.probeResponse(w, http.StatusOK, "", checks)
	}
}

// handleLivez is the startup probe.
func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		s.probeResponse(w, http.StatusServiceUnavailable, "session not yet initialized", nil)
		return
	}
	s.probeResponse(w, http.StatusOK, "", nil)
}

func (s *Server) probeResponse(w http.ResponseWriter, status int, message string, checks map[string]HealthCheckResult) {
	resp := map[string]interface{}{
		"status":    CheckPass,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    s.health.Uptime().String(),
	}
	if status != http.StatusOK {
		resp["status"] = CheckFail
		resp["message"] = message
	}
	if checks != nil {
		resp["checks"] = checks
	}
	s.writeJSON(w, status, resp)
}

// checkAssignment warns while no partitions are assigned.
func (s *Server) checkAssignment(ctx context.Context) HealthCheckResult {
	n := s.session.Size()
	if n == 0 {
		return HealthCheckResult{Status: CheckWarn, Message: "no partitions assigned"}
	}
	return HealthCheckResult{Status: CheckPass, Message: fmt.Sprintf("%d partitions in fetch order", n)}
}

// =============================================================================
// VERSION & INFO ENDPOINT
// =============================================================================

// Version information (set at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
	})
}
