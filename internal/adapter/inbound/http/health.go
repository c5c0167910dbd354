package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/admission/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	store   ratelimit.Store
	reaper  *service.Reaper
	version string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(store ratelimit.Store, reaper *service.Reaper, version string) *HealthChecker {
	return &HealthChecker{
		store:   store,
		reaper:  reaper,
		version: version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	// Len() takes every shard lock - if this hangs, we have a problem
	if h.store != nil {
		checks["rate_limit_store"] = fmt.Sprintf("ok: %d keys", h.store.Len())
	} else {
		checks["rate_limit_store"] = "not configured"
	}

	// A stopped reaper means expired keys accumulate without bound.
	if h.reaper != nil {
		if h.reaper.Running() {
			checks["reaper"] = "running"
		} else {
			checks["reaper"] = "stopped"
			healthy = false
		}
		if at, removed := h.reaper.LastSweep(); !at.IsZero() {
			checks["last_sweep"] = fmt.Sprintf("%s (%d removed)", at.UTC().Format("2006-01-02T15:04:05Z"), removed)
		}
	} else {
		checks["reaper"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable) // 503
		} else {
			w.WriteHeader(http.StatusOK) // 200
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}

// healthHandler is the fallback /health handler when no checker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
