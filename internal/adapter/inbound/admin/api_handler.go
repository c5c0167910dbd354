// Package admin provides the JSON admin API for inspecting and operating the
// admission gate.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/admission/internal/service"
)

// AdminAPIHandler provides JSON API endpoints for the admin interface.
type AdminAPIHandler struct {
	registry  *ratelimit.PresetRegistry
	store     ratelimit.Store
	reaper    *service.Reaper
	stats     *service.StatsService
	routes    *ratelimit.RouteTable
	clock     ratelimit.Clock
	limit     func(http.Handler) http.Handler
	buildInfo *BuildInfo
	logger    *slog.Logger
	startTime time.Time
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithRegistry sets the preset registry served by the presets endpoint.
func WithRegistry(r *ratelimit.PresetRegistry) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.registry = r }
}

// WithStore sets the rate limit store used for key inspection.
func WithStore(s ratelimit.Store) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.store = s }
}

// WithReaper sets the reaper triggered by the sweep endpoint.
func WithReaper(r *service.Reaper) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.reaper = r }
}

// WithStatsService sets the decision counters.
func WithStatsService(s *service.StatsService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.stats = s }
}

// WithRouteTable sets the route table served by the routes endpoint.
func WithRouteTable(rt *ratelimit.RouteTable) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.routes = rt }
}

// WithClock sets the clock used to report window state.
func WithClock(c ratelimit.Clock) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.clock = c }
}

// WithRateLimit wraps the API in a limiting middleware, typically the
// admin preset of the gate.
func WithRateLimit(mw func(http.Handler) http.Handler) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.limit = mw }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.logger = l }
}

// WithBuildInfo sets the build version information.
func WithBuildInfo(info *BuildInfo) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.buildInfo = info }
}

// WithStartTime sets the server start time for uptime calculation.
func WithStartTime(t time.Time) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.startTime = t }
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		clock:     ratelimit.SystemClock{},
		logger:    slog.Default(),
		startTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
// Access is restricted to loopback clients; the optional rate limit applies
// after the access check so remote probes never consume the admin quota.
func (h *AdminAPIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /admin/api/ratelimit/presets", h.handleListPresets)
	mux.HandleFunc("GET /admin/api/ratelimit/routes", h.handleListRoutes)
	mux.HandleFunc("GET /admin/api/ratelimit/stats", h.handleGetStats)
	mux.HandleFunc("GET /admin/api/ratelimit/keys/{class}/{identifier}", h.handleInspectKey)
	mux.HandleFunc("POST /admin/api/ratelimit/sweep", h.handleSweep)
	mux.HandleFunc("GET /admin/api/system", h.handleSystemInfo)

	var handler http.Handler = mux
	if h.limit != nil {
		handler = h.limit(handler)
	}
	return h.adminAuthMiddleware(handler)
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
