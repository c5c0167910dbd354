package admin

import (
	"net/http"
	"time"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

// PresetResponse is one entry of GET /admin/api/ratelimit/presets.
type PresetResponse struct {
	Name          string  `json:"name"`
	MaxRequests   int     `json:"max_requests"`
	Window        string  `json:"window"`
	WindowSeconds float64 `json:"window_seconds"`
}

// RouteResponse is one entry of GET /admin/api/ratelimit/routes.
type RouteResponse struct {
	Name       string   `json:"name"`
	PathPrefix string   `json:"path_prefix,omitempty"`
	Methods    []string `json:"methods,omitempty"`
	Preset     string   `json:"preset"`
	Condition  string   `json:"condition,omitempty"`
}

// RoutesResponse is the JSON response for GET /admin/api/ratelimit/routes.
type RoutesResponse struct {
	DefaultPreset string          `json:"default_preset"`
	Routes        []RouteResponse `json:"routes"`
}

// PresetStatsResponse holds the decision counters of one preset.
type PresetStatsResponse struct {
	Allowed     int64 `json:"allowed"`
	RateLimited int64 `json:"rate_limited"`
}

// StatsResponse is the JSON response for GET /admin/api/ratelimit/stats.
type StatsResponse struct {
	Allowed     int64                          `json:"allowed"`
	RateLimited int64                          `json:"rate_limited"`
	Reaped      int64                          `json:"reaped"`
	TrackedKeys int                            `json:"tracked_keys"`
	LastSweep   *time.Time                     `json:"last_sweep,omitempty"`
	Presets     map[string]PresetStatsResponse `json:"presets"`
}

// KeyResponse is the JSON response for GET /admin/api/ratelimit/keys/{class}/{identifier}.
type KeyResponse struct {
	Key       string    `json:"key"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit,omitempty"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Expired   bool      `json:"expired"`
}

// SweepResponse is the JSON response for POST /admin/api/ratelimit/sweep.
type SweepResponse struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// handleListPresets returns the configured quota table sorted by name.
func (h *AdminAPIHandler) handleListPresets(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.respondJSON(w, http.StatusOK, []PresetResponse{})
		return
	}

	presets := h.registry.Presets()
	resp := make([]PresetResponse, 0, len(presets))
	for _, p := range presets {
		resp = append(resp, PresetResponse{
			Name:          p.Name,
			MaxRequests:   p.MaxRequests,
			Window:        p.Window.String(),
			WindowSeconds: p.Window.Seconds(),
		})
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// handleListRoutes returns the route table in match order.
func (h *AdminAPIHandler) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	resp := RoutesResponse{
		DefaultPreset: ratelimit.PresetPublic,
		Routes:        []RouteResponse{},
	}
	if h.routes != nil {
		resp.DefaultPreset = h.routes.DefaultPreset()
		for _, rt := range h.routes.Routes() {
			resp.Routes = append(resp.Routes, RouteResponse{
				Name:       rt.Name,
				PathPrefix: rt.PathPrefix,
				Methods:    rt.Methods,
				Preset:     rt.Preset,
				Condition:  rt.Condition,
			})
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// handleGetStats returns the decision counters and the store size.
func (h *AdminAPIHandler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Presets: map[string]PresetStatsResponse{},
	}

	if h.stats != nil {
		st := h.stats.GetStats()
		resp.Allowed = st.Allowed
		resp.RateLimited = st.RateLimited
		resp.Reaped = st.Reaped
		for name, ps := range st.Presets {
			resp.Presets[name] = PresetStatsResponse{
				Allowed:     ps.Allowed,
				RateLimited: ps.RateLimited,
			}
		}
	}
	if h.store != nil {
		resp.TrackedKeys = h.store.Len()
	}
	if h.reaper != nil {
		if at, _ := h.reaper.LastSweep(); !at.IsZero() {
			resp.LastSweep = &at
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// handleInspectKey reports the window state of one bucket without touching it.
func (h *AdminAPIHandler) handleInspectKey(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.respondError(w, http.StatusServiceUnavailable, "rate limit store not configured")
		return
	}

	class := r.PathValue("class")
	key := ratelimit.FormatKey(class, r.PathValue("identifier"))
	entry, ok := h.store.Peek(key)
	if !ok {
		h.respondError(w, http.StatusNotFound, "no window for key")
		return
	}

	resp := KeyResponse{
		Key:     key,
		Count:   entry.Count,
		ResetAt: entry.ResetAt.UTC(),
		Expired: entry.ExpiredAt(h.clock.Now()),
	}
	if h.registry != nil {
		if cfg, err := h.registry.Get(class); err == nil {
			resp.Limit = cfg.MaxRequests
			if !resp.Expired {
				resp.Remaining = max(0, cfg.MaxRequests-entry.Count)
			} else {
				resp.Remaining = cfg.MaxRequests
			}
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// handleSweep runs a reaper pass immediately.
func (h *AdminAPIHandler) handleSweep(w http.ResponseWriter, r *http.Request) {
	if h.reaper == nil {
		h.respondError(w, http.StatusServiceUnavailable, "reaper not configured")
		return
	}

	removed := h.reaper.SweepNow()
	resp := SweepResponse{Removed: removed}
	if h.store != nil {
		resp.Remaining = h.store.Len()
	}
	h.logger.Info("manual rate limit sweep", "removed", removed, "remaining", resp.Remaining)
	h.respondJSON(w, http.StatusOK, resp)
}
