package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

// UnidentifiedPolicy selects how requests without a client identifier are limited.
type UnidentifiedPolicy string

const (
	// UnidentifiedShared limits unidentified callers by the endpoint class
	// they hit, all of them sharing one bucket per class.
	UnidentifiedShared UnidentifiedPolicy = "shared"

	// UnidentifiedStrict limits every unidentified caller against the
	// strictest registered preset in one bucket, whatever the endpoint class.
	// Fixed-preset middleware is exempt and keeps its own preset.
	UnidentifiedStrict UnidentifiedPolicy = "strict"
)

// Headers set by reverse proxies using an auth_request style subrequest.
const (
	headerOriginalMethod = "X-Original-Method"
	headerOriginalURI    = "X-Original-URI"
)

// Gate applies endpoint-class quotas to HTTP requests.
type Gate struct {
	limiter  ratelimit.RateLimiter
	registry *ratelimit.PresetRegistry
	routes   *ratelimit.RouteTable
	policy   UnidentifiedPolicy
	clock    ratelimit.Clock
	enabled  bool
}

// GateOption configures Gate.
type GateOption func(*Gate)

// WithRouteTable sets the classifier used by Middleware. Without one,
// every request is limited under the public preset.
func WithRouteTable(rt *ratelimit.RouteTable) GateOption {
	return func(g *Gate) { g.routes = rt }
}

// WithUnidentifiedPolicy sets the policy for requests resolved to UnknownClient.
func WithUnidentifiedPolicy(p UnidentifiedPolicy) GateOption {
	return func(g *Gate) { g.policy = p }
}

// WithGateClock sets the clock used to compute Retry-After.
func WithGateClock(c ratelimit.Clock) GateOption {
	return func(g *Gate) { g.clock = c }
}

// WithGateEnabled turns enforcement on or off. A disabled gate admits
// everything without touching the store.
func WithGateEnabled(enabled bool) GateOption {
	return func(g *Gate) { g.enabled = enabled }
}

// NewGate creates a gate that checks quotas from registry with limiter.
func NewGate(limiter ratelimit.RateLimiter, registry *ratelimit.PresetRegistry, opts ...GateOption) *Gate {
	g := &Gate{
		limiter:  limiter,
		registry: registry,
		policy:   UnidentifiedShared,
		clock:    ratelimit.SystemClock{},
		enabled:  true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check records one request by clientID against preset.
// The only error is an unknown preset name.
func (g *Gate) Check(ctx context.Context, preset, clientID string) (ratelimit.RateLimitResult, error) {
	return g.check(ctx, preset, clientID, false)
}

func (g *Gate) check(ctx context.Context, preset, clientID string, fixed bool) (ratelimit.RateLimitResult, error) {
	cfg, err := g.configFor(preset, clientID, fixed)
	if err != nil {
		return ratelimit.RateLimitResult{}, err
	}
	return g.limiter.Check(ctx, cfg), nil
}

// configFor resolves the quota for clientID. A fixed preset is never
// replaced by the strict unidentified quota.
func (g *Gate) configFor(preset, clientID string, fixed bool) (ratelimit.RateLimitConfig, error) {
	if !fixed && clientID == UnknownClient && g.policy == UnidentifiedStrict {
		return g.registry.Strictest().Config().ForClient(UnknownClient), nil
	}
	cfg, err := g.registry.Get(preset)
	if err != nil {
		return ratelimit.RateLimitConfig{}, err
	}
	return cfg.ForClient(clientID), nil
}

// Classify returns the preset and route name for r.
func (g *Gate) Classify(r *http.Request, method, path string) (string, string) {
	if g.routes == nil {
		return ratelimit.PresetPublic, ""
	}
	preset, route, err := g.routes.Classify(requestAttributes(r, method, path, g.clock))
	if err != nil {
		LoggerFromContext(r.Context()).Warn("route condition failed", "error", err)
	}
	return preset, route
}

// Enabled reports whether the gate enforces quotas.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// Middleware classifies each request, checks its quota and either forwards
// it with X-RateLimit-* headers or answers 429.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.enabled {
			next.ServeHTTP(w, r)
			return
		}

		preset, route := g.Classify(r, r.Method, r.URL.Path)
		if !g.admit(w, r, preset, route, false) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PresetMiddleware limits every request under a fixed preset, unidentified
// callers included. It panics if preset is not registered.
func (g *Gate) PresetMiddleware(preset string) func(http.Handler) http.Handler {
	g.registry.MustGet(preset)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.enabled {
				next.ServeHTTP(w, r)
				return
			}
			if !g.admit(w, r, preset, "", true) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckHandler serves the decision endpoint used by fronting proxies.
// The preset comes from the "preset" query parameter; without it the request
// described by X-Original-Method and X-Original-URI is classified by the
// route table. Admitted requests get 204 with rate limit headers.
func (g *Gate) CheckHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		preset := r.URL.Query().Get("preset")
		route := ""
		if preset == "" {
			method := r.Header.Get(headerOriginalMethod)
			if method == "" {
				method = http.MethodGet
			}
			path := r.Header.Get(headerOriginalURI)
			if i := strings.IndexByte(path, '?'); i >= 0 {
				path = path[:i]
			}
			if path == "" {
				path = "/"
			}
			preset, route = g.Classify(r, method, path)
		} else if !g.registry.Has(preset) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown preset %q", preset))
			return
		}

		if !g.enabled {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if !g.admit(w, r, preset, route, false) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// admit checks the quota and writes the rate limit headers. On denial it
// writes the 429 response and returns false.
func (g *Gate) admit(w http.ResponseWriter, r *http.Request, preset, route string, fixed bool) bool {
	logger := LoggerFromContext(r.Context())
	clientID := clientIDForRequest(r)

	result, err := g.check(r.Context(), preset, clientID, fixed)
	if err != nil {
		// Presets are validated when routes are built, so this is a wiring bug.
		logger.Error("rate limit preset lookup failed", "preset", preset, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}

	if !result.Success {
		logger.Info("request throttled",
			"preset", preset,
			"route", route,
			"path", r.URL.Path,
			"reset_at", result.ResetAt)
		WriteTooManyRequests(w, result, g.clock.Now())
		return false
	}

	WriteRateLimitHeaders(w, result)
	return true
}

// requestAttributes builds the classification input for r.
func requestAttributes(r *http.Request, method, path string, clock ratelimit.Clock) ratelimit.RequestAttributes {
	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return ratelimit.RequestAttributes{
		Method:      method,
		Path:        path,
		Host:        r.Host,
		ClientID:    clientIDForRequest(r),
		Headers:     headers,
		RequestTime: clock.Now(),
	}
}
