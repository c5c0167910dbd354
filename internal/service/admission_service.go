// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

// tracerName identifies spans emitted by the admission service.
const tracerName = "github.com/Sentinel-Gate/admission/internal/service"

// AdmissionObserver receives admission and cleanup events, e.g. for metrics.
// Implementations must be safe for concurrent use and must not block.
type AdmissionObserver interface {
	ObserveDecision(preset string, allowed bool)
	ObserveSweep(removed, remaining int)
}

// AdmissionService is the fixed-window checker. It owns no state of its own:
// all counters live in the injected store, so several services may share
// one store and tests can build isolated instances.
type AdmissionService struct {
	store    ratelimit.Store
	clock    ratelimit.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	observer AdmissionObserver
	strict   bool
}

// AdmissionOption configures AdmissionService.
type AdmissionOption func(*AdmissionService)

// WithClock sets the time source. Defaults to ratelimit.SystemClock.
func WithClock(c ratelimit.Clock) AdmissionOption {
	return func(s *AdmissionService) { s.clock = c }
}

// WithLogger sets the logger for admission decisions.
func WithLogger(l *slog.Logger) AdmissionOption {
	return func(s *AdmissionService) { s.logger = l }
}

// WithTracer sets the tracer used for ratelimit.check spans.
func WithTracer(t trace.Tracer) AdmissionOption {
	return func(s *AdmissionService) { s.tracer = t }
}

// WithObserver sets the decision observer.
func WithObserver(o AdmissionObserver) AdmissionOption {
	return func(s *AdmissionService) { s.observer = o }
}

// WithStrictInvariants makes invariant violations panic instead of denying.
// Meant for development mode only.
func WithStrictInvariants(strict bool) AdmissionOption {
	return func(s *AdmissionService) { s.strict = strict }
}

// NewAdmissionService creates a checker over store.
func NewAdmissionService(store ratelimit.Store, opts ...AdmissionOption) *AdmissionService {
	s := &AdmissionService{
		store:  store,
		clock:  ratelimit.SystemClock{},
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check records one request under config.Identifier and returns the decision.
//
// The first request of a window (or the first after it expired) opens a new
// window of config.Window starting now. Requests beyond MaxRequests are
// denied until the window ends; their count keeps growing but has no further
// effect. Check never returns an error.
func (s *AdmissionService) Check(ctx context.Context, config ratelimit.RateLimitConfig) ratelimit.RateLimitResult {
	_, span := s.tracer.Start(ctx, "ratelimit.check",
		trace.WithAttributes(
			attribute.String("ratelimit.preset", presetLabel(config.Name)),
			attribute.String("ratelimit.key", config.Identifier),
			attribute.Int("ratelimit.limit", config.MaxRequests),
		),
	)
	defer span.End()

	now := s.clock.Now()

	if err := config.Validate(); err != nil {
		s.invariantViolated("invalid rate limit config reached the checker", err, config)
		span.SetStatus(codes.Error, err.Error())
		s.observe(config.Name, false)
		return ratelimit.RateLimitResult{
			Success:   false,
			Limit:     config.MaxRequests,
			Remaining: 0,
			ResetAt:   now,
		}
	}

	entry := s.store.Hit(config.Identifier, config.Window, now)
	if entry.Count < 1 {
		s.invariantViolated("store returned a non-positive count",
			fmt.Errorf("count=%d", entry.Count), config)
	}

	result := ratelimit.RateLimitResult{
		Limit:   config.MaxRequests,
		ResetAt: entry.ResetAt,
	}
	if entry.Count > config.MaxRequests {
		result.Success = false
		result.Remaining = 0
	} else {
		result.Success = true
		result.Remaining = max(0, config.MaxRequests-entry.Count)
	}

	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", result.Success),
		attribute.Int("ratelimit.remaining", result.Remaining),
		attribute.Int("ratelimit.count", entry.Count),
	)
	s.observe(config.Name, result.Success)

	if result.Success {
		s.logger.Debug("rate limit check passed",
			"key", config.Identifier,
			"limit", result.Limit,
			"remaining", result.Remaining,
		)
	} else {
		s.logger.Warn("rate limited",
			"key", config.Identifier,
			"limit", result.Limit,
			"count", entry.Count,
			"reset_at", result.ResetAt,
		)
	}

	return result
}

func (s *AdmissionService) observe(preset string, allowed bool) {
	if s.observer != nil {
		s.observer.ObserveDecision(presetLabel(preset), allowed)
	}
}

// invariantViolated panics in strict mode and logs otherwise.
func (s *AdmissionService) invariantViolated(msg string, err error, config ratelimit.RateLimitConfig) {
	if s.strict {
		panic(fmt.Sprintf("%s: %v", msg, err))
	}
	s.logger.Error(msg,
		"key", config.Identifier,
		"preset", presetLabel(config.Name),
		"error", err,
	)
}

// presetLabel maps an empty config name to the default endpoint class.
func presetLabel(name string) string {
	if name == "" {
		return ratelimit.DefaultClass
	}
	return name
}

// Compile-time interface verification.
var _ ratelimit.RateLimiter = (*AdmissionService)(nil)
