// Package ratelimit provides rate limiting domain types.
package ratelimit

import (
	"fmt"
	"time"
)

// Entry is the per-key state of a fixed window.
type Entry struct {
	// Count is the number of requests observed in the current window.
	// It keeps growing past the limit until the window rolls over.
	Count int

	// ResetAt is the exclusive end of the current window.
	ResetAt time.Time
}

// ExpiredAt reports whether the window has ended at now.
func (e Entry) ExpiredAt(now time.Time) bool {
	return !e.ResetAt.After(now)
}

// RateLimitConfig defines the fixed-window parameters for one check.
type RateLimitConfig struct {
	// Name is the preset or endpoint class the config belongs to.
	// Empty for ad hoc configs.
	Name string

	// MaxRequests is the number of requests admitted per window.
	MaxRequests int

	// Window is the length of a counting window.
	Window time.Duration

	// Identifier is the store key being limited. It is usually built
	// with FormatKey so that endpoint classes do not share buckets.
	Identifier string
}

// NewRateLimitConfig builds a validated ad hoc config.
func NewRateLimitConfig(maxRequests int, window time.Duration, identifier string) (RateLimitConfig, error) {
	cfg := RateLimitConfig{
		MaxRequests: maxRequests,
		Window:      window,
		Identifier:  identifier,
	}
	if err := cfg.Validate(); err != nil {
		return RateLimitConfig{}, err
	}
	return cfg, nil
}

// Validate rejects configs that would make the hot path misbehave.
func (c RateLimitConfig) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxRequests, c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidWindow, c.Window)
	}
	return nil
}

// WithIdentifier returns a copy of the config keyed by identifier.
func (c RateLimitConfig) WithIdentifier(identifier string) RateLimitConfig {
	c.Identifier = identifier
	return c
}

// ForClient returns a copy keyed by the composite "ratelimit:{class}:{client}" key,
// using the config name as the endpoint class.
func (c RateLimitConfig) ForClient(clientID string) RateLimitConfig {
	c.Identifier = FormatKey(c.Name, clientID)
	return c
}

// RateLimitResult is the admission decision for a single check.
type RateLimitResult struct {
	// Success is true when the request is admitted.
	Success bool

	// Limit is the configured ceiling for the window.
	Limit int

	// Remaining is the number of requests left in the window. Never negative.
	Remaining int

	// ResetAt is the absolute instant at which the window ends.
	ResetAt time.Time
}

// RetryAfter returns the time left until the window resets, never negative.
func (r RateLimitResult) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RetryAfterSeconds returns ceil((ResetAt - now) / 1s), never negative.
func (r RateLimitResult) RetryAfterSeconds(now time.Time) int {
	d := r.RetryAfter(now)
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
