package ratelimit

import (
	"context"
	"time"
)

// RateLimiter makes fixed-window admission decisions.
//
// Check never fails: it always returns a decision. Denial is reported
// through RateLimitResult.Success, not through an error.
type RateLimiter interface {
	Check(ctx context.Context, config RateLimitConfig) RateLimitResult
}

// Store holds the per-key window state. It is the only shared mutable
// state of the limiter and implementations must be safe for concurrent use.
type Store interface {
	// Hit atomically starts a new window for key when it is absent or its
	// window has ended at now (Count=1, ResetAt=now+window), and otherwise
	// increments Count. It returns a copy of the resulting entry.
	Hit(key string, window time.Duration, now time.Time) Entry

	// Sweep removes entries whose ResetAt is before now and returns how
	// many were removed.
	Sweep(now time.Time) int

	// Peek returns the entry stored for key without modifying it.
	Peek(key string) (Entry, bool)

	// Len returns the number of tracked keys, expired ones included.
	Len() int
}
