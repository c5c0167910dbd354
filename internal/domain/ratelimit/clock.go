package ratelimit

import "time"

// Clock is the time source used by the checker and the reaper.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock. Go's time.Now carries a monotonic
// reading, so window arithmetic is immune to wall clock steps.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }
