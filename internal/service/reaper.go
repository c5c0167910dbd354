package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

// DefaultSweepInterval is how often the reaper sweeps when not configured.
const DefaultSweepInterval = 5 * time.Minute

// Reaper periodically evicts expired entries from a rate limit store to
// bound its memory. Admission decisions do not depend on it: the checker
// treats an expired entry as absent whether or not it has been reaped.
type Reaper struct {
	store    ratelimit.Store
	clock    ratelimit.Clock
	logger   *slog.Logger
	observer AdmissionObserver
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	running  atomic.Bool

	lastSweep   atomic.Int64 // unix nanos
	lastRemoved atomic.Int64
}

// ReaperOption configures Reaper.
type ReaperOption func(*Reaper)

// WithSweepInterval sets the sweep period. Non-positive values are ignored.
func WithSweepInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReaperClock sets the time source used to decide expiry.
func WithReaperClock(c ratelimit.Clock) ReaperOption {
	return func(r *Reaper) { r.clock = c }
}

// WithReaperLogger sets the logger.
func WithReaperLogger(l *slog.Logger) ReaperOption {
	return func(r *Reaper) { r.logger = l }
}

// WithReaperObserver sets the observer notified after each sweep.
func WithReaperObserver(o AdmissionObserver) ReaperOption {
	return func(r *Reaper) { r.observer = o }
}

// NewReaper creates a reaper for store. Call Start to begin sweeping.
func NewReaper(store ratelimit.Store, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		store:    store,
		clock:    ratelimit.SystemClock{},
		logger:   slog.Default(),
		interval: DefaultSweepInterval,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the background sweep goroutine.
// It stops when ctx is cancelled or Stop() is called. Calling Start while
// the goroutine is running is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.SweepNow()
			}
		}
	}()
}

// SweepNow removes every entry whose window ended before now and returns
// the number removed. Safe to call concurrently with the background loop.
func (r *Reaper) SweepNow() int {
	now := r.clock.Now()
	removed := r.store.Sweep(now)
	remaining := r.store.Len()

	r.lastSweep.Store(now.UnixNano())
	r.lastRemoved.Store(int64(removed))

	if r.observer != nil {
		r.observer.ObserveSweep(removed, remaining)
	}
	if removed > 0 {
		r.logger.Debug("rate limit store sweep completed",
			"removed_keys", removed,
			"remaining_keys", remaining)
	}
	return removed
}

// Stop gracefully stops the sweep goroutine and waits for it to exit.
// Safe to call multiple times, and before Start.
func (r *Reaper) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Running reports whether the background goroutine is active.
func (r *Reaper) Running() bool {
	return r.running.Load()
}

// Interval returns the sweep period.
func (r *Reaper) Interval() time.Duration {
	return r.interval
}

// LastSweep returns when the last sweep ran and how many keys it removed.
// The time is zero if no sweep has run yet.
func (r *Reaper) LastSweep() (time.Time, int) {
	nanos := r.lastSweep.Load()
	if nanos == 0 {
		return time.Time{}, 0
	}
	return time.Unix(0, nanos), int(r.lastRemoved.Load())
}
