package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/admission/internal/adapter/outbound/memory"
)

func TestReaper_SweepNowRemovesExpired(t *testing.T) {
	clock := newFakeClock(testEpoch)
	store := memory.NewRateLimitStore()
	stats := NewStatsService()
	reaper := NewReaper(store,
		WithReaperClock(clock),
		WithReaperLogger(discardLogger()),
		WithReaperObserver(stats))

	store.Hit("short", 10*time.Second, testEpoch)
	store.Hit("long", time.Hour, testEpoch)

	if removed := reaper.SweepNow(); removed != 0 {
		t.Errorf("SweepNow() before expiry removed %d", removed)
	}

	clock.Advance(11 * time.Second)
	if removed := reaper.SweepNow(); removed != 1 {
		t.Errorf("SweepNow() removed %d, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}

	at, removed := reaper.LastSweep()
	if !at.Equal(clock.Now()) || removed != 1 {
		t.Errorf("LastSweep() = %v, %d", at, removed)
	}

	got := stats.GetStats()
	if got.Reaped != 1 || got.TrackedKeys != 1 {
		t.Errorf("observer stats = %+v", got)
	}
}

func TestReaper_LastSweepZeroBeforeFirstRun(t *testing.T) {
	reaper := NewReaper(memory.NewRateLimitStore())
	if at, removed := reaper.LastSweep(); !at.IsZero() || removed != 0 {
		t.Errorf("LastSweep() = %v, %d, want zero", at, removed)
	}
	if reaper.Interval() != DefaultSweepInterval {
		t.Errorf("Interval() = %v, want %v", reaper.Interval(), DefaultSweepInterval)
	}
}

func TestReaper_IgnoresNonPositiveInterval(t *testing.T) {
	reaper := NewReaper(memory.NewRateLimitStore(), WithSweepInterval(0))
	if reaper.Interval() != DefaultSweepInterval {
		t.Errorf("Interval() = %v, want default", reaper.Interval())
	}
}

func TestReaper_BackgroundSweep(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := memory.NewRateLimitStore()
	// Entries are written an hour in the past so they are expired by wall time.
	past := time.Now().Add(-time.Hour)
	for _, key := range []string{"a", "b", "c"} {
		store.Hit(key, time.Second, past)
	}

	reaper := NewReaper(store,
		WithSweepInterval(10*time.Millisecond),
		WithReaperLogger(discardLogger()))
	reaper.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after background sweeps, want 0", store.Len())
	}

	reaper.Stop()
	if reaper.Running() {
		t.Error("Running() = true after Stop()")
	}
}

func TestReaper_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	reaper := NewReaper(memory.NewRateLimitStore(), WithSweepInterval(time.Millisecond))
	reaper.Start(context.Background())

	reaper.Stop()
	reaper.Stop()
}

func TestReaper_StopBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	reaper := NewReaper(memory.NewRateLimitStore())
	reaper.Stop()
}

func TestReaper_ContextCancelStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	reaper := NewReaper(memory.NewRateLimitStore(), WithSweepInterval(time.Millisecond))
	reaper.Start(ctx)

	cancel()
	// Stop waits for the goroutine that already exited through ctx.
	reaper.Stop()
	if reaper.Running() {
		t.Error("Running() = true after cancel")
	}
}

// overlapStore records the highest number of concurrent Sweep calls.
type overlapStore struct {
	*memory.MemoryRateLimitStore
	active  atomic.Int32
	maxSeen atomic.Int32
	sweeps  atomic.Int32
}

func (s *overlapStore) Sweep(now time.Time) int {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	s.sweeps.Add(1)
	return s.MemoryRateLimitStore.Sweep(now)
}

func TestReaper_StartTwiceRunsOneLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &overlapStore{MemoryRateLimitStore: memory.NewRateLimitStore()}
	reaper := NewReaper(store,
		WithSweepInterval(time.Millisecond),
		WithReaperLogger(discardLogger()))
	reaper.Start(context.Background())
	reaper.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for store.sweeps.Load() < 10 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	reaper.Stop()

	if store.sweeps.Load() < 10 {
		t.Fatalf("only %d sweeps ran", store.sweeps.Load())
	}
	if got := store.maxSeen.Load(); got != 1 {
		t.Errorf("concurrent background sweeps = %d, want 1", got)
	}
}
