package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sentinel-Gate/admission/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced ratelimit.Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdmissionService(clock ratelimit.Clock, opts ...AdmissionOption) (*AdmissionService, *memory.MemoryRateLimitStore) {
	store := memory.NewRateLimitStore()
	opts = append([]AdmissionOption{WithClock(clock), WithLogger(discardLogger())}, opts...)
	return NewAdmissionService(store, opts...), store
}

func TestAdmissionService_FirstRequestOpensWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testEpoch)
	svc, _ := newTestAdmissionService(clock)
	cfg := ratelimit.RateLimitConfig{MaxRequests: 5, Window: 60 * time.Second, Identifier: "1.2.3.4"}

	got := svc.Check(context.Background(), cfg)
	want := ratelimit.RateLimitResult{
		Success:   true,
		Limit:     5,
		Remaining: 4,
		ResetAt:   testEpoch.Add(60 * time.Second),
	}
	if got != want {
		t.Errorf("Check() = %+v, want %+v", got, want)
	}
}

func TestAdmissionService_DeniesSixthRequest(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testEpoch)
	svc, _ := newTestAdmissionService(clock)
	cfg := ratelimit.RateLimitConfig{MaxRequests: 5, Window: 60 * time.Second, Identifier: "1.2.3.4"}

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		if res := svc.Check(context.Background(), cfg); !res.Success {
			t.Fatalf("request %d denied", i+1)
		}
	}

	clock.Advance(time.Second)
	res := svc.Check(context.Background(), cfg)
	if res.Success {
		t.Fatal("sixth request admitted")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	// The window was opened by the first request at epoch+1s.
	if want := testEpoch.Add(61 * time.Second); !res.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", res.ResetAt, want)
	}
}

func TestAdmissionService_RolloverAfterWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testEpoch)
	svc, _ := newTestAdmissionService(clock)
	cfg := ratelimit.RateLimitConfig{MaxRequests: 5, Window: 60 * time.Second, Identifier: "1.2.3.4"}

	for i := 0; i < 6; i++ {
		svc.Check(context.Background(), cfg)
	}

	clock.Advance(61 * time.Second)
	res := svc.Check(context.Background(), cfg)
	if !res.Success {
		t.Fatal("request after window end was denied")
	}
	if res.Remaining != 4 {
		t.Errorf("Remaining = %d, want 4", res.Remaining)
	}
	if want := clock.Now().Add(60 * time.Second); !res.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", res.ResetAt, want)
	}
}

func TestAdmissionService_RolloverAtExactResetAt(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testEpoch)
	svc, _ := newTestAdmissionService(clock)
	cfg := ratelimit.RateLimitConfig{MaxRequests: 1, Window: 10 * time.Second, Identifier: "k"}

	first := svc.Check(context.Background(), cfg)
	if second := svc.Check(context.Background(), cfg); second.Success {
		t.Fatal("second request in window admitted")
	}

	clock.Advance(first.ResetAt.Sub(clock.Now()))
	if res := svc.Check(context.Background(), cfg); !res.Success {
		t.Error("request at ResetAt should start a new window")
	}
}

func TestAdmissionService_IdentifiersAreIsolated(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testEpoch)
	svc, _ := newTestAdmissionService(clock)
	auth := ratelimit.RateLimitConfig{Name: "auth", MaxRequests: 2, Window: time.Minute}

	a := auth.ForClient("10.0.0.1")
	b := auth.ForClient("10.0.0.2")

	for i := 0; i < 3; i++ {
		svc.Check(context.Background(), a)
	}
	if res := svc.Check(context.Background(), a); res.Success {
		t.Error("exhausted client admitted")
	}
	if res := svc.Check(context.Background(), b); !res.Success || res.Remaining != 1 {
		t.Errorf("other client affected: %+v", res)
	}

	// Same client, different endpoint class.
	query := ratelimit.RateLimitConfig{Name: "query", MaxRequests: 2, Window: time.Minute}.ForClient("10.0.0.1")
	if res := svc.Check(context.Background(), query); !res.Success {
		t.Error("endpoint classes share a bucket")
	}
}

func TestAdmissionService_RemainingIsMonotonic(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testEpoch)
	svc, _ := newTestAdmissionService(clock)
	cfg := ratelimit.RateLimitConfig{MaxRequests: 10, Window: time.Minute, Identifier: "k"}

	prev := cfg.MaxRequests
	for i := 0; i < 25; i++ {
		clock.Advance(time.Second)
		res := svc.Check(context.Background(), cfg)
		if res.Remaining > prev {
			t.Fatalf("request %d: Remaining rose from %d to %d", i+1, prev, res.Remaining)
		}
		if res.Remaining < 0 || res.Remaining > res.Limit {
			t.Fatalf("request %d: Remaining %d out of [0,%d]", i+1, res.Remaining, res.Limit)
		}
		if res.Limit != cfg.MaxRequests {
			t.Fatalf("Limit = %d, want %d", res.Limit, cfg.MaxRequests)
		}
		prev = res.Remaining
	}
}

func TestAdmissionService_ResetAtIsStableWithinWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testEpoch)
	svc, _ := newTestAdmissionService(clock)
	cfg := ratelimit.RateLimitConfig{MaxRequests: 3, Window: time.Minute, Identifier: "k"}

	first := svc.Check(context.Background(), cfg)
	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Second)
		res := svc.Check(context.Background(), cfg)
		if !res.ResetAt.Equal(first.ResetAt) {
			t.Fatalf("check %d: ResetAt moved to %v", i, res.ResetAt)
		}
	}
}

func TestAdmissionService_ConcurrentChecksNeverOverAdmit(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testEpoch)
	svc, _ := newTestAdmissionService(clock)
	cfg := ratelimit.RateLimitConfig{MaxRequests: 100, Window: time.Hour, Identifier: "hot"}

	const workers = 32
	const perWorker = 50

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if svc.Check(context.Background(), cfg).Success {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != int64(cfg.MaxRequests) {
		t.Errorf("admitted %d requests, want exactly %d", got, cfg.MaxRequests)
	}
}

func TestAdmissionService_InvalidConfigDenies(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(testEpoch)
	stats := NewStatsService()
	svc, store := newTestAdmissionService(clock, WithObserver(stats))

	tests := []struct {
		name string
		cfg  ratelimit.RateLimitConfig
	}{
		{"zero max", ratelimit.RateLimitConfig{MaxRequests: 0, Window: time.Minute, Identifier: "k"}},
		{"negative window", ratelimit.RateLimitConfig{MaxRequests: 5, Window: -time.Second, Identifier: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Check(context.Background(), tt.cfg)
			if res.Success {
				t.Error("invalid config admitted")
			}
			if res.Remaining != 0 {
				t.Errorf("Remaining = %d, want 0", res.Remaining)
			}
			if !res.ResetAt.Equal(testEpoch) {
				t.Errorf("ResetAt = %v, want now", res.ResetAt)
			}
		})
	}

	if store.Len() != 0 {
		t.Errorf("invalid configs touched the store: %d keys", store.Len())
	}
	if got := stats.GetStats().RateLimited; got != 2 {
		t.Errorf("RateLimited = %d, want 2", got)
	}
}

func TestAdmissionService_StrictModePanics(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAdmissionService(newFakeClock(testEpoch), WithStrictInvariants(true))

	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid config in strict mode")
		}
	}()
	svc.Check(context.Background(), ratelimit.RateLimitConfig{MaxRequests: 0, Window: time.Minute})
}

func TestAdmissionService_ObserverLabels(t *testing.T) {
	t.Parallel()

	stats := NewStatsService()
	svc, _ := newTestAdmissionService(newFakeClock(testEpoch), WithObserver(stats))

	svc.Check(context.Background(), ratelimit.RateLimitConfig{Name: "upload", MaxRequests: 1, Window: time.Minute, Identifier: "a"})
	svc.Check(context.Background(), ratelimit.RateLimitConfig{Name: "upload", MaxRequests: 1, Window: time.Minute, Identifier: "a"})
	svc.Check(context.Background(), ratelimit.RateLimitConfig{MaxRequests: 1, Window: time.Minute, Identifier: "b"})

	got := stats.GetStats()
	if p := got.Presets["upload"]; p.Allowed != 1 || p.RateLimited != 1 {
		t.Errorf("upload = %+v, want {1 1}", p)
	}
	if p := got.Presets[ratelimit.DefaultClass]; p.Allowed != 1 {
		t.Errorf("unnamed config not labelled %q: %+v", ratelimit.DefaultClass, got.Presets)
	}
}

func TestAdmissionService_PresetTemplates(t *testing.T) {
	t.Parallel()

	registry, err := ratelimit.NewPresetRegistry()
	if err != nil {
		t.Fatalf("NewPresetRegistry() error = %v", err)
	}
	clock := newFakeClock(testEpoch)
	svc, _ := newTestAdmissionService(clock)

	cfg, err := registry.Get(ratelimit.PresetAuth)
	if err != nil {
		t.Fatalf("Get(auth) error = %v", err)
	}
	cfg = cfg.ForClient("1.2.3.4")

	var last ratelimit.RateLimitResult
	for i := 0; i < 6; i++ {
		last = svc.Check(context.Background(), cfg)
	}
	if last.Success {
		t.Error("sixth auth request admitted")
	}
	if _, err := registry.Get("nope"); !errors.Is(err, ratelimit.ErrUnknownPreset) {
		t.Errorf("Get(nope) error = %v, want ErrUnknownPreset", err)
	}
}

func TestAdmissionService_RecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	svc, _ := newTestAdmissionService(newFakeClock(testEpoch), WithTracer(tp.Tracer("test")))

	svc.Check(context.Background(), ratelimit.RateLimitConfig{Name: "auth", MaxRequests: 1, Window: time.Minute, Identifier: "a"})
	svc.Check(context.Background(), ratelimit.RateLimitConfig{Name: "auth", MaxRequests: 1, Window: time.Minute, Identifier: "a"})
	svc.Check(context.Background(), ratelimit.RateLimitConfig{Name: "auth", MaxRequests: 0, Window: time.Minute, Identifier: "a"})

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("recorded %d spans, want 3", len(spans))
	}
	for _, s := range spans {
		if s.Name() != "ratelimit.check" {
			t.Errorf("span name = %q", s.Name())
		}
	}

	allowed := func(s sdktrace.ReadOnlySpan) (bool, bool) {
		for _, kv := range s.Attributes() {
			if kv.Key == attribute.Key("ratelimit.allowed") {
				return kv.Value.AsBool(), true
			}
		}
		return false, false
	}
	if v, ok := allowed(spans[0]); !ok || !v {
		t.Errorf("first span allowed = %v, %v", v, ok)
	}
	if v, ok := allowed(spans[1]); !ok || v {
		t.Errorf("second span allowed = %v, %v", v, ok)
	}
	if spans[2].Status().Code != codes.Error {
		t.Errorf("invalid config span status = %v, want Error", spans[2].Status().Code)
	}
}
