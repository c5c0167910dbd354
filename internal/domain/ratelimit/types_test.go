package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestNewRateLimitConfig_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := NewRateLimitConfig(5, time.Minute, "ip-1")
	if err != nil {
		t.Fatalf("NewRateLimitConfig() error: %v", err)
	}
	if cfg.MaxRequests != 5 || cfg.Window != time.Minute || cfg.Identifier != "ip-1" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestNewRateLimitConfig_RejectsNonPositive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		max     int
		window  time.Duration
		wantErr error
	}{
		{"zero max", 0, time.Minute, ErrInvalidMaxRequests},
		{"negative max", -1, time.Minute, ErrInvalidMaxRequests},
		{"zero window", 5, 0, ErrInvalidWindow},
		{"negative window", 5, -time.Second, ErrInvalidWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRateLimitConfig(tt.max, tt.window, "id")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRateLimitConfig_ForClient(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{Name: PresetAuth, MaxRequests: 5, Window: time.Minute}
	got := cfg.ForClient("203.0.113.5")

	if got.Identifier != "ratelimit:auth:203.0.113.5" {
		t.Errorf("Identifier = %q", got.Identifier)
	}
	if cfg.Identifier != "" {
		t.Error("ForClient must not mutate the template")
	}
}

func TestFormatKey_DefaultClass(t *testing.T) {
	t.Parallel()

	if got := FormatKey("", "unknown"); got != "ratelimit:custom:unknown" {
		t.Errorf("FormatKey() = %q", got)
	}
}

func TestEntry_ExpiredAt(t *testing.T) {
	t.Parallel()

	reset := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := Entry{Count: 3, ResetAt: reset}

	if e.ExpiredAt(reset.Add(-time.Nanosecond)) {
		t.Error("entry should be live before ResetAt")
	}
	if !e.ExpiredAt(reset) {
		t.Error("ResetAt is exclusive: entry should be expired at ResetAt")
	}
	if !e.ExpiredAt(reset.Add(time.Second)) {
		t.Error("entry should be expired after ResetAt")
	}
}

func TestRateLimitResult_RetryAfterSeconds(t *testing.T) {
	t.Parallel()

	reset := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	r := RateLimitResult{Success: false, Limit: 10, ResetAt: reset}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"exact 30s", reset.Add(-30 * time.Second), 30},
		{"rounds up", reset.Add(-29*time.Second - time.Millisecond), 30},
		{"sub-second", reset.Add(-time.Millisecond), 1},
		{"at reset", reset, 0},
		{"past reset", reset.Add(time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RetryAfterSeconds(tt.now); got != tt.want {
				t.Errorf("RetryAfterSeconds() = %d, want %d", got, tt.want)
			}
		})
	}
}
