package service

import (
	"sort"
	"sync"
	"sync/atomic"
)

// StatsService tracks admission statistics using lock-free atomic counters.
// It implements AdmissionObserver and backs the admin stats endpoint.
type StatsService struct {
	allowed     atomic.Int64
	rateLimited atomic.Int64
	reaped      atomic.Int64
	trackedKeys atomic.Int64

	// Per-preset counters (mutex-protected map).
	mu           sync.Mutex
	presetCounts map[string]*PresetStats
}

// PresetStats holds the decision counts for one endpoint class.
type PresetStats struct {
	Allowed     int64 `json:"allowed"`
	RateLimited int64 `json:"rate_limited"`
}

// NewStatsService creates a new StatsService with all counters initialized to zero.
func NewStatsService() *StatsService {
	return &StatsService{
		presetCounts: make(map[string]*PresetStats),
	}
}

// ObserveDecision records one admission decision for preset.
func (s *StatsService) ObserveDecision(preset string, allowed bool) {
	if allowed {
		s.allowed.Add(1)
	} else {
		s.rateLimited.Add(1)
	}

	s.mu.Lock()
	ps, ok := s.presetCounts[preset]
	if !ok {
		ps = &PresetStats{}
		s.presetCounts[preset] = ps
	}
	if allowed {
		ps.Allowed++
	} else {
		ps.RateLimited++
	}
	s.mu.Unlock()
}

// ObserveSweep records the outcome of one store sweep.
func (s *StatsService) ObserveSweep(removed, remaining int) {
	s.reaped.Add(int64(removed))
	s.trackedKeys.Store(int64(remaining))
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	Allowed     int64                  `json:"allowed"`
	RateLimited int64                  `json:"rate_limited"`
	Reaped      int64                  `json:"reaped"`
	TrackedKeys int64                  `json:"tracked_keys"`
	Presets     map[string]PresetStats `json:"presets"`
}

// PresetNames returns the preset names present in the snapshot, sorted.
func (st Stats) PresetNames() []string {
	names := make([]string, 0, len(st.Presets))
	for name := range st.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
// TrackedKeys reflects the store size at the last sweep.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	presets := make(map[string]PresetStats, len(s.presetCounts))
	for k, v := range s.presetCounts {
		presets[k] = *v
	}
	s.mu.Unlock()

	return Stats{
		Allowed:     s.allowed.Load(),
		RateLimited: s.rateLimited.Load(),
		Reaped:      s.reaped.Load(),
		TrackedKeys: s.trackedKeys.Load(),
		Presets:     presets,
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.allowed.Store(0)
	s.rateLimited.Store(0)
	s.reaped.Store(0)
	s.trackedKeys.Store(0)

	s.mu.Lock()
	s.presetCounts = make(map[string]*PresetStats)
	s.mu.Unlock()
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []AdmissionObserver

// ObserveDecision forwards to every observer.
func (m MultiObserver) ObserveDecision(preset string, allowed bool) {
	for _, o := range m {
		o.ObserveDecision(preset, allowed)
	}
}

// ObserveSweep forwards to every observer.
func (m MultiObserver) ObserveSweep(removed, remaining int) {
	for _, o := range m {
		o.ObserveSweep(removed, remaining)
	}
}

// Compile-time interface verification.
var (
	_ AdmissionObserver = (*StatsService)(nil)
	_ AdmissionObserver = MultiObserver(nil)
)
