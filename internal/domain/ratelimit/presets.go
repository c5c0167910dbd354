package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Preset names for the endpoint classes shared across call sites.
const (
	PresetAuth   = "auth"
	PresetAdmin  = "admin"
	PresetPublic = "public"
	PresetUpload = "upload"
	PresetQuery  = "query"
)

// Preset is a named, fixed quota.
type Preset struct {
	Name        string        `json:"name" yaml:"name"`
	MaxRequests int           `json:"max_requests" yaml:"max_requests"`
	Window      time.Duration `json:"window" yaml:"window"`
}

// Config returns the preset as a config template without an identifier.
func (p Preset) Config() RateLimitConfig {
	return RateLimitConfig{
		Name:        p.Name,
		MaxRequests: p.MaxRequests,
		Window:      p.Window,
	}
}

// DefaultPresets returns the built-in quota table.
func DefaultPresets() []Preset {
	return []Preset{
		{Name: PresetAuth, MaxRequests: 5, Window: 60 * time.Second},
		{Name: PresetAdmin, MaxRequests: 30, Window: 60 * time.Second},
		{Name: PresetPublic, MaxRequests: 100, Window: 60 * time.Second},
		{Name: PresetUpload, MaxRequests: 10, Window: 300 * time.Second},
		{Name: PresetQuery, MaxRequests: 50, Window: 60 * time.Second},
	}
}

// PresetRegistry is an immutable table of named quotas.
// It is built once at startup and only read afterwards, so it needs no lock.
type PresetRegistry struct {
	presets map[string]Preset
}

// NewPresetRegistry builds a registry from the default table with the given
// overrides applied. Overrides replace a default with the same name or add a
// new preset. Every resulting preset is validated.
func NewPresetRegistry(overrides ...Preset) (*PresetRegistry, error) {
	presets := make(map[string]Preset, len(DefaultPresets())+len(overrides))
	for _, p := range DefaultPresets() {
		presets[p.Name] = p
	}
	for _, p := range overrides {
		name := normalizePresetName(p.Name)
		if name == "" {
			return nil, ErrEmptyPresetName
		}
		p.Name = name
		if err := p.Config().Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		presets[name] = p
	}
	return &PresetRegistry{presets: presets}, nil
}

// Get returns the config template for name. The caller supplies the identifier.
func (r *PresetRegistry) Get(name string) (RateLimitConfig, error) {
	p, ok := r.presets[normalizePresetName(name)]
	if !ok {
		return RateLimitConfig{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p.Config(), nil
}

// MustGet is like Get but panics on unknown names. Use it only with the
// Preset* constants.
func (r *PresetRegistry) MustGet(name string) RateLimitConfig {
	cfg, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Has reports whether name is registered.
func (r *PresetRegistry) Has(name string) bool {
	_, ok := r.presets[normalizePresetName(name)]
	return ok
}

// Presets returns a copy of all presets sorted by name.
func (r *PresetRegistry) Presets() []Preset {
	out := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Strictest returns the preset with the lowest admitted rate.
func (r *PresetRegistry) Strictest() Preset {
	var strictest Preset
	first := true
	for _, p := range r.Presets() {
		if first || rateOf(p) < rateOf(strictest) {
			strictest = p
			first = false
		}
	}
	return strictest
}

func rateOf(p Preset) float64 {
	return float64(p.MaxRequests) / p.Window.Seconds()
}

func normalizePresetName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
