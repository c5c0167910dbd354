// Package config provides configuration types for the admission gate.
//
// Configuration is file-based (YAML) with environment overrides. Counters
// are never configured here: the store is in-memory and starts empty.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values applied by SetDefaults.
const (
	DefaultHTTPAddr        = "127.0.0.1:8080"
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = "10s"
	DefaultCleanupInterval = "5m"
	DefaultShards          = 64
	DefaultUnidentified    = "shared"
	DefaultPreset          = "public"
	DefaultUpstreamTimeout = "30s"
)

// AdmissionConfig is the top-level configuration for the admission gate.
type AdmissionConfig struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// RateLimit configures the limiter, the reaper and preset overrides.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Routes classify proxied requests into presets. Evaluated in order;
	// first match wins. Unmatched requests use rate_limit.default_preset.
	Routes []RouteConfig `yaml:"routes" mapstructure:"routes" validate:"omitempty,dive"`

	// Upstream is the optional backend admitted requests are forwarded to.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// Tracing configures span export.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables development features (debug logging, tracing to stderr,
	// panics on internal invariant violations).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// TLS is not supported; terminate it at a reverse proxy.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`
}

// RateLimitConfig configures rate limiting.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// CleanupInterval is how often the reaper removes expired windows (e.g., "5m").
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// Shards is the number of lock stripes in the in-memory store.
	Shards int `yaml:"shards" mapstructure:"shards" validate:"omitempty,min=1,max=4096"`

	// Unidentified selects how requests without a client identifier are
	// limited: "shared" puts them in one bucket per preset, "strict" applies
	// the strictest preset to that bucket.
	Unidentified string `yaml:"unidentified" mapstructure:"unidentified" validate:"omitempty,unidentified_policy"`

	// DefaultPreset applies to requests no route matches.
	DefaultPreset string `yaml:"default_preset" mapstructure:"default_preset" validate:"omitempty,preset_name"`

	// Presets overrides built-in presets or adds new ones, keyed by name.
	Presets map[string]PresetConfig `yaml:"presets" mapstructure:"presets" validate:"omitempty,dive,keys,preset_name,endkeys"`
}

// PresetConfig is a quota override.
type PresetConfig struct {
	// MaxRequests is the number of requests admitted per window.
	MaxRequests int `yaml:"max_requests" mapstructure:"max_requests" validate:"required,min=1"`

	// Window is the window length (e.g., "60s", "5m").
	Window string `yaml:"window" mapstructure:"window" validate:"required,duration"`
}

// RouteConfig maps a class of requests to a preset.
type RouteConfig struct {
	// Name identifies the route in logs and the admin API.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// PathPrefix matches the request path by prefix ("/api/auth/" or "/api/auth/*").
	PathPrefix string `yaml:"path_prefix" mapstructure:"path_prefix" validate:"omitempty,startswith=/"`

	// Methods restricts the route to these HTTP methods. Empty matches all.
	Methods []string `yaml:"methods" mapstructure:"methods" validate:"omitempty,dive,required"`

	// Preset is the endpoint class applied to matching requests.
	Preset string `yaml:"preset" mapstructure:"preset" validate:"required,preset_name"`

	// Condition is an optional CEL expression over method, path, host,
	// client_id, headers and request_time.
	Condition string `yaml:"condition" mapstructure:"condition" validate:"omitempty,max=1024"`
}

// UpstreamConfig configures the backend admitted requests are forwarded to.
type UpstreamConfig struct {
	// URL of the backend (e.g., "http://127.0.0.1:3000"). Empty disables forwarding.
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// Timeout is the per-request timeout to the backend (e.g., "30s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	// Enabled exports spans as JSON to stderr.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDevDefaults applies development defaults.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *AdmissionConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
	if !viper.IsSet("tracing.enabled") {
		c.Tracing.Enabled = true
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *AdmissionConfig) SetDefaults() {
	// Bind to localhost only. Users who need network access must explicitly
	// set http_addr: ":8080" or "0.0.0.0:8080".
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Rate limiting is enabled unless explicitly turned off in YAML/env.
	// viper.IsSet distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = DefaultCleanupInterval
	}
	if c.RateLimit.Shards == 0 {
		c.RateLimit.Shards = DefaultShards
	}
	if c.RateLimit.Unidentified == "" {
		c.RateLimit.Unidentified = DefaultUnidentified
	}
	if c.RateLimit.DefaultPreset == "" {
		c.RateLimit.DefaultPreset = DefaultPreset
	}

	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
}

// HasUpstream reports whether admitted requests are forwarded to a backend.
func (c *AdmissionConfig) HasUpstream() bool {
	return c.Upstream.URL != ""
}

// ShutdownTimeout returns the parsed server.shutdown_timeout.
// Call after Validate.
func (c *AdmissionConfig) ShutdownTimeout() time.Duration {
	return mustDuration(c.Server.ShutdownTimeout, DefaultShutdownTimeout)
}

// CleanupInterval returns the parsed rate_limit.cleanup_interval.
// Call after Validate.
func (c *AdmissionConfig) CleanupInterval() time.Duration {
	return mustDuration(c.RateLimit.CleanupInterval, DefaultCleanupInterval)
}

// UpstreamTimeout returns the parsed upstream.timeout.
// Call after Validate.
func (c *AdmissionConfig) UpstreamTimeout() time.Duration {
	return mustDuration(c.Upstream.Timeout, DefaultUpstreamTimeout)
}

func mustDuration(s, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}
