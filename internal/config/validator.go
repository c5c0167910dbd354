package config

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

var presetNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// RegisterCustomValidators registers admission-specific validation rules.
// Must be called before validating AdmissionConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	validators := map[string]validator.Func{
		"duration":            validateDuration,
		"preset_name":         validatePresetName,
		"unidentified_policy": validateUnidentifiedPolicy,
	}
	for tag, fn := range validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateDuration accepts strings parsed by time.ParseDuration that are positive.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// validatePresetName accepts lowercase names of letters, digits, '-' and '_'.
// Names are compared case-insensitively.
func validatePresetName(fl validator.FieldLevel) bool {
	name := strings.ToLower(strings.TrimSpace(fl.Field().String()))
	return presetNamePattern.MatchString(name)
}

// validateUnidentifiedPolicy accepts "shared" or "strict".
func validateUnidentifiedPolicy(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "shared", "strict":
		return true
	}
	return false
}

// Validate validates the AdmissionConfig using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *AdmissionConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field validation: overrides must produce a valid preset table.
	registry, err := c.PresetRegistry()
	if err != nil {
		return fmt.Errorf("rate_limit.presets: %w", err)
	}

	// Cross-field validation: preset references.
	if err := c.validatePresetReferences(registry); err != nil {
		return err
	}

	return nil
}

// validatePresetReferences ensures routes and the default preset name known presets.
func (c *AdmissionConfig) validatePresetReferences(registry *ratelimit.PresetRegistry) error {
	if !registry.Has(c.RateLimit.DefaultPreset) {
		return fmt.Errorf("rate_limit.default_preset: unknown preset %q (known: %s)",
			c.RateLimit.DefaultPreset, strings.Join(presetNames(registry), ", "))
	}

	seen := make(map[string]int, len(c.Routes))
	for i, r := range c.Routes {
		if !registry.Has(r.Preset) {
			return fmt.Errorf("routes[%d] (%s): unknown preset %q (known: %s)",
				i, r.Name, r.Preset, strings.Join(presetNames(registry), ", "))
		}
		if j, dup := seen[r.Name]; dup {
			return fmt.Errorf("routes[%d]: duplicate route name %q (also routes[%d])", i, r.Name, j)
		}
		seen[r.Name] = i
	}
	return nil
}

// PresetRegistry builds the preset table: the built-in presets with
// rate_limit.presets applied on top.
func (c *AdmissionConfig) PresetRegistry() (*ratelimit.PresetRegistry, error) {
	names := make([]string, 0, len(c.RateLimit.Presets))
	for name := range c.RateLimit.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	overrides := make([]ratelimit.Preset, 0, len(names))
	for _, name := range names {
		p := c.RateLimit.Presets[name]
		window, err := time.ParseDuration(p.Window)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid window %q: %w", name, p.Window, err)
		}
		overrides = append(overrides, ratelimit.Preset{
			Name:        name,
			MaxRequests: p.MaxRequests,
			Window:      window,
		})
	}
	return ratelimit.NewPresetRegistry(overrides...)
}

// RouteDefinitions converts the configured routes to domain routes.
func (c *AdmissionConfig) RouteDefinitions() []ratelimit.Route {
	routes := make([]ratelimit.Route, 0, len(c.Routes))
	for _, r := range c.Routes {
		routes = append(routes, ratelimit.Route{
			Name:       r.Name,
			PathPrefix: r.PathPrefix,
			Methods:    r.Methods,
			Preset:     r.Preset,
			Condition:  r.Condition,
		})
	}
	return routes
}

func presetNames(registry *ratelimit.PresetRegistry) []string {
	presets := registry.Presets()
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	return names
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration (e.g. \"30s\", \"5m\")", field)
	case "preset_name":
		return fmt.Sprintf("%s must be a preset name of letters, digits, '-' or '_'", field)
	case "unidentified_policy":
		return fmt.Sprintf("%s must be 'shared' or 'strict'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
