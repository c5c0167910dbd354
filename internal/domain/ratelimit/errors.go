package ratelimit

import "errors"

var (
	// ErrInvalidMaxRequests is returned when a config has a non-positive ceiling.
	ErrInvalidMaxRequests = errors.New("ratelimit: max requests must be positive")

	// ErrInvalidWindow is returned when a config has a non-positive window.
	ErrInvalidWindow = errors.New("ratelimit: window must be positive")

	// ErrUnknownPreset is returned when a preset name is not registered.
	ErrUnknownPreset = errors.New("ratelimit: unknown preset")

	// ErrEmptyPresetName is returned when a preset is declared without a name.
	ErrEmptyPresetName = errors.New("ratelimit: preset name is required")
)
