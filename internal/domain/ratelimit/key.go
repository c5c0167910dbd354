package ratelimit

import "fmt"

// keyPrefix is the base prefix for all rate limit keys.
const keyPrefix = "ratelimit"

// DefaultClass is the endpoint class used for configs without a name.
const DefaultClass = "custom"

// FormatKey returns a structured rate limit key.
// Format: "ratelimit:{class}:{identifier}"
// Examples:
//   - FormatKey("auth", "203.0.113.5") -> "ratelimit:auth:203.0.113.5"
//   - FormatKey("", "unknown") -> "ratelimit:custom:unknown"
func FormatKey(class, identifier string) string {
	if class == "" {
		class = DefaultClass
	}
	return fmt.Sprintf("%s:%s:%s", keyPrefix, class, identifier)
}
