package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

// Rate limit header names.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// rateLimitExceededMessage is the error text of every 429 body.
const rateLimitExceededMessage = "rate limit exceeded"

// TooManyRequestsBody is the JSON body of a 429 response.
type TooManyRequestsBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
	ResetAt    string `json:"resetAt"`
}

// WriteRateLimitHeaders sets the X-RateLimit-* headers for result.
// X-RateLimit-Reset is the window end in Unix seconds.
func WriteRateLimitHeaders(w http.ResponseWriter, result ratelimit.RateLimitResult) {
	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// WriteTooManyRequests renders the throttling response for a denied result.
// Retry-After is the whole number of seconds until the window resets,
// rounded up and never less than 1.
func WriteTooManyRequests(w http.ResponseWriter, result ratelimit.RateLimitResult, now time.Time) {
	retryAfter := max(result.RetryAfterSeconds(now), 1)

	WriteRateLimitHeaders(w, result)
	// Denials always report nothing left, whatever the caller passed.
	w.Header().Set(HeaderRateLimitRemaining, "0")
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))

	writeJSON(w, http.StatusTooManyRequests, TooManyRequestsBody{
		Error:      rateLimitExceededMessage,
		RetryAfter: retryAfter,
		ResetAt:    result.ResetAt.UTC().Format(time.RFC3339),
	})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a {"error": msg} JSON response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
