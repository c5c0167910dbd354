package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/Sentinel-Gate/admission/internal/ctxkey"
)

// UnknownClient is the identifier used when no proxy header names the client.
// All such requests share one bucket per endpoint class.
const UnknownClient = "unknown"

// ClientIDKey is the context key for the resolved client identifier.
var ClientIDKey = ctxkey.ClientIDKey{}

// ResolveClientIdentifier derives the client identifier from request headers.
// It checks, in order, the first entry of X-Forwarded-For, X-Real-IP and
// CF-Connecting-IP, and falls back to UnknownClient. The result is never empty.
//
// The headers are trusted as-is; deployments must make sure a proxy in front
// of the service overwrites them.
func ResolveClientIdentifier(h http.Header) string {
	// Format: X-Forwarded-For: client, proxy1, proxy2
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if ip := strings.TrimSpace(h.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	return UnknownClient
}

// ClientIdentityMiddleware resolves the client identifier once per request,
// stores it in the context under ClientIDKey and adds it to the request logger.
func ClientIdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := ResolveClientIdentifier(r.Header)

		ctx := context.WithValue(r.Context(), ClientIDKey, clientID)
		ctx = context.WithValue(ctx, LoggerKey, LoggerFromContext(ctx).With("client_id", clientID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIDFromContext returns the identifier stored by ClientIdentityMiddleware.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ClientIDKey).(string)
	return id, ok
}

// clientIDForRequest returns the identifier from the context, resolving it
// from headers when the middleware did not run.
func clientIDForRequest(r *http.Request) string {
	if id, ok := ClientIDFromContext(r.Context()); ok {
		return id
	}
	return ResolveClientIdentifier(r.Header)
}
