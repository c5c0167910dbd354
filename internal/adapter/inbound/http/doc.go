// Package http provides the HTTP front of the admission gate.
//
// # Usage
//
//	gate := http.NewGate(admissionService, registry,
//	    http.WithRouteTable(routes),
//	    http.WithUnidentifiedPolicy(http.UnidentifiedShared),
//	)
//	server := http.NewServer(gate,
//	    http.WithAddr(":8080"),
//	    http.WithUpstream(forwarder),
//	    http.WithLogger(logger),
//	)
//	err := server.Start(ctx)
//
// # Endpoints
//
//	GET  /health                 - component health
//	GET  /metrics                - Prometheus metrics
//	GET  /v1/admission/check     - decision endpoint for fronting proxies (204 or 429)
//	     /admin/api/ratelimit/*  - localhost-only admin API
//	     /*                      - classified, rate limited, forwarded upstream
//
// # Client identity
//
// The client is identified by the first entry of X-Forwarded-For, then
// X-Real-IP, then CF-Connecting-IP. Requests carrying none of them are
// identified as "unknown" and share a bucket. The headers are taken at face
// value, so the gate must sit behind a proxy that sets them.
//
// # Throttled responses
//
// Denied requests receive 429 with Retry-After, X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset headers and a JSON body:
//
//	{"error":"rate limit exceeded","retryAfter":30,"resetAt":"2026-03-01T12:01:00Z"}
package http
