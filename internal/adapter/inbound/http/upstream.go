package http

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// hopByHopHeaders are removed before forwarding a request upstream.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// UpstreamForwarder forwards admitted requests to a single upstream.
type UpstreamForwarder struct {
	base   *url.URL
	client *http.Client
	logger *slog.Logger
}

// NewUpstreamForwarder creates a forwarder for rawURL. timeout bounds each
// upstream round trip; zero means 30s.
func NewUpstreamForwarder(rawURL string, timeout time.Duration, logger *slog.Logger) (*UpstreamForwarder, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UpstreamForwarder{
		base: base,
		client: &http.Client{
			Timeout: timeout,
			// Do not follow redirects -- pass them through to the caller.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}, nil
}

// ServeHTTP forwards r and copies the upstream response back.
// On transport errors it answers 502 with a JSON body.
func (f *UpstreamForwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upstreamURL := strings.TrimRight(f.base.String(), "/") + r.URL.Path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to create upstream request", "error", err, "url", upstreamURL)
		writeError(w, http.StatusBadGateway, "failed to create upstream request")
		return
	}
	outReq.ContentLength = r.ContentLength

	for key, values := range r.Header {
		for _, v := range values {
			outReq.Header.Add(key, v)
		}
	}
	for _, h := range hopByHopHeaders {
		outReq.Header.Del(h)
	}

	clientIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if clientIP == "" {
		clientIP = r.RemoteAddr
	}
	if prior := outReq.Header.Get("X-Forwarded-For"); prior != "" {
		outReq.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		outReq.Header.Set("X-Forwarded-For", clientIP)
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	outReq.Header.Set("X-Forwarded-Proto", scheme)
	outReq.Header.Set("X-Forwarded-Host", r.Host)

	resp, err := f.client.Do(outReq)
	if err != nil {
		LoggerFromContext(r.Context()).Error("upstream error", "error", err, "url", upstreamURL)
		writeError(w, http.StatusBadGateway, "upstream unreachable")
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		f.logger.Debug("error copying upstream response body", "error", err)
	}
}

// noUpstreamHandler answers admitted requests when no upstream is configured.
func noUpstreamHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no upstream configured")
	})
}
