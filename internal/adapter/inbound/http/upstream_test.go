package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUpstreamForwarder_ForwardsRequest(t *testing.T) {
	var gotPath, gotQuery, gotXFF, gotConn, gotBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotXFF = r.Header.Get("X-Forwarded-For")
		gotConn = r.Header.Get("Proxy-Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Backend", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer backend.Close()

	fwd, err := NewUpstreamForwarder(backend.URL+"/", time.Second, discardLogger())
	if err != nil {
		t.Fatalf("NewUpstreamForwarder() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/items?x=1", strings.NewReader("payload"))
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	req.Header.Set("Proxy-Authorization", "secret")
	req.RemoteAddr = "10.0.0.9:5555"
	rec := httptest.NewRecorder()
	fwd.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != "created" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Backend") != "yes" {
		t.Error("upstream response header not copied")
	}
	if gotPath != "/api/items" || gotQuery != "x=1" {
		t.Errorf("upstream saw %q ? %q", gotPath, gotQuery)
	}
	if gotXFF != "203.0.113.5, 10.0.0.9" {
		t.Errorf("X-Forwarded-For = %q", gotXFF)
	}
	if gotConn != "" {
		t.Error("hop-by-hop header forwarded")
	}
	if gotBody != "payload" {
		t.Errorf("upstream body = %q", gotBody)
	}
}

func TestUpstreamForwarder_Unreachable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	fwd, err := NewUpstreamForwarder(url, 200*time.Millisecond, discardLogger())
	if err != nil {
		t.Fatalf("NewUpstreamForwarder() error = %v", err)
	}

	rec := httptest.NewRecorder()
	fwd.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestNewUpstreamForwarder_InvalidURL(t *testing.T) {
	if _, err := NewUpstreamForwarder("://bad", 0, nil); err == nil {
		t.Error("expected error for invalid URL")
	}
}
