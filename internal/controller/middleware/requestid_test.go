package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"projectplane/internal/logger"
)

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	if seen == "" {
		t.Fatal("no request id on context")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("header %q does not match context id %q", rec.Header().Get("X-Request-ID"), seen)
	}
}

func TestRequestID_HonorsCallerSuppliedID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if seen != "req-abc" {
		t.Errorf("got %q, want req-abc", seen)
	}
}
