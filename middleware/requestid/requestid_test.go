package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware_GeneratesID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 32 {
		t.Fatalf("expected 32 hex chars, got %q", seen)
	}
	if w.Header().Get(Header) != seen {
		t.Fatalf("expected response header to carry the id")
	}
}

func TestMiddleware_ReusesClientID(t *testing.T) {
	var seen, forwarded string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		forwarded = r.Header.Get(Header)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(Header, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if seen != "abc-123" || forwarded != "abc-123" {
		t.Fatalf("expected client id to be kept, got %q/%q", seen, forwarded)
	}
}

func TestMiddleware_ReplacesInvalidID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(Header, strings.Repeat("x", 500))
	h.ServeHTTP(httptest.NewRecorder(), r)

	if len(seen) != 32 {
		t.Fatalf("expected a generated id, got %q", seen)
	}
}
