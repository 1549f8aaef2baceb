package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cab-gateway/middleware/ratelimit/domain"
	"cab-gateway/middleware/ratelimit/infra"
)

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
}

func doRequest(h http.Handler, remote string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example/api/cabs", nil)
	r.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_AdmitsUpToMaxThenRejects(t *testing.T) {
	store := infra.NewFixedWindowStore(15*time.Minute, 100)
	now := time.Unix(1700000000, 0)

	calls := 0
	h := Middleware(Options{
		Store: store,
		Now:   func() time.Time { return now },
	})(okHandler(&calls))

	for i := 1; i <= 100; i++ {
		if w := doRequest(h, "10.0.0.1:1234"); w.Code != http.StatusOK {
			t.Fatalf("expected request %d to pass, got %d", i, w.Code)
		}
	}

	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected json body: %v", err)
	}
	if body["error"] != "Too Many Requests" {
		t.Fatalf("unexpected body %v", body)
	}
	if got := w.Header().Get("Retry-After"); got != "900" {
		t.Fatalf("expected Retry-After=900, got %q", got)
	}
	if calls != 100 {
		t.Fatalf("expected next handler to be called 100 times, got %d", calls)
	}
}

func TestMiddleware_WindowResetAdmitsAgain(t *testing.T) {
	store := infra.NewFixedWindowStore(time.Minute, 1)
	now := time.Unix(1700000000, 0)

	calls := 0
	h := Middleware(Options{
		Store: store,
		Now:   func() time.Time { return now },
	})(okHandler(&calls))

	_ = doRequest(h, "10.0.0.1:1")
	if w := doRequest(h, "10.0.0.1:1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 inside the window, got %d", w.Code)
	}

	now = now.Add(time.Minute)
	if w := doRequest(h, "10.0.0.1:1"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 after the window, got %d", w.Code)
	}
}

func TestMiddleware_SetsRateLimitHeaders(t *testing.T) {
	store := infra.NewFixedWindowStore(time.Minute, 5)
	now := time.Unix(1700000000, 0)

	calls := 0
	h := Middleware(Options{
		Store:               store,
		AddRateLimitHeaders: true,
		Now:                 func() time.Time { return now },
	})(okHandler(&calls))

	w := doRequest(h, "10.0.0.1:1234")
	if got := w.Header().Get("X-RateLimit-Key"); got != "10.0.0.1" {
		t.Fatalf("expected X-RateLimit-Key=10.0.0.1, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected X-RateLimit-Limit=5, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("expected X-RateLimit-Remaining=4, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Reset"); got != "60" {
		t.Fatalf("expected X-RateLimit-Reset=60, got %q", got)
	}
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	store := infra.NewFixedWindowStore(time.Minute, 1)

	calls := 0
	h := Middleware(Options{
		Store:     store,
		KeyHeader: "X-Api-Key",
	})(okHandler(&calls))

	// duas chaves diferentes => ambas passam (cada chave tem sua própria janela)
	for _, k := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("X-Api-Key", k)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for key %s, got %d", k, w.Code)
		}
	}
}

func TestMiddleware_RetryAfterRoundsUp(t *testing.T) {
	store := infra.NewTokenBucketStore(0.02, 1)

	calls := 0
	h := Middleware(Options{
		Store:      store,
		RetryAfter: 2500 * time.Millisecond,
	})(okHandler(&calls))

	_ = doRequest(h, "10.0.0.1:1234")
	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// 1 token a 0.02 rps => ~50s
	got := strings.TrimSpace(w.Header().Get("Retry-After"))
	if got != "50" && got != "49" {
		t.Fatalf("expected Retry-After around 50, got %q", got)
	}
}

type failingStore struct{}

func (failingStore) Admit(context.Context, domain.Key, time.Time) (domain.Decision, error) {
	return domain.Decision{}, errors.New("unavailable")
}

func TestMiddleware_FailsOpenWhenStoreErrors(t *testing.T) {
	calls := 0
	h := Middleware(Options{Store: failingStore{}})(okHandler(&calls))

	if w := doRequest(h, "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 when store fails, got %d", w.Code)
	}
}

func TestMiddleware_RecordsStats(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	store := infra.NewFixedWindowStore(time.Minute, 1)

	calls := 0
	h := Middleware(Options{Store: store, Stats: stats})(okHandler(&calls))

	_ = doRequest(h, "10.0.0.1:1234")
	_ = doRequest(h, "10.0.0.1:1234")

	if got := stats.Total(); got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("expected 1 allowed and 1 denied, got %+v", got)
	}
}
