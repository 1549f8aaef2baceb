package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type echoed struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Raw    string `json:"raw"`
	Query  string `json:"query"`
	Host   string `json:"host"`
	Body   string `json:"body"`
	XFF    string `json:"xff"`
	Custom string `json:"custom"`
}

func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Backend", "echo")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(echoed{
			Method: r.Method,
			Path:   r.URL.Path,
			Raw:    r.URL.EscapedPath(),
			Query:  r.URL.RawQuery,
			Host:   r.Host,
			Body:   string(body),
			XFF:    r.Header.Get("X-Forwarded-For"),
			Custom: r.Header.Get("X-Custom"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestForward_RelaysRequestAndResponse(t *testing.T) {
	backend := echoBackend(t)
	target := mustURL(t, backend.URL)

	var observed []bool
	f := New(Options{
		Timeout: time.Second,
		Observe: func(route string, d time.Duration, failed bool) { observed = append(observed, failed) },
	})

	r := httptest.NewRequest(http.MethodPost, "http://gateway.local/api/cabs/nearby?lat=1&lng=2", strings.NewReader(`{"x":1}`))
	r.RemoteAddr = "10.1.2.3:5555"
	r.Header.Set("X-Custom", "kept")
	w := httptest.NewRecorder()

	out := f.Forward(w, r, "cabs", target, "/nearby")

	if w.Code != http.StatusCreated || out.Status != http.StatusCreated {
		t.Fatalf("expected backend status 201 relayed, got %d (outcome %d)", w.Code, out.Status)
	}
	if w.Header().Get("X-Backend") != "echo" {
		t.Fatalf("expected backend headers to be relayed")
	}
	var got echoed
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if got.Method != http.MethodPost || got.Path != "/nearby" || got.Query != "lat=1&lng=2" {
		t.Fatalf("unexpected forwarded request %+v", got)
	}
	if got.Host != target.Host {
		t.Fatalf("expected Host rewritten to %s, got %s", target.Host, got.Host)
	}
	if got.Body != `{"x":1}` || got.Custom != "kept" {
		t.Fatalf("expected body and headers unchanged, got %+v", got)
	}
	if got.XFF != "10.1.2.3" {
		t.Fatalf("expected X-Forwarded-For=10.1.2.3, got %q", got.XFF)
	}
	if out.Err != nil || len(observed) != 1 || observed[0] {
		t.Fatalf("expected a successful observation, got err=%v observed=%v", out.Err, observed)
	}
}

func TestForward_KeepsEscapedSlash(t *testing.T) {
	backend := echoBackend(t)
	f := New(Options{})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/cabs/a%2Fb", nil)
	f.Forward(w, r, "cabs", mustURL(t, backend.URL), "/a%2Fb")

	var got echoed
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if got.Raw != "/a%2Fb" || got.Path != "/a/b" {
		t.Fatalf("expected escaped path /a%%2Fb kept, got raw=%q path=%q", got.Raw, got.Path)
	}
}

func TestForward_JoinsTargetBasePath(t *testing.T) {
	backend := echoBackend(t)
	f := New(Options{})

	w := httptest.NewRecorder()
	f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/auth/register", nil), "auth", mustURL(t, backend.URL+"/v2"), "/auth/register")

	var got echoed
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Path != "/v2/auth/register" {
		t.Fatalf("expected target path to be joined, got %q", got.Path)
	}
}

func TestForward_ConnectionRefusedBecomes500(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	target := mustURL(t, dead.URL)
	dead.Close()

	core, logs := observer.New(zap.InfoLevel)
	f := New(Options{Logger: zap.New(core), DialTimeout: 500 * time.Millisecond})

	w := httptest.NewRecorder()
	out := f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/orders/1", nil), "orders", target, "/api/orders/1")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["error"] != UnavailableMessage || len(body) != 1 {
		t.Fatalf("unexpected body %v", body)
	}
	if out.Err == nil {
		t.Fatalf("expected outcome to carry the transport error")
	}

	entries := logs.FilterField(zap.String("kind", "proxy_error")).All()
	if len(entries) != 1 {
		t.Fatalf("expected one proxy_error log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["route"] != "orders" {
		t.Fatalf("expected route field in log, got %v", entries[0].ContextMap())
	}
}

func TestForward_TimeoutBecomes500(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	f := New(Options{Timeout: 50 * time.Millisecond})
	w := httptest.NewRecorder()
	out := f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/cabs/x", nil), "cabs", mustURL(t, slow.URL), "/x")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on timeout, got %d", w.Code)
	}
	if out.Err == nil {
		t.Fatalf("expected timeout error in outcome")
	}
}

func TestForward_RelaysBackendErrorsVerbatim(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"Route GET /x not found"}`)
	}))
	defer backend.Close()

	f := New(Options{})
	w := httptest.NewRecorder()
	out := f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/orders/x", nil), "orders", mustURL(t, backend.URL), "/x")

	if w.Code != http.StatusNotFound || out.Err != nil {
		t.Fatalf("expected backend 404 relayed without proxy error, got %d (%v)", w.Code, out.Err)
	}
	if strings.TrimSpace(w.Body.String()) != `{"error":"Route GET /x not found"}` {
		t.Fatalf("expected backend body verbatim, got %q", w.Body.String())
	}
}
