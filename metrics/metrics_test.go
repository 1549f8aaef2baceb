package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cab-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordCountsDecisions(t *testing.T) {
	m := New()
	ctx := context.Background()

	_ = m.Record(ctx, domain.StatsEvent{Allowed: true})
	_ = m.Record(ctx, domain.StatsEvent{Allowed: true})
	_ = m.Record(ctx, domain.StatsEvent{Allowed: false})

	if got := testutil.ToFloat64(m.RateLimitDecision.WithLabelValues("allowed")); got != 2 {
		t.Fatalf("expected 2 allowed, got %v", got)
	}
	if got := testutil.ToFloat64(m.RateLimitDecision.WithLabelValues("denied")); got != 1 {
		t.Fatalf("expected 1 denied, got %v", got)
	}
}

func TestMetrics_ObserveUpstreamCountsFailures(t *testing.T) {
	m := New()
	m.ObserveUpstream("cabs", 10*time.Millisecond, false)
	m.ObserveUpstream("cabs", 10*time.Millisecond, true)

	if got := testutil.ToFloat64(m.ProxyErrors.WithLabelValues("cabs")); got != 1 {
		t.Fatalf("expected 1 proxy error, got %v", got)
	}
	if got := testutil.CollectAndCount(m.UpstreamDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestMetrics_GaugesAndHandler(t *testing.T) {
	m := New()
	m.AddInFlight(1)
	m.AddInFlight(1)
	m.AddInFlight(-1)
	m.SetTargetUp("cabs-balanced", "http://cab-a", true)
	m.ObserveRequest("orders", 201)

	if got := testutil.ToFloat64(m.InFlight); got != 1 {
		t.Fatalf("expected 1 in flight, got %v", got)
	}

	w := httptest.NewRecorder()
	m.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	for _, want := range []string{
		`gateway_requests_total{code="201",route="orders"} 1`,
		`gateway_target_up{route="cabs-balanced",target="http://cab-a"} 1`,
		"gateway_inflight_requests 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}
