package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cab-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "gateway"

// Metrics agrupa os coletores do gateway num registry próprio (sem o global,
// para que testes possam criar quantos quiserem).
type Metrics struct {
	Registry *prometheus.Registry
	Handler  http.Handler

	Requests          *prometheus.CounterVec
	RateLimitDecision *prometheus.CounterVec
	ProxyErrors       *prometheus.CounterVec
	UpstreamDuration  *prometheus.HistogramVec
	InFlight          prometheus.Gauge
	TargetUp          *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "requests_total",
			Help: "Requests answered by the gateway, by route and status code",
		}, []string{"route", "code"}),
		RateLimitDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions, by result (allowed/denied)",
		}, []string{"result"}),
		ProxyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "proxy_errors_total",
			Help: "Transport failures while forwarding to a backend",
		}, []string{"route"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "upstream_duration_seconds",
			Help:    "Time spent waiting for the backend",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "inflight_requests",
			Help: "Requests holding a concurrency slot",
		}),
		TargetUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "target_up",
			Help: "1 if the balanced target passed its last health check",
		}, []string{"route", "target"}),
	}

	reg.MustRegister(
		m.Requests,
		m.RateLimitDecision,
		m.ProxyErrors,
		m.UpstreamDuration,
		m.InFlight,
		m.TargetUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.Handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return m
}

// ObserveRequest conta uma resposta do gateway.
func (m *Metrics) ObserveRequest(route string, status int) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveUpstream registra uma ida ao backend; failed conta como erro de proxy.
func (m *Metrics) ObserveUpstream(route string, d time.Duration, failed bool) {
	m.UpstreamDuration.WithLabelValues(route).Observe(d.Seconds())
	if failed {
		m.ProxyErrors.WithLabelValues(route).Inc()
	}
}

// AddInFlight serve de gancho para o ConcurrencyMiddleware.
func (m *Metrics) AddInFlight(delta int) {
	m.InFlight.Add(float64(delta))
}

// SetTargetUp serve de gancho para o health checker.
func (m *Metrics) SetTargetUp(route, target string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.TargetUp.WithLabelValues(route, target).Set(v)
}

// Record implementa domain.StatsStore: as decisões do rate limit viram contadores.
// Chave e path ficam de fora dos labels para não explodir a cardinalidade.
func (m *Metrics) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "denied"
	if ev.Allowed {
		result = "allowed"
	}
	m.RateLimitDecision.WithLabelValues(result).Inc()
	return nil
}
