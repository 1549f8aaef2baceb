// Package gateway compõe o ponto de entrada HTTP: admissão (rate limit e
// concorrência), roteamento, balanceamento e encaminhamento, mais os endpoints
// operacionais (/health, /metrics, /stats).
//
// Fluxo de uma request:
//
//	request id -> recover -> access log -> endpoints operacionais
//	                                    -> admissão -> Router.Match -> Target -> Forwarder
//
// Sem rota: 404 {"error":"Not Found","path":...}. Rota balanceada sem instância: 503.
// Backend inalcançável: 500 do Forwarder. Panic: 500 {"error":"Internal Server Error","requestId":...}.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"cab-gateway/metrics"
	"cab-gateway/middleware/ratelimit/infra"
	"cab-gateway/middleware/requestid"
	"cab-gateway/proxy"
	"cab-gateway/routing"

	"go.uber.org/zap"
)

const rootMessage = "API Gateway is running"

// StatsSource expõe os contadores do rate limit em /stats.
type StatsSource interface {
	Snapshot() infra.StatsSnapshot
}

type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
	Shutdown   time.Duration
}

type Options struct {
	Router    *routing.Router
	Forwarder *proxy.Forwarder
	// Admission são os middlewares de admissão, aplicados na ordem (o primeiro
	// roda primeiro). Endpoints operacionais não passam por eles.
	Admission []func(http.Handler) http.Handler
	Metrics   *metrics.Metrics
	Stats     StatsSource
	Logger    *zap.Logger
	Timeouts  Timeouts
	Now       func() time.Time
}

type Server struct {
	opts    Options
	log     *zap.Logger
	handler http.Handler
	state   atomic.Int32
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Router == nil {
		opts.Router = routing.NewRouter()
	}
	if opts.Forwarder == nil {
		opts.Forwarder = proxy.New(proxy.Options{Logger: opts.Logger})
	}
	opts.Timeouts = withDefaultTimeouts(opts.Timeouts)

	s := &Server{opts: opts, log: opts.Logger}
	s.handler = s.buildHandler()
	return s
}

func withDefaultTimeouts(t Timeouts) Timeouts {
	if t.ReadHeader <= 0 {
		t.ReadHeader = 10 * time.Second
	}
	if t.Read <= 0 {
		t.Read = 30 * time.Second
	}
	if t.Write <= 0 {
		t.Write = 60 * time.Second
	}
	if t.Idle <= 0 {
		t.Idle = 90 * time.Second
	}
	if t.Shutdown <= 0 {
		t.Shutdown = 10 * time.Second
	}
	return t
}

// Handler devolve a cadeia HTTP completa (útil em testes com httptest).
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) State() State { return State(s.state.Load()) }

func (s *Server) buildHandler() http.Handler {
	var proxied http.Handler = http.HandlerFunc(s.dispatch)
	for i := len(s.opts.Admission) - 1; i >= 0; i-- {
		proxied = s.opts.Admission[i](proxied)
	}

	// Sem ServeMux: o path segue para a admissão e o backend sem limpeza de "//", "." e "..".
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if op := s.opsHandler(r); op != nil {
			setRoute(r, strings.TrimPrefix(r.URL.Path, "/"))
			op.ServeHTTP(w, r)
			return
		}
		proxied.ServeHTTP(w, r)
	})
	h = s.accessLog(h)
	h = s.recoverer(h)
	h = requestid.Middleware(h)
	return h
}

// opsHandler devolve o endpoint operacional para r, ou nil. Casa só o path
// exato com GET ou HEAD.
func (s *Server) opsHandler(r *http.Request) http.Handler {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return nil
	}
	switch r.URL.Path {
	case "/health":
		return http.HandlerFunc(s.health)
	case "/metrics":
		if s.opts.Metrics != nil {
			return s.opts.Metrics.Handler
		}
	case "/stats":
		if s.opts.Stats != nil {
			return http.HandlerFunc(s.stats)
		}
	}
	return nil
}

// Serve atende em ln até ctx encerrar e então faz o shutdown gracioso.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	t := s.opts.Timeouts
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: t.ReadHeader,
		ReadTimeout:       t.Read,
		WriteTimeout:      t.Write,
		IdleTimeout:       t.Idle,
		ErrorLog:          zap.NewStdLog(s.log.With(zap.String("component", "http"))),
	}

	errCh := make(chan error, 1)
	s.state.Store(int32(StateListening))
	s.log.Info("gateway listening", zap.String("addr", ln.Addr().String()))
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.state.Store(int32(StateStopped))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.state.Store(int32(StateShuttingDown))
	s.log.Info("gateway shutting down", zap.Duration("timeout", t.Shutdown))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), t.Shutdown)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-errCh

	s.state.Store(int32(StateStopped))
	s.log.Info("gateway stopped")
	return err
}
