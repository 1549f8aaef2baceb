// Package proxy encaminha uma request já roteada para o backend escolhido e
// devolve a resposta do backend sem alterações.
//
// Falhas de transporte (conexão recusada, DNS, timeout) nunca chegam cruas ao
// cliente: viram um 500 fixo {"error": "Service temporarily unavailable"} e uma
// linha de log com kind=proxy_error.
package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"cab-gateway/middleware/requestid"
	"cab-gateway/respond"

	"go.uber.org/zap"
)

// UnavailableMessage é o corpo de erro para qualquer falha ao falar com o backend.
const UnavailableMessage = "Service temporarily unavailable"

// StatusClientClosedRequest é usado só em logs/métricas quando o cliente desiste
// antes do backend responder (não é enviado a ninguém).
const StatusClientClosedRequest = 499

type Options struct {
	// Timeout por request para o backend. 0 = sem limite além do transporte.
	Timeout     time.Duration
	DialTimeout time.Duration
	Transport   http.RoundTripper
	Logger      *zap.Logger
	// Observe recebe a duração de cada ida ao backend e se ela falhou.
	Observe func(route string, d time.Duration, failed bool)
}

// Outcome é o resultado transitório de um encaminhamento, para logs e métricas.
type Outcome struct {
	Route    string
	Target   string
	Path     string
	Status   int
	Duration time.Duration
	Err      error
}

type Forwarder struct {
	rp      *httputil.ReverseProxy
	timeout time.Duration
	log     *zap.Logger
	observe func(route string, d time.Duration, failed bool)
}

type forwardKey struct{}

type forwardState struct {
	route  string
	target *url.URL
	path   string
	err    error
}

func New(opts Options) *Forwarder {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          1000,
			MaxIdleConnsPerHost:   100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	f := &Forwarder{
		timeout: opts.Timeout,
		log:     opts.Logger,
		observe: opts.Observe,
	}
	f.rp = &httputil.ReverseProxy{
		Rewrite:      f.rewrite,
		Transport:    transport,
		ErrorHandler: f.handleError,
		ErrorLog:     zap.NewStdLog(opts.Logger.With(zap.String("component", "reverseproxy"))),
	}
	return f
}

// Forward envia r para target com o path já reescrito (na forma escapada) e
// copia a resposta em w.
//
// Se o cliente desconectar, o contexto da request cancela a chamada ao backend.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, route string, target *url.URL, path string) Outcome {
	start := time.Now()

	ctx := r.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	st := &forwardState{route: route, target: target, path: path}
	rec := &statusRecorder{ResponseWriter: w}
	f.rp.ServeHTTP(rec, r.WithContext(context.WithValue(ctx, forwardKey{}, st)))

	out := Outcome{
		Route:    route,
		Target:   target.String(),
		Path:     path,
		Status:   rec.status,
		Duration: time.Since(start),
		Err:      st.err,
	}
	if out.Status == 0 {
		out.Status = StatusClientClosedRequest
	}
	if f.observe != nil {
		f.observe(route, out.Duration, st.err != nil)
	}
	return out
}

func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	st, _ := pr.In.Context().Value(forwardKey{}).(*forwardState)
	if st == nil {
		return
	}
	// st.path vem escapado: Path recebe a forma decodificada e RawPath preserva
	// o escape original (%2F continua %2F).
	pr.Out.URL.Path, pr.Out.URL.RawPath = st.path, ""
	if p, err := url.PathUnescape(st.path); err == nil && p != st.path {
		pr.Out.URL.Path, pr.Out.URL.RawPath = p, st.path
	}
	// SetURL também troca o Host de saída pelo host do backend.
	pr.SetURL(st.target)
	pr.SetXForwarded()
}

func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	st, _ := r.Context().Value(forwardKey{}).(*forwardState)
	if st != nil {
		st.err = err
	}

	fields := []zap.Field{
		zap.String("kind", "proxy_error"),
		zap.String("method", r.Method),
		zap.String("request_id", requestid.FromContext(r.Context())),
		zap.Error(err),
	}
	if st != nil {
		fields = append(fields,
			zap.String("route", st.route),
			zap.String("target", st.target.String()),
			zap.String("path", st.path))
	}

	// cliente foi embora: não há para quem responder.
	if errors.Is(r.Context().Err(), context.Canceled) {
		f.log.Info("client closed request before backend answered", fields...)
		return
	}

	f.log.Error("proxy error", fields...)
	respond.Error(w, http.StatusInternalServerError, UnavailableMessage)
}

// statusRecorder guarda o status escrito para o Outcome.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	// 1xx informativos não são o status final.
	if s.status == 0 && code >= 200 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Unwrap deixa o http.ResponseController achar Flush etc. no writer original.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
