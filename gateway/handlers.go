package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cab-gateway/middleware/requestid"
	"cab-gateway/respond"
	"cab-gateway/routing"

	"go.uber.org/zap"
)

// Rótulos de rota para requests que não chegaram a um backend.
const (
	routeUnmatched = "unmatched"
	routeAdmission = "-"
)

// timestampLayout é ISO 8601 com milissegundos, em UTC ("2024-05-01T12:00:00.000Z").
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type healthBody struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, healthBody{
		Status:    "healthy",
		Timestamp: s.opts.Now().UTC().Format(timestampLayout),
	})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, s.opts.Stats.Snapshot())
}

// dispatch resolve a rota e encaminha. Roda depois da admissão.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	m, ok := s.opts.Router.MatchURL(r.URL)
	if !ok {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			setRoute(r, "root")
			respond.JSON(w, http.StatusOK, map[string]string{"message": rootMessage})
			return
		}
		setRoute(r, routeUnmatched)
		respond.JSON(w, http.StatusNotFound, respond.ErrorBody{Error: "Not Found", Path: r.URL.Path})
		return
	}
	setRoute(r, m.Route.Name)

	target, err := m.Target()
	if err != nil {
		if errors.Is(err, routing.ErrNoTargetsAvailable) {
			s.log.Warn("no targets available",
				zap.String("route", m.Route.Name),
				zap.String("request_id", requestid.FromContext(r.Context())),
			)
			respond.StatusError(w, http.StatusServiceUnavailable)
			return
		}
		s.internalError(w, r, fmt.Errorf("select target for %s: %w", m.Route.Name, err))
		return
	}

	out := s.opts.Forwarder.Forward(w, r, m.Route.Name, target, m.RawPath)
	if ce := s.log.Check(zap.DebugLevel, "forwarded"); ce != nil {
		ce.Write(
			zap.String("route", out.Route),
			zap.String("target", out.Target),
			zap.String("path", out.Path),
			zap.Int("status", out.Status),
			zap.Duration("duration", out.Duration),
			zap.Error(out.Err),
		)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	id := requestid.FromContext(r.Context())
	s.log.Error("internal error", zap.Error(err), zap.String("request_id", id))
	respond.JSON(w, http.StatusInternalServerError, respond.ErrorBody{
		Error:     http.StatusText(http.StatusInternalServerError),
		RequestID: id,
	})
}

// recoverer transforma panics em 500 genérico. http.ErrAbortHandler segue
// adiante para o net/http abortar a conexão. Se a resposta já começou, o panic
// só é logado.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			id := requestid.FromContext(r.Context())
			s.log.Error("panic serving request",
				zap.Any("panic", v),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", id),
				zap.Int("status_written", sw.status),
				zap.Stack("stack"),
			)
			if sw.status != 0 {
				return
			}
			respond.JSON(w, http.StatusInternalServerError, respond.ErrorBody{
				Error:     http.StatusText(http.StatusInternalServerError),
				RequestID: id,
			})
		}()
		next.ServeHTTP(sw, r)
	})
}

// requestInfo é preenchido ao longo da cadeia e lido pelo access log.
type requestInfo struct {
	route string
}

type infoKey struct{}

func setRoute(r *http.Request, route string) {
	if info, ok := r.Context().Value(infoKey{}).(*requestInfo); ok {
		info.route = route
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.opts.Now()
		info := &requestInfo{route: routeAdmission}
		rec := &statusWriter{ResponseWriter: w}
		r = r.WithContext(context.WithValue(r.Context(), infoKey{}, info))

		defer func() {
			status := rec.status
			if status == 0 {
				// panic ainda não tratado: o recoverer responde 500.
				status = http.StatusInternalServerError
			}
			if s.opts.Metrics != nil {
				s.opts.Metrics.ObserveRequest(info.route, status)
			}
			s.log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", info.route),
				zap.Int("status", status),
				zap.Duration("duration", s.opts.Now().Sub(start)),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", requestid.FromContext(r.Context())),
			)
		}()
		next.ServeHTTP(rec, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 && code >= 200 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }
