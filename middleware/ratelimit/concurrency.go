package ratelimit

import (
	"net/http"
	"time"

	"cab-gateway/middleware/ratelimit/application"
	"cab-gateway/middleware/ratelimit/infra"
	"cab-gateway/respond"

	"go.uber.org/zap"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// InFlight recebe +1/-1 a cada vaga adquirida/liberada (ex: gauge do Prometheus).
	InFlight func(delta int)
	Logger   *zap.Logger
}

// ConcurrencyMiddleware limita quantas requests ficam em voo ao mesmo tempo.
// Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
		InFlight:       opts.InFlight,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				if r.Context().Err() != nil {
					// cliente desistiu enquanto esperava: não há para quem responder.
					opts.Logger.Debug("client gone while waiting for a slot",
						zap.String("method", r.Method), zap.String("path", r.URL.Path))
					return
				}
				opts.Logger.Warn("no concurrency slot available",
					zap.String("method", r.Method), zap.String("path", r.URL.Path))
				respond.StatusError(w, opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
