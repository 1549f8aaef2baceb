package ratelimit

import (
	"net/http"
	"time"

	"cab-gateway/middleware/ratelimit/application"
	"cab-gateway/middleware/ratelimit/domain"
	"cab-gateway/respond"

	"go.uber.org/zap"
)

type Options struct {
	Store               domain.LimiterStore
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Logger              *zap.Logger
	// Now fixa o relógio (testes). Nil usa time.Now.
	Now func() time.Time
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	svc := application.Service{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
		Now:        now,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			dec, err := svc.Decide(r.Context(), domain.Key(key))
			if err != nil {
				// fail-open: store fora do ar não derruba o tráfego
				opts.Logger.Warn("rate limit store error, admitting request",
					zap.String("key", key), zap.Error(err))
			}

			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      now(),
				}); err != nil {
					opts.Logger.Debug("rate limit stats error", zap.Error(err))
				}
			}

			if opts.AddRateLimitHeaders {
				setRateLimitHeaders(w.Header(), key, dec, now())
			}

			if !dec.Allowed {
				w.Header().Set("Retry-After", formatSeconds(dec.RetryAfter))
				opts.Logger.Info("request rejected by rate limit",
					zap.String("key", key),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path))
				respond.StatusError(w, opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(h http.Header, key string, dec domain.Decision, now time.Time) {
	h.Set("X-RateLimit-Key", key)
	if dec.Limit > 0 {
		h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
		h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	}
	if !dec.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", formatSeconds(dec.ResetAt.Sub(now)))
	}
}
