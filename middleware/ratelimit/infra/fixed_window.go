package infra

import (
	"context"
	"sync"
	"time"

	"cab-gateway/middleware/ratelimit/domain"
)

// FixedWindowStore é o rate limit padrão do gateway: contador por chave em
// janelas fixas, tudo em memória.
//
// Política de expiração:
//   - preguiçosa: ao tocar uma chave com janela vencida, a janela é reiniciada;
//   - periódica: o janitor remove janelas vencidas (WithWindowCleanupEvery).
type FixedWindowStore struct {
	mu      sync.Mutex
	windows map[string]*domain.Window

	size         time.Duration
	max          int
	cleanupEvery time.Duration
}

type FixedWindowOption func(*FixedWindowStore)

func WithWindowCleanupEvery(d time.Duration) FixedWindowOption {
	return func(s *FixedWindowStore) { s.cleanupEvery = d }
}

func NewFixedWindowStore(size time.Duration, max int, opts ...FixedWindowOption) *FixedWindowStore {
	s := &FixedWindowStore{
		windows:      make(map[string]*domain.Window),
		size:         size,
		max:          max,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FixedWindowStore) Window() time.Duration { return s.size }
func (s *FixedWindowStore) Max() int              { return s.max }

// Admit implementa domain.LimiterStore.
//
// O contador só incrementa quando a request é admitida, então nunca passa de max.
func (s *FixedWindowStore) Admit(_ context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[string(key)]
	if !ok {
		w = &domain.Window{Start: now}
		s.windows[string(key)] = w
	} else if w.Expired(now, s.size) {
		w.Start = now
		w.Count = 0
	}

	resetAt := w.Start.Add(s.size)
	dec := domain.Decision{Limit: s.max, ResetAt: resetAt}
	if w.Count >= s.max {
		dec.RetryAfter = resetAt.Sub(now)
		return dec, nil
	}

	w.Count++
	dec.Allowed = true
	dec.Remaining = s.max - w.Count
	return dec, nil
}

// Len retorna quantas chaves estão na tabela.
func (s *FixedWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Cleanup remove as janelas vencidas em `now`.
func (s *FixedWindowStore) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, w := range s.windows {
		if w.Expired(now, s.size) {
			delete(s.windows, k)
			removed++
		}
	}
	return removed
}

// StartJanitor inicia uma goroutine que limpa janelas vencidas periodicamente.
// Pare cancelando o contexto.
func (s *FixedWindowStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, func(now time.Time) { s.Cleanup(now) })
}
