package application

import (
	"context"
	"sync"
	"time"

	"cab-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	// InFlight, se definido, recebe +1 ao adquirir e -1 ao liberar (ex: gauge).
	InFlight func(delta int)
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
// O release retornado é idempotente.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if !ok {
		return nil, false
	}
	if s.InFlight != nil {
		s.InFlight(1)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			if s.InFlight != nil {
				s.InFlight(-1)
			}
		})
	}, true
}
