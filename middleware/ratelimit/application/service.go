package application

import (
	"context"
	"time"

	"cab-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
	// Now permite fixar o relógio nos testes. Nil usa time.Now.
	Now func() time.Time
}

// Decide consulta a store para a chave.
//
// Erros da store não bloqueiam a request (fail-open): a decisão volta como
// permitida junto com o erro, e quem chamou decide se loga.
func (s Service) Decide(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if s.Store == nil {
		return domain.Decision{Allowed: true}, nil
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	dec, err := s.Store.Admit(ctx, key, now)
	if err != nil {
		return domain.Decision{Allowed: true}, err
	}
	if dec.Allowed {
		dec.RetryAfter = 0
		return dec, nil
	}
	if dec.RetryAfter <= 0 {
		dec.RetryAfter = s.RetryAfter
	}
	return dec, nil
}
