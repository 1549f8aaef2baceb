package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// LimiterStore decide, por chave, se uma requisição é admitida no instante `now`.
//
// A implementação pode ser janela fixa (padrão do gateway), token-bucket
// (golang.org/x/time/rate) ou um contador compartilhado em Redis.
// Deve ser segura para uso concorrente.
type LimiterStore interface {
	Admit(ctx context.Context, key Key, now time.Time) (Decision, error)
}

type Decision struct {
	Allowed bool

	// Limit é o máximo de requisições na janela (ou o burst, no token-bucket).
	Limit int
	// Remaining é quantas requisições ainda cabem na janela atual.
	Remaining int
	// ResetAt é quando a janela atual termina. Zero se a store não souber.
	ResetAt time.Time

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// Window é o estado de uma chave em uma janela fixa.
type Window struct {
	Start time.Time
	Count int
}

// Expired informa se a janela já terminou em `now`.
func (w Window) Expired(now time.Time, size time.Duration) bool {
	return now.Sub(w.Start) >= size
}
