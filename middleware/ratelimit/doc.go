// Package ratelimit é a parte HTTP da admissão do gateway: decide, antes do
// roteamento, se uma request entra.
//
// Subpacotes:
//
//   - domain: Key, Decision, Window e os contratos LimiterStore, StatsStore, SlotPool
//   - application: Service.Decide (relógio injetável, fail-open) e ConcurrencyService
//   - infra: stores em memória e Redis, sinks de estatística, ChanPool
//
// Aqui ficam Middleware (429 + Retry-After), ConcurrencyMiddleware (503) e as
// KeyFunc que identificam o cliente: header configurado, primeiro X-Forwarded-For
// (com TRUST_XFF), IP remoto e, por último, "unknown".
//
// Rejeitadas nunca chegam ao Router nem ficam em fila.
package ratelimit
