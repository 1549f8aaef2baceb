// Package application aplica as regras de admissão sobre os contratos de domain:
// Service.Decide carimba o relógio e normaliza Retry-After; ConcurrencyService
// cuida de acquire com timeout e do release idempotente.
package application
