// Package domain tem os tipos da admissão (janela, decisão, eventos de
// estatística) e os contratos que infra implementa. Sem net/http.
package domain
