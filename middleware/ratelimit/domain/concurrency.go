package domain

import "context"

// SlotPool limita quantas requests o gateway atende ao mesmo tempo.
//
// Acquire espera por uma vaga enquanto ctx estiver vivo. Com ok=true, release
// devolve a vaga; com ok=false nada foi reservado.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
