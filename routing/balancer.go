package routing

import (
	"net/url"
	"sync"
)

// RoundRobin distribui as requests entre as instâncias de um backend.
//
// Leitura e avanço do cursor acontecem na mesma seção crítica, então duas
// requests concorrentes nunca recebem o mesmo valor de cursor. Instâncias
// marcadas como fora do ar (SetUp) são puladas.
type RoundRobin struct {
	mu      sync.Mutex
	targets []*url.URL
	up      []bool
	cursor  int
}

func NewRoundRobin(targets ...*url.URL) *RoundRobin {
	up := make([]bool, len(targets))
	for i := range up {
		up[i] = true
	}
	return &RoundRobin{targets: targets, up: up}
}

// Next implementa Target: devolve targets[cursor] e avança o cursor.
func (rr *RoundRobin) Next() (*url.URL, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	n := len(rr.targets)
	for i := 0; i < n; i++ {
		idx := rr.cursor
		rr.cursor = (rr.cursor + 1) % n
		if rr.up[idx] {
			return rr.targets[idx], nil
		}
	}
	return nil, ErrNoTargetsAvailable
}

// SetUp marca a instância i como disponível ou não.
func (rr *RoundRobin) SetUp(i int, up bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if i >= 0 && i < len(rr.up) {
		rr.up[i] = up
	}
}

// Targets devolve uma cópia da lista de instâncias.
func (rr *RoundRobin) Targets() []*url.URL {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	out := make([]*url.URL, len(rr.targets))
	copy(out, rr.targets)
	return out
}

// Available conta as instâncias marcadas como disponíveis.
func (rr *RoundRobin) Available() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	n := 0
	for _, ok := range rr.up {
		if ok {
			n++
		}
	}
	return n
}

func (rr *RoundRobin) states() []bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	out := make([]bool, len(rr.up))
	copy(out, rr.up)
	return out
}
