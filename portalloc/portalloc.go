// Package portalloc escolhe a porta de escuta do gateway: tenta a porta preferida
// e, se estiver em uso, as seguintes, até um limite.
package portalloc

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
)

const maxPort = 65535

// DefaultAttempts é quantas portas são testadas a partir da preferida.
const DefaultAttempts = 100

// ErrNoPortAvailable: todas as portas da janela de busca estavam em uso.
var ErrNoPortAvailable = errors.New("no port available")

// Allocate abre um listener TCP em host:preferred ou na primeira porta livre acima.
//
// Só "address already in use" faz a busca avançar; qualquer outro erro (ex:
// permissão negada) é devolvido na hora. O listener volta aberto para ser usado
// direto pelo http.Server, sem janela entre o teste e o bind definitivo.
func Allocate(host string, preferred, attempts int) (net.Listener, int, error) {
	if preferred < 0 || preferred > maxPort {
		return nil, 0, fmt.Errorf("invalid port %d", preferred)
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	// porta 0: o kernel escolhe, não há o que procurar.
	if preferred == 0 {
		attempts = 1
	}

	last := preferred + attempts - 1
	if last > maxPort {
		last = maxPort
	}

	for port := preferred; port <= last; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, ln.Addr().(*net.TCPAddr).Port, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, 0, fmt.Errorf("bind port %d: %w", port, err)
		}
	}
	return nil, 0, fmt.Errorf("%w in %d-%d", ErrNoPortAvailable, preferred, last)
}
