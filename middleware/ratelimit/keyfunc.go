package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc extrai a identidade do cliente usada como chave do rate limit.
// Retornar "" significa "não sei": FirstKey passa para a próxima estratégia.
type KeyFunc func(r *http.Request) string

// HeaderKey usa o valor de um header (ex: X-Api-Key).
func HeaderKey(name string) KeyFunc {
	return func(r *http.Request) string {
		if name == "" {
			return ""
		}
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// ForwardedForKey pega o primeiro IP do X-Forwarded-For (cliente original).
// Só use atrás de um proxy confiável: o header é controlado pelo cliente.
func ForwardedForKey() KeyFunc {
	return func(r *http.Request) string {
		xff := r.Header.Get("X-Forwarded-For")
		if xff == "" {
			return ""
		}
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
}

// RemoteIPKey usa o host de RemoteAddr (sem a porta).
func RemoteIPKey() KeyFunc {
	return func(r *http.Request) string {
		addr := strings.TrimSpace(r.RemoteAddr)
		host, _, err := net.SplitHostPort(addr)
		if err == nil && host != "" {
			return host
		}
		return addr
	}
}

// FirstKey tenta as estratégias em ordem; se nenhuma responder, usa "unknown".
func FirstKey(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if k := fn(r); k != "" {
				return k
			}
		}
		return "unknown"
	}
}

// DefaultKeyFunc: header configurado -> X-Forwarded-For (se confiável) -> IP remoto.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	fns := []KeyFunc{HeaderKey(keyHeader)}
	if trustXFF {
		fns = append(fns, ForwardedForKey())
	}
	fns = append(fns, RemoteIPKey())
	return FirstKey(fns...)
}
