package routing

import (
	"fmt"
	"strings"
)

// RewriteFunc reescreve o path antes do encaminhamento. Nunca mexe em query ou body.
type RewriteFunc func(path string) string

const (
	RewriteStrip    = "strip"
	RewriteReplace  = "replace"
	RewritePreserve = "preserve"
)

// StripPrefix remove o prefixo: "/api/cabs/foo" -> "/foo".
func StripPrefix(prefix string) RewriteFunc {
	prefix = normalizePrefix(prefix)
	if prefix == "/" {
		return Preserve()
	}
	return func(path string) string {
		return ensureSlash(strings.TrimPrefix(path, prefix))
	}
}

// ReplacePrefix troca o prefixo por `with`: ("/api/auth", "/auth") leva
// "/api/auth/register" para "/auth/register".
func ReplacePrefix(prefix, with string) RewriteFunc {
	prefix = normalizePrefix(prefix)
	with = strings.TrimSuffix(with, "/")
	if prefix == "/" {
		// prefixo raiz: o path inteiro vira sufixo de `with` ("/x" -> "/auth/x").
		return func(path string) string {
			if path == "/" {
				return ensureSlash(with)
			}
			return ensureSlash(with + ensureSlash(path))
		}
	}
	return func(path string) string {
		return ensureSlash(with + strings.TrimPrefix(path, prefix))
	}
}

// Preserve não altera o path.
func Preserve() RewriteFunc {
	return func(path string) string { return path }
}

// NewRewrite monta a RewriteFunc a partir do nome do modo (como vem do arquivo de rotas).
func NewRewrite(mode, prefix, to string) (RewriteFunc, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case RewriteStrip:
		return StripPrefix(prefix), nil
	case RewriteReplace:
		if to == "" {
			return nil, fmt.Errorf("rewrite %q for prefix %q needs a replacement", mode, prefix)
		}
		return ReplacePrefix(prefix, to), nil
	case RewritePreserve, "":
		return Preserve(), nil
	default:
		return nil, fmt.Errorf("unknown rewrite mode %q", mode)
	}
}

func ensureSlash(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func normalizePrefix(p string) string {
	p = ensureSlash(strings.TrimSpace(p))
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
