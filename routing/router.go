package routing

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrDuplicatePrefix: dois registros com o mesmo prefixo deixariam o roteamento ambíguo.
	ErrDuplicatePrefix = errors.New("duplicate route prefix")
	// ErrNoTargetsAvailable: rota balanceada sem instância configurada (ou todas fora do ar).
	ErrNoTargetsAvailable = errors.New("no targets available")
)

// Target escolhe o backend de uma rota a cada request.
type Target interface {
	Next() (*url.URL, error)
}

type staticTarget struct{ u *url.URL }

func (s staticTarget) Next() (*url.URL, error) { return s.u, nil }

type Route struct {
	Name     string
	Prefix   string
	Rewrite  RewriteFunc
	Target   Target
	Balanced bool
}

// Match é o resultado do roteamento: a rota e o path já reescrito.
// RawPath é o mesmo path na forma escapada (só preenchido por MatchURL).
type Match struct {
	Route   *Route
	Path    string
	RawPath string
}

// Target devolve o backend para esta request (no caso balanceado, avança o cursor).
func (m Match) Target() (*url.URL, error) {
	return m.Route.Target.Next()
}

type Router struct {
	static   []*Route
	balanced []*Route
	prefixes map[string]struct{}
}

func NewRouter() *Router {
	return &Router{prefixes: make(map[string]struct{})}
}

// Handle registra uma rota estática.
func (rt *Router) Handle(name, prefix string, target *url.URL, rw RewriteFunc) error {
	if target == nil {
		return fmt.Errorf("route %q: nil target", name)
	}
	r, err := rt.newRoute(name, prefix, rw)
	if err != nil {
		return err
	}
	r.Target = staticTarget{u: target}
	rt.static = append(rt.static, r)
	return nil
}

// HandleBalanced registra uma rota balanceada. Ela só é considerada depois de
// todas as rotas estáticas.
func (rt *Router) HandleBalanced(name, prefix string, lb Target, rw RewriteFunc) error {
	if lb == nil {
		return fmt.Errorf("route %q: nil balancer", name)
	}
	r, err := rt.newRoute(name, prefix, rw)
	if err != nil {
		return err
	}
	r.Target = lb
	r.Balanced = true
	rt.balanced = append(rt.balanced, r)
	return nil
}

func (rt *Router) newRoute(name, prefix string, rw RewriteFunc) (*Route, error) {
	p := normalizePrefix(prefix)
	if _, dup := rt.prefixes[p]; dup {
		return nil, fmt.Errorf("route %q: %w: %s", name, ErrDuplicatePrefix, p)
	}
	rt.prefixes[p] = struct{}{}
	if rw == nil {
		rw = Preserve()
	}
	if name == "" {
		name = p
	}
	return &Route{Name: name, Prefix: p, Rewrite: rw}, nil
}

// Match procura a primeira rota que casa com o path: estáticas e depois balanceadas,
// cada grupo em ordem de registro.
func (rt *Router) Match(path string) (Match, bool) {
	for _, group := range [][]*Route{rt.static, rt.balanced} {
		for _, r := range group {
			if matchPrefix(r.Prefix, path) {
				return Match{Route: r, Path: r.Rewrite(path)}, true
			}
		}
	}
	return Match{}, false
}

// MatchURL casa u.Path e reescreve também u.EscapedPath(), para que
// sequências como %2F cheguem ao backend do jeito que o cliente mandou.
func (rt *Router) MatchURL(u *url.URL) (Match, bool) {
	m, ok := rt.Match(u.Path)
	if !ok {
		return m, false
	}
	esc := u.EscapedPath()
	if esc != u.Path && matchPrefix(m.Route.Prefix, esc) {
		m.RawPath = m.Route.Rewrite(esc)
	} else {
		m.RawPath = (&url.URL{Path: m.Path}).EscapedPath()
	}
	return m, true
}

// Routes lista as rotas na ordem em que Match as considera.
func (rt *Router) Routes() []*Route {
	out := make([]*Route, 0, len(rt.static)+len(rt.balanced))
	out = append(out, rt.static...)
	return append(out, rt.balanced...)
}

func matchPrefix(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
