package routing

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TableConfig é a tabela de rotas, vinda do ambiente (padrão) ou de ROUTES_FILE.
//
//	routes:
//	  - name: auth
//	    prefix: /api/auth
//	    target: http://localhost:4001
//	    rewrite: replace
//	    rewrite_to: /auth
//	  - name: cabs-balanced
//	    prefix: /api/cabs-balanced
//	    targets: [http://localhost:4002, http://localhost:4012]
//	    rewrite: strip
type TableConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

type RouteConfig struct {
	Name      string   `yaml:"name"`
	Prefix    string   `yaml:"prefix"`
	Target    string   `yaml:"target"`
	Targets   []string `yaml:"targets"`
	Balanced  bool     `yaml:"balanced"`
	Rewrite   string   `yaml:"rewrite"`
	RewriteTo string   `yaml:"rewrite_to"`
}

// IsBalanced: rota com lista de alvos (mesmo que de um só) ou marcada explicitamente.
func (rc RouteConfig) IsBalanced() bool {
	return rc.Balanced || len(rc.Targets) > 0
}

// LoadTableFile lê a tabela de rotas de um arquivo YAML.
func LoadTableFile(path string) (TableConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TableConfig{}, fmt.Errorf("failed to read routes file: %w", err)
	}

	var cfg TableConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TableConfig{}, fmt.Errorf("failed to parse routes file: %w", err)
	}
	if len(cfg.Routes) == 0 {
		return TableConfig{}, fmt.Errorf("routes file %s has no routes", path)
	}
	return cfg, nil
}

// Balanced é uma rota balanceada já montada, exposta para quem precisa do
// RoundRobin (ex: health checker).
type Balanced struct {
	Name     string
	Balancer *RoundRobin
}

// Build valida a tabela e monta o Router.
func Build(cfg TableConfig) (*Router, []Balanced, error) {
	rt := NewRouter()
	var balanced []Balanced

	for i, rc := range cfg.Routes {
		if strings.TrimSpace(rc.Prefix) == "" {
			return nil, nil, fmt.Errorf("route #%d (%s): prefix is required", i, rc.Name)
		}
		rw, err := NewRewrite(rc.Rewrite, rc.Prefix, rc.RewriteTo)
		if err != nil {
			return nil, nil, fmt.Errorf("route %q: %w", rc.Name, err)
		}

		if !rc.IsBalanced() {
			target, err := ParseTarget(rc.Target)
			if err != nil {
				return nil, nil, fmt.Errorf("route %q: %w", rc.Name, err)
			}
			if err := rt.Handle(rc.Name, rc.Prefix, target, rw); err != nil {
				return nil, nil, err
			}
			continue
		}

		raw := rc.Targets
		if len(raw) == 0 && rc.Target != "" {
			raw = []string{rc.Target}
		}
		targets := make([]*url.URL, 0, len(raw))
		for _, s := range raw {
			u, err := ParseTarget(s)
			if err != nil {
				return nil, nil, fmt.Errorf("route %q: %w", rc.Name, err)
			}
			targets = append(targets, u)
		}
		// lista vazia é permitida: a rota responde 503 (ErrNoTargetsAvailable).
		lb := NewRoundRobin(targets...)
		if err := rt.HandleBalanced(rc.Name, rc.Prefix, lb, rw); err != nil {
			return nil, nil, err
		}
		balanced = append(balanced, Balanced{Name: rc.Name, Balancer: lb})
	}
	return rt, balanced, nil
}

// ParseTarget aceita apenas URLs absolutas http/https.
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid target %q: expected http(s)://host[:port]", raw)
	}
	return u, nil
}
