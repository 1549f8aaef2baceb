package routing

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthChecker consulta periodicamente cada instância de um RoundRobin e marca
// como fora do ar as que não respondem (erro de transporte ou status >= 500).
type HealthChecker struct {
	Balancer *RoundRobin
	Client   *http.Client
	Path     string
	Interval time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
	// OnChange é chamado quando uma instância muda de estado (ex: gauge).
	OnChange func(target *url.URL, up bool)
}

// Start roda uma checagem imediata e depois uma a cada Interval, até ctx encerrar.
// Interval <= 0 não faz nada.
func (hc *HealthChecker) Start(ctx context.Context) {
	if hc.Interval <= 0 || hc.Balancer == nil {
		return
	}

	t := time.NewTicker(hc.Interval)
	go func() {
		defer t.Stop()
		hc.CheckOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				hc.CheckOnce(ctx)
			}
		}
	}()
}

// CheckOnce checa todas as instâncias em paralelo e espera o resultado.
func (hc *HealthChecker) CheckOnce(ctx context.Context) {
	targets := hc.Balancer.Targets()
	prev := hc.Balancer.states()

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target *url.URL) {
			defer wg.Done()

			up := hc.probe(ctx, target)
			hc.Balancer.SetUp(i, up)
			if up == prev[i] {
				return
			}
			hc.logger().Info("balanced target health changed",
				zap.String("target", target.String()), zap.Bool("up", up))
			if hc.OnChange != nil {
				hc.OnChange(target, up)
			}
		}(i, target)
	}
	wg.Wait()
}

func (hc *HealthChecker) probe(ctx context.Context, target *url.URL) bool {
	timeout := hc.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := *target
	u.Path = strings.TrimSuffix(u.Path, "/") + ensureSlash(hc.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false
	}
	client := hc.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		hc.logger().Debug("health probe failed", zap.String("target", target.String()), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (hc *HealthChecker) logger() *zap.Logger {
	if hc.Logger == nil {
		return zap.NewNop()
	}
	return hc.Logger
}
