package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cab-gateway/gateway"
	"cab-gateway/logging"
	"cab-gateway/metrics"
	"cab-gateway/middleware/ratelimit"
	"cab-gateway/middleware/ratelimit/domain"
	"cab-gateway/middleware/ratelimit/infra"
	"cab-gateway/portalloc"
	"cab-gateway/proxy"
	"cab-gateway/routing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway failed", zap.Error(err))
	}
}

func run(cfg config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	table := cfg.table
	if cfg.routesFile != "" {
		t, err := routing.LoadTableFile(cfg.routesFile)
		if err != nil {
			return err
		}
		table = t
	}
	router, balanced, err := routing.Build(table)
	if err != nil {
		return fmt.Errorf("invalid route table: %w", err)
	}
	for _, rt := range router.Routes() {
		logger.Info("route registered",
			zap.String("name", rt.Name),
			zap.String("prefix", rt.Prefix),
			zap.Bool("balanced", rt.Balanced),
		)
	}

	m := metrics.New()

	var admission []func(http.Handler) http.Handler
	var memStats *infra.MemoryStatsStore
	if cfg.rateEnabled {
		store, closeStore, err := newLimiterStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		stats := domain.MultiStats{m}
		if cfg.rateStatsEnabled {
			rdb, err := newRedis(ctx, cfg.rateStatsRedis)
			if err != nil {
				return fmt.Errorf("redis stats: %w", err)
			}
			defer func() { _ = rdb.Close() }()
			stats = append(stats, infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.rateStatsPrefix),
				infra.WithStatsTTL(cfg.rateStatsTTL),
				infra.WithStatsBucket(cfg.rateStatsBucket),
				infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
			))
		}
		if cfg.rateStatsMemory {
			memStats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.rateStatsTrackKeys))
			stats = append(stats, memStats)
		}

		admission = append(admission, ratelimit.Middleware(ratelimit.Options{
			Store:               store,
			Stats:               stats,
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
			Logger:              logger.Named("ratelimit"),
		}))
	}
	admission = append(admission, ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		InFlight:       m.AddInFlight,
		Logger:         logger.Named("concurrency"),
	}))

	startHealthChecks(ctx, cfg, balanced, m, logger.Named("health"))

	fwd := proxy.New(proxy.Options{
		Timeout:     cfg.proxyTimeout,
		DialTimeout: cfg.proxyDialTimeout,
		Logger:      logger.Named("proxy"),
		Observe:     m.ObserveUpstream,
	})

	opts := gateway.Options{
		Router:    router,
		Forwarder: fwd,
		Admission: admission,
		Metrics:   m,
		Logger:    logger,
		Timeouts: gateway.Timeouts{
			Write:    cfg.writeTimeout,
			Shutdown: cfg.shutdownTimeout,
		},
	}
	if memStats != nil {
		opts.Stats = memStats
	}
	srv := gateway.New(opts)

	ln, port, err := portalloc.Allocate(cfg.listenHost, cfg.port, cfg.portSearchLimit)
	if err != nil {
		return fmt.Errorf("allocate port starting at %d: %w", cfg.port, err)
	}
	if port != cfg.port {
		logger.Warn("preferred port in use, using next free port",
			zap.Int("preferred", cfg.port), zap.Int("port", port))
	}
	logger.Info("gateway config",
		zap.Int("port", port),
		zap.Bool("rate_enabled", cfg.rateEnabled),
		zap.String("rate_algorithm", cfg.rateAlgorithm),
		zap.String("rate_store", cfg.rateStore),
		zap.Duration("rate_window", cfg.rateWindow),
		zap.Int("rate_max", cfg.rateMax),
		zap.Int("concurrency_max", cfg.concurrencyMax),
		zap.Duration("proxy_timeout", cfg.proxyTimeout),
	)

	return srv.Serve(ctx, ln)
}

// newLimiterStore escolhe o store conforme RATE_ALGORITHM/RATE_STORE e liga o
// janitor dos stores em memória.
func newLimiterStore(ctx context.Context, cfg config, logger *zap.Logger) (domain.LimiterStore, func(), error) {
	noop := func() {}

	if cfg.rateStore == storeRedis {
		rdb, err := newRedis(ctx, cfg.rateRedis)
		if err != nil {
			return nil, noop, fmt.Errorf("redis rate store: %w", err)
		}
		logger.Info("rate limit store: redis fixed window", zap.String("addr", cfg.rateRedis.addr))
		store := infra.NewRedisWindowStore(rdb, cfg.rateWindow, cfg.rateMax, infra.WithWindowPrefix(cfg.rateRedisKeys))
		return store, func() { _ = rdb.Close() }, nil
	}

	if cfg.rateAlgorithm == algoTokenBucket {
		store := infra.NewTokenBucketStore(cfg.rateRPS, cfg.rateBurst, infra.WithCleanupEvery(cfg.rateCleanup))
		store.StartJanitor(ctx)
		logger.Info("rate limit store: memory token bucket",
			zap.Float64("rps", cfg.rateRPS), zap.Int("burst", cfg.rateBurst))
		return store, noop, nil
	}

	store := infra.NewFixedWindowStore(cfg.rateWindow, cfg.rateMax, infra.WithWindowCleanupEvery(cfg.rateCleanup))
	store.StartJanitor(ctx)
	logger.Info("rate limit store: memory fixed window",
		zap.Duration("window", cfg.rateWindow), zap.Int("max", cfg.rateMax))
	return store, noop, nil
}

func newRedis(ctx context.Context, rc redisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.addr,
		Password: rc.password,
		DB:       rc.db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping %s: %w", rc.addr, err)
	}
	return rdb, nil
}

func startHealthChecks(ctx context.Context, cfg config, balanced []routing.Balanced, m *metrics.Metrics, logger *zap.Logger) {
	for _, b := range balanced {
		for _, t := range b.Balancer.Targets() {
			m.SetTargetUp(b.Name, t.String(), true)
		}
		if cfg.healthCheckInterval <= 0 {
			continue
		}

		name := b.Name
		hc := &routing.HealthChecker{
			Balancer: b.Balancer,
			Path:     cfg.healthCheckPath,
			Interval: cfg.healthCheckInterval,
			Logger:   logger.With(zap.String("route", name)),
			OnChange: func(target *url.URL, up bool) {
				m.SetTargetUp(name, target.String(), up)
			},
		}
		hc.Start(ctx)
	}
}
