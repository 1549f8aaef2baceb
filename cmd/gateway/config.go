package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cab-gateway/portalloc"
	"cab-gateway/routing"
)

const (
	algoFixedWindow = "fixed_window"
	algoTokenBucket = "token_bucket"

	storeMemory = "memory"
	storeRedis  = "redis"
)

type redisConfig struct {
	addr     string
	password string
	db       int
}

type config struct {
	listenHost      string
	port            int
	portSearchLimit int
	logLevel        string
	shutdownTimeout time.Duration
	writeTimeout    time.Duration

	routesFile string
	table      routing.TableConfig

	rateEnabled   bool
	rateAlgorithm string
	rateStore     string
	rateWindow    time.Duration
	rateMax       int
	rateRPS       float64
	rateBurst     int
	rateCleanup   time.Duration
	rateRedis     redisConfig
	rateRedisKeys string
	rateKeyHeader string
	trustXFF      bool
	retryAfter    time.Duration
	addHeaders    bool

	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled   bool
	rateStatsRedis     redisConfig
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool
	rateStatsMemory    bool

	proxyTimeout        time.Duration
	proxyDialTimeout    time.Duration
	healthCheckInterval time.Duration
	healthCheckPath     string
}

// readConfig lê o ambiente. Valor presente mas inválido é erro (nada de cair
// silenciosamente no default).
func readConfig() (config, error) {
	return loadConfig(os.LookupEnv)
}

func loadConfig(lookup func(string) (string, bool)) (config, error) {
	e := &env{lookup: lookup}
	cfg := config{}

	cfg.listenHost = e.str("LISTEN_HOST", "")
	cfg.port = e.integer("PORT", 3000)
	cfg.portSearchLimit = e.integer("PORT_SEARCH_LIMIT", portalloc.DefaultAttempts)
	cfg.logLevel = e.str("LOG_LEVEL", "info")
	cfg.shutdownTimeout = e.duration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.writeTimeout = e.duration("SERVER_WRITE_TIMEOUT", 60*time.Second)

	cfg.routesFile = e.str("ROUTES_FILE", "")
	if cfg.routesFile == "" {
		cfg.table = defaultTable(e)
	}

	cfg.rateEnabled = e.boolean("RATE_ENABLED", true)
	cfg.rateAlgorithm = strings.ToLower(e.str("RATE_ALGORITHM", algoFixedWindow))
	cfg.rateStore = strings.ToLower(e.str("RATE_STORE", storeMemory))
	cfg.rateWindow = e.duration("RATE_WINDOW", 15*time.Minute)
	cfg.rateMax = e.integer("RATE_MAX", 100)
	cfg.rateRPS = e.float("RATE_RPS", 10)
	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02), o padrão 20 pode dar a impressão de que
	// o limiter não está funcionando, porque as primeiras ~20 passam.
	if e.isSet("RATE_BURST") {
		cfg.rateBurst = e.integer("RATE_BURST", 20)
	} else {
		cfg.rateBurst = 20
		if e.isSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.rateCleanup = e.duration("RATE_CLEANUP_EVERY", 2*time.Minute)
	cfg.rateRedis = redisConfig{
		addr:     e.str("RATE_REDIS_ADDR", ""),
		password: e.str("RATE_REDIS_PASSWORD", ""),
		db:       e.integer("RATE_REDIS_DB", 0),
	}
	cfg.rateRedisKeys = e.str("RATE_REDIS_PREFIX", "ratelimit:window")
	cfg.rateKeyHeader = e.str("RATE_KEY_HEADER", "")
	cfg.trustXFF = e.boolean("TRUST_XFF", false)
	cfg.retryAfter = e.duration("RETRY_AFTER", 1*time.Second)
	cfg.addHeaders = e.boolean("ADD_RATELIMIT_HEADERS", false)

	cfg.concurrencyMax = e.integer("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = e.duration("CONCURRENCY_TIMEOUT", 0)

	cfg.rateStatsEnabled = e.boolean("RATE_STATS_ENABLED", false)
	cfg.rateStatsRedis = redisConfig{
		addr:     e.str("RATE_STATS_REDIS_ADDR", ""),
		password: e.str("RATE_STATS_REDIS_PASSWORD", ""),
		db:       e.integer("RATE_STATS_REDIS_DB", 0),
	}
	cfg.rateStatsPrefix = e.str("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.rateStatsTTL = e.duration("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = e.str("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = e.boolean("RATE_STATS_TRACK_KEYS", false)
	cfg.rateStatsMemory = e.boolean("RATE_STATS_MEMORY", false)

	cfg.proxyTimeout = e.duration("PROXY_TIMEOUT", 30*time.Second)
	cfg.proxyDialTimeout = e.duration("PROXY_DIAL_TIMEOUT", 5*time.Second)
	cfg.healthCheckInterval = e.duration("HEALTH_CHECK_INTERVAL", 0)
	cfg.healthCheckPath = e.str("HEALTH_CHECK_PATH", "/")

	if err := e.err(); err != nil {
		return config{}, err
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// defaultTable é a tabela de rotas padrão: auth, cabs, orders e cabs balanceado.
func defaultTable(e *env) routing.TableConfig {
	authURL := e.str("AUTH_SERVICE_URL", "http://localhost:4001")
	cabURL := e.str("CAB_SERVICE_URL", "http://localhost:4002")
	orderURL := e.str("ORDER_SERVICE_URL", "http://localhost:4003")
	cabURLs := splitList(e.str("CAB_SERVICE_URLS", cabURL))

	return routing.TableConfig{Routes: []routing.RouteConfig{
		{Name: "auth", Prefix: "/api/auth", Target: authURL, Rewrite: routing.RewriteReplace, RewriteTo: "/auth"},
		{Name: "cabs", Prefix: "/api/cabs", Target: cabURL, Rewrite: routing.RewriteStrip},
		{Name: "orders", Prefix: "/api/orders", Target: orderURL, Rewrite: routing.RewritePreserve},
		{Name: "cabs-balanced", Prefix: "/api/cabs-balanced", Targets: cabURLs, Balanced: true, Rewrite: routing.RewriteStrip},
	}}
}

func (cfg config) validate() error {
	var errs []error
	if cfg.port < 0 || cfg.port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be in [0, 65535], got %d", cfg.port))
	}
	if cfg.portSearchLimit <= 0 {
		errs = append(errs, errors.New("PORT_SEARCH_LIMIT must be > 0"))
	}
	switch cfg.rateAlgorithm {
	case algoFixedWindow, algoTokenBucket:
	default:
		errs = append(errs, fmt.Errorf("RATE_ALGORITHM must be %s or %s, got %q", algoFixedWindow, algoTokenBucket, cfg.rateAlgorithm))
	}
	switch cfg.rateStore {
	case storeMemory:
	case storeRedis:
		if cfg.rateAlgorithm != algoFixedWindow {
			errs = append(errs, errors.New("RATE_STORE=redis only supports RATE_ALGORITHM=fixed_window"))
		}
		if strings.TrimSpace(cfg.rateRedis.addr) == "" {
			errs = append(errs, errors.New("RATE_REDIS_ADDR is required when RATE_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_STORE must be %s or %s, got %q", storeMemory, storeRedis, cfg.rateStore))
	}
	if cfg.rateWindow <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW must be > 0"))
	}
	if cfg.rateMax <= 0 {
		errs = append(errs, errors.New("RATE_MAX must be > 0"))
	}
	if cfg.rateRPS <= 0 {
		errs = append(errs, errors.New("RATE_RPS must be > 0"))
	}
	if cfg.rateBurst <= 0 {
		errs = append(errs, errors.New("RATE_BURST must be > 0"))
	}
	if cfg.concurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if cfg.rateStatsEnabled && strings.TrimSpace(cfg.rateStatsRedis.addr) == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// env acumula erros de parse para que todas as variáveis inválidas apareçam
// numa única mensagem.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) get(k string) (string, bool) {
	v, ok := e.lookup(k)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) isSet(k string) bool {
	_, ok := e.get(k)
	return ok
}

func (e *env) fail(k, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", k, v, err))
}

func (e *env) str(k, def string) string {
	if v, ok := e.get(k); ok {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v, ok := e.get(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return i
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.get(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return f
}

func (e *env) boolean(k string, def bool) bool {
	v, ok := e.get(k)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return b
}

// duration aceita "15m", "900ms" e também milissegundos puros ("900000").
func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.get(k)
	if !ok {
		return def
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return d
}

func (e *env) err() error { return errors.Join(e.errs...) }
