package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cab-gateway/logging"
	"cab-gateway/middleware/ratelimit"
	"cab-gateway/middleware/ratelimit/infra"
	"cab-gateway/portalloc"

	"go.uber.org/zap"
)

func main() {
	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	service := getenvDefault("SERVICE_NAME", "cab")
	port, err := strconv.Atoi(getenvDefault("PORT", "4002"))
	if err != nil {
		logger.Fatal("invalid PORT", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Exemplo: o mesmo middleware do gateway injetado direto num webserver (sem proxy).
	store := infra.NewTokenBucketStore(5, 10)
	store.StartJanitor(ctx)

	h := newEchoHandler(service)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Logger: logger})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Store:               store,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		Logger:              logger,
	})(h)

	ln, port, err := portalloc.Allocate("", port, portalloc.DefaultAttempts)
	if err != nil {
		logger.Fatal("no port available", zap.Error(err))
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("echo backend listening", zap.String("service", service), zap.Int("port", port))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
