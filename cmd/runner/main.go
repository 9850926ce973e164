// Package main is the entrypoint for the robotrainer simulation runner.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kiranshivaraju/robotrainer/internal/cache"
	"github.com/kiranshivaraju/robotrainer/internal/config"
	"github.com/kiranshivaraju/robotrainer/internal/metrics"
	"github.com/kiranshivaraju/robotrainer/internal/runner"
	"github.com/kiranshivaraju/robotrainer/internal/store"
	"github.com/kiranshivaraju/robotrainer/internal/trainer"
)

const (
	shutdownTimeout = 10 * time.Second
	redisPingRetry  = 15 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("runner failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"trainer_provider", cfg.Trainer.Provider,
		"poll_interval", cfg.Runner.PollInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := trainer.NewProvider(cfg.Trainer)
	if err != nil {
		return fmt.Errorf("create training provider: %w", err)
	}
	slog.Info("training provider initialized", "provider", provider.Name())

	pool, err := store.ConnectWithRetry(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// The status cache only speeds up API polling; the runner keeps going
	// without it.
	var statusCache cache.Cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()
	if err := pingWithRetry(ctx, redisCache, redisPingRetry); err != nil {
		slog.Warn("redis unavailable, status cache disabled", "error", err)
	} else {
		statusCache = redisCache
		slog.Info("redis connected")
	}

	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("metrics listening", "addr", cfg.Metrics.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	pgStore := store.NewPostgresStore(pool)
	pipeline := runner.NewPipeline(pgStore, provider, cfg.Runner, nil, nil)
	r := runner.New(pgStore, statusCache, pipeline, cfg.Runner, nil)

	err = r.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := metricsSrv.Shutdown(shutdownCtx); serr != nil {
		slog.Warn("metrics server shutdown", "error", serr)
	}

	if err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	slog.Info("runner stopped gracefully")
	return nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

type pinger interface {
	Ping(ctx context.Context) error
}

func pingWithRetry(ctx context.Context, p pinger, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	return backoff.Retry(func() error {
		return p.Ping(ctx)
	}, backoff.WithContext(b, ctx))
}
