// Command results serves stored Brown Dog test runs over HTTP.
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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/browndog-tests/internal/adapter/httpserver"
	"github.com/fairyhunter13/browndog-tests/internal/adapter/observability"
	"github.com/fairyhunter13/browndog-tests/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/browndog-tests/internal/app"
	"github.com/fairyhunter13/browndog-tests/internal/config"
	"github.com/fairyhunter13/browndog-tests/internal/usecase"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	if cfg.DBURL == "" {
		slog.Error("DB_URL is required")
		os.Exit(1)
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	repo := postgres.NewRunRepo(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		slog.Error("db schema", slog.Any("error", err))
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if rdb, err = app.NewRedis(cfg.RedisURL); err != nil {
			slog.Error("redis config", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = rdb.Close() }()
	}
	dbCheck, redisCheck := app.BuildReadinessChecks(pool, app.RedisPinger(rdb))

	srv := httpserver.NewServer(cfg, usecase.NewResultsService(repo), dbCheck, redisCheck)
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, srv),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
