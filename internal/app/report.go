package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/browndog-tests/internal/adapter/mail"
	"github.com/fairyhunter13/browndog-tests/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/browndog-tests/internal/adapter/redisguard"
	"github.com/fairyhunter13/browndog-tests/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/browndog-tests/internal/config"
	"github.com/fairyhunter13/browndog-tests/internal/teardown"
	"github.com/fairyhunter13/browndog-tests/internal/usecase"
)

// BuildReportService wires the report sinks enabled in cfg. host names the
// sender in mail. The returned scope closes every opened connection.
func BuildReportService(ctx context.Context, cfg config.Config, host string) (usecase.ReportService, *teardown.Scope, error) {
	svc := usecase.ReportService{From: cfg.MailFrom, DedupeTTL: cfg.ReportDedupeTTL}
	scope := teardown.New()
	fail := func(err error) (usecase.ReportService, *teardown.Scope, error) {
		_ = scope.Close(ctx)
		return usecase.ReportService{}, nil, fmt.Errorf("op=app.BuildReportService: %w", err)
	}

	if cfg.MailServer != "" {
		watchers, err := config.LoadWatchers(cfg.WatchersFile)
		if err != nil {
			return fail(err)
		}
		svc.Watchers = watchers
		svc.Mailer = mail.New(cfg.MailServer, host)
	}

	if cfg.DBURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return fail(err)
		}
		scope.Defer("postgres", func(context.Context) error { pool.Close(); return nil })
		repo := postgres.NewRunRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		svc.Store = repo
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := redpanda.NewPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fail(err)
		}
		scope.Defer("redpanda", func(context.Context) error { return pub.Close() })
		svc.Publisher = pub
	}

	if cfg.RedisURL != "" {
		rdb, err := NewRedis(cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		scope.Defer("redis", func(context.Context) error { return rdb.Close() })
		svc.Guard = redisguard.New(rdb)
	}
	return svc, scope, nil
}

// NewRedis parses a redis:// URL into a client.
func NewRedis(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("op=app.NewRedis: %w", err)
	}
	return redis.NewClient(opts), nil
}
