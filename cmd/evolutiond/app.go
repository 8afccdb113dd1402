package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/evolution"
	"github.com/xraph/evolution/config"
	"github.com/xraph/evolution/observability"
	"github.com/xraph/evolution/queue"
	"github.com/xraph/evolution/queue/memory"
	"github.com/xraph/evolution/queue/postgres"
	queueredis "github.com/xraph/evolution/queue/redis"
	"github.com/xraph/evolution/ratelimit"
)

// app holds the client and the resources it was built from.
type app struct {
	client  *evolution.Client
	logger  *slog.Logger
	closers []func() error
}

func (r *app) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("close failed", "error", err)
		}
	}
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildApp wires a client from cfg. reg may be nil to skip metrics.
func buildApp(ctx context.Context, cfg *config.File, reg prometheus.Registerer) (*app, error) {
	logger := newLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	rt := &app{logger: logger}

	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts, evolution.WithLogger(logger))

	var rdb goredis.UniversalClient
	if cfg.Queue.Backend == config.BackendRedis || cfg.Redis.RateLimits {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		rt.closers = append(rt.closers, rdb.Close)
	}
	if cfg.Redis.RateLimits {
		opts = append(opts, evolution.WithRateLimitBackend(ratelimit.NewRedisBackend(rdb)))
	}

	store, err := openStore(ctx, cfg, rdb, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}
	opts = append(opts, evolution.WithStore(store))

	if reg != nil && cfg.Metrics.Enabled {
		opts = append(opts, evolution.WithMetrics(observability.NewMetrics(reg)))
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, evolution.WithTracer(observability.NewTracer()))
	}

	client, err := evolution.New(opts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.client = client
	return rt, nil
}

func openStore(ctx context.Context, cfg *config.File, rdb goredis.UniversalClient, rt *app) (queue.Store, error) {
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		return queueredis.New(rdb).WithDoneTTL(cfg.Queue.Retention), nil
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, s.Close)
		if cfg.Postgres.Migrate {
			if err := s.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}
