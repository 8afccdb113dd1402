package config

import (
	"time"

	"github.com/xraph/evolution"
	"github.com/xraph/evolution/observability"
)

const (
	DefaultAddr         = ":8080"
	DefaultMetricsPath  = "/metrics"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second
)

// Default returns the configuration used when nothing is set.
func Default() *File {
	c := evolution.DefaultConfig()
	return &File{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: c.ShutdownTimeout,
		},
		RateLimits: c.RateLimits,
		OnLimit:    string(c.OnLimit),
		Retry: RetryConfig{
			MaxAttempts:          c.Retry.MaxAttempts,
			Backoff:              string(c.Retry.Backoff),
			BaseDelay:            c.Retry.BaseDelay,
			MaxDelay:             c.Retry.MaxDelay,
			RetryableStatusCodes: c.Retry.RetryableStatusCodes,
			AttemptTimeout:       c.Retry.AttemptTimeout,
		},
		Webhook: WebhookConfig{
			Mode:            string(c.Webhook.Mode),
			SignatureHeader: c.Webhook.SignatureHeader,
			TimestampHeader: c.Webhook.TimestampHeader,
			MaxBodyBytes:    c.Webhook.MaxBodyBytes,
			DefaultEvents:   c.Webhook.DefaultEvents,
		},
		Queue: QueueConfig{
			Backend:       BackendMemory,
			Concurrency:   c.Queue.Concurrency,
			PollInterval:  c.Queue.PollInterval,
			BatchSize:     c.Queue.BatchSize,
			TaskTimeout:   c.Queue.TaskTimeout,
			Lease:         c.Queue.Lease,
			MaxAttempts:   c.Queue.MaxAttempts,
			RetrySchedule: c.Queue.RetrySchedule,
			Retention:     c.Queue.Retention,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Postgres: PostgresConfig{
			Migrate: true,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
		Tracing: observability.TracingConfig{
			ServiceName: "evolutiond",
			SampleRate:  1,
		},
	}
}
