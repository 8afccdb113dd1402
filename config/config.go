// Package config loads the evolutiond configuration from YAML files and
// EVOLUTION_ environment variables.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/evolution/observability"
	"github.com/xraph/evolution/ratelimit"
)

// Queue backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const redacted = "********"

// File is the full configuration of evolutiond.
type File struct {
	Server     ServerConfig                `mapstructure:"server" yaml:"server"`
	API        APIConfig                   `mapstructure:"api" yaml:"api"`
	RateLimits map[string]ratelimit.Rule   `mapstructure:"rate_limits" yaml:"rate_limits"`
	OnLimit    string                      `mapstructure:"on_limit" yaml:"on_limit"`
	Retry      RetryConfig                 `mapstructure:"retry" yaml:"retry"`
	Webhook    WebhookConfig               `mapstructure:"webhook" yaml:"webhook"`
	Queue      QueueConfig                 `mapstructure:"queue" yaml:"queue"`
	Redis      RedisConfig                 `mapstructure:"redis" yaml:"redis"`
	Postgres   PostgresConfig              `mapstructure:"postgres" yaml:"postgres"`
	Logging    LoggingConfig               `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig               `mapstructure:"metrics" yaml:"metrics"`
	Tracing    observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// ServerConfig configures the webhook listener and, when AdminAddr is set,
// a second listener for task administration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	AdminAddr       string        `mapstructure:"admin_addr" yaml:"admin_addr"`
	AdminToken      string        `mapstructure:"admin_token" yaml:"admin_token"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// APIConfig names the Evolution API servers. ServerURL and APIKey define
// the "default" connection when Connections does not.
type APIConfig struct {
	ServerURL   string                      `mapstructure:"server_url" yaml:"server_url"`
	APIKey      string                      `mapstructure:"api_key" yaml:"api_key"`
	Active      string                      `mapstructure:"active" yaml:"active"`
	Connections map[string]ConnectionConfig `mapstructure:"connections" yaml:"connections"`
}

type ConnectionConfig struct {
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
}

type RetryConfig struct {
	MaxAttempts          int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Backoff              string        `mapstructure:"backoff" yaml:"backoff"`
	BaseDelay            time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	RetryableStatusCodes []int         `mapstructure:"retryable_status_codes" yaml:"retryable_status_codes"`
	AttemptTimeout       time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
}

type WebhookConfig struct {
	Mode            string        `mapstructure:"mode" yaml:"mode"`
	Secrets         []string      `mapstructure:"secrets" yaml:"secrets"`
	Tolerance       time.Duration `mapstructure:"tolerance" yaml:"tolerance"`
	AllowUnsigned   bool          `mapstructure:"allow_unsigned" yaml:"allow_unsigned"`
	SignatureHeader string        `mapstructure:"signature_header" yaml:"signature_header"`
	TimestampHeader string        `mapstructure:"timestamp_header" yaml:"timestamp_header"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	DefaultEvents   []string      `mapstructure:"default_events" yaml:"default_events"`
}

type QueueConfig struct {
	Backend       string          `mapstructure:"backend" yaml:"backend"`
	Concurrency   int             `mapstructure:"concurrency" yaml:"concurrency"`
	PollInterval  time.Duration   `mapstructure:"poll_interval" yaml:"poll_interval"`
	BatchSize     int             `mapstructure:"batch_size" yaml:"batch_size"`
	TaskTimeout   time.Duration   `mapstructure:"task_timeout" yaml:"task_timeout"`
	Lease         time.Duration   `mapstructure:"lease" yaml:"lease"`
	MaxAttempts   int             `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetrySchedule []time.Duration `mapstructure:"retry_schedule" yaml:"retry_schedule"`
	Retention     time.Duration   `mapstructure:"retention" yaml:"retention"`
}

// RedisConfig is used by the redis queue backend and, when RateLimits is
// set, by the rate limiter.
type RedisConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	Password   string `mapstructure:"password" yaml:"password"`
	DB         int    `mapstructure:"db" yaml:"db"`
	RateLimits bool   `mapstructure:"rate_limits" yaml:"rate_limits"`
}

type PostgresConfig struct {
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
	Migrate bool   `mapstructure:"migrate" yaml:"migrate"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// YAML renders f.
func (f *File) YAML() ([]byte, error) {
	out, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return out, nil
}

// Redacted returns a copy of f with API keys, secrets and passwords masked.
func (f *File) Redacted() *File {
	c := *f
	c.Server.AdminToken = mask(c.Server.AdminToken)
	c.API.APIKey = mask(c.API.APIKey)
	if f.API.Connections != nil {
		c.API.Connections = make(map[string]ConnectionConfig, len(f.API.Connections))
		for name, conn := range f.API.Connections {
			conn.APIKey = mask(conn.APIKey)
			c.API.Connections[name] = conn
		}
	}
	if len(f.Webhook.Secrets) > 0 {
		c.Webhook.Secrets = make([]string, len(f.Webhook.Secrets))
		for i, s := range f.Webhook.Secrets {
			c.Webhook.Secrets[i] = mask(s)
		}
	}
	c.Redis.Password = mask(c.Redis.Password)
	if c.Postgres.DSN != "" {
		c.Postgres.DSN = redacted
	}
	return &c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}
