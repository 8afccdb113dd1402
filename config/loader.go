package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix prefixes environment overrides, e.g. EVOLUTION_API_SERVER_URL.
const DefaultEnvPrefix = "EVOLUTION"

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *File
}

// Load reads the configuration file (when present), applies environment
// overrides and validates the result.
func Load(opts LoadOptions) (*File, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("evolution")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/evolution")
		v.AddConfigPath("/etc/evolution")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)

	cfg := &File{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads path with the default prefix.
func LoadFromFile(path string) (*File, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func setViperDefaults(v *viper.Viper, cfg *File) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.admin_addr", cfg.Server.AdminAddr)
	v.SetDefault("server.admin_token", cfg.Server.AdminToken)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	// Registered so AutomaticEnv sees them.
	v.SetDefault("api.server_url", cfg.API.ServerURL)
	v.SetDefault("api.api_key", cfg.API.APIKey)
	v.SetDefault("api.active", cfg.API.Active)

	for category, rule := range cfg.RateLimits {
		v.SetDefault("rate_limits."+category+".max_attempts", rule.MaxAttempts)
		v.SetDefault("rate_limits."+category+".window", rule.Window)
	}
	v.SetDefault("on_limit", cfg.OnLimit)

	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.backoff", cfg.Retry.Backoff)
	v.SetDefault("retry.base_delay", cfg.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", cfg.Retry.MaxDelay)
	v.SetDefault("retry.retryable_status_codes", cfg.Retry.RetryableStatusCodes)
	v.SetDefault("retry.attempt_timeout", cfg.Retry.AttemptTimeout)

	v.SetDefault("webhook.mode", cfg.Webhook.Mode)
	v.SetDefault("webhook.secrets", cfg.Webhook.Secrets)
	v.SetDefault("webhook.tolerance", cfg.Webhook.Tolerance)
	v.SetDefault("webhook.allow_unsigned", cfg.Webhook.AllowUnsigned)
	v.SetDefault("webhook.signature_header", cfg.Webhook.SignatureHeader)
	v.SetDefault("webhook.timestamp_header", cfg.Webhook.TimestampHeader)
	v.SetDefault("webhook.max_body_bytes", cfg.Webhook.MaxBodyBytes)
	v.SetDefault("webhook.default_events", cfg.Webhook.DefaultEvents)

	v.SetDefault("queue.backend", cfg.Queue.Backend)
	v.SetDefault("queue.concurrency", cfg.Queue.Concurrency)
	v.SetDefault("queue.poll_interval", cfg.Queue.PollInterval)
	v.SetDefault("queue.batch_size", cfg.Queue.BatchSize)
	v.SetDefault("queue.task_timeout", cfg.Queue.TaskTimeout)
	v.SetDefault("queue.lease", cfg.Queue.Lease)
	v.SetDefault("queue.max_attempts", cfg.Queue.MaxAttempts)
	v.SetDefault("queue.retry_schedule", cfg.Queue.RetrySchedule)
	v.SetDefault("queue.retention", cfg.Queue.Retention)

	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.rate_limits", cfg.Redis.RateLimits)

	v.SetDefault("postgres.dsn", cfg.Postgres.DSN)
	v.SetDefault("postgres.migrate", cfg.Postgres.Migrate)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", cfg.Tracing.Insecure)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", cfg.Tracing.SampleRate)
}

// expandEnvInConfig replaces ${VAR} references in string values.
func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok || !strings.Contains(val, "${") {
			continue
		}
		v.Set(key, os.Expand(val, os.Getenv))
	}
}
