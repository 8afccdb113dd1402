package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xraph/evolution/gateway"
	"github.com/xraph/evolution/transport"
	"github.com/xraph/evolution/webhook"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Validate reports every invalid field of cfg.
func Validate(cfg *File) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateRateLimits(cfg)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateWebhook(&cfg.Webhook)...)
	errs = append(errs, validateQueue(cfg)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, ValidationError{Field: "tracing.sample_rate", Message: "must be between 0 and 1"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors
	if cfg.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{Field: "server.read_timeout", Message: "must be non-negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{Field: "server.write_timeout", Message: "must be non-negative"})
	}
	if cfg.AdminAddr != "" && cfg.AdminAddr == cfg.Addr {
		errs = append(errs, ValidationError{Field: "server.admin_addr", Message: "must differ from server.addr"})
	}
	return errs
}

func validateAPI(cfg *APIConfig) ValidationErrors {
	var errs ValidationErrors
	if cfg.ServerURL != "" || cfg.APIKey != "" {
		errs = append(errs, validateConnection("api", cfg.ServerURL, cfg.APIKey)...)
	}
	for name, conn := range cfg.Connections {
		errs = append(errs, validateConnection("api.connections."+name, conn.ServerURL, conn.APIKey)...)
	}
	if cfg.Active != "" {
		_, named := cfg.Connections[cfg.Active]
		legacy := cfg.Active == "default" && cfg.ServerURL != ""
		if !named && !legacy {
			errs = append(errs, ValidationError{Field: "api.active", Message: fmt.Sprintf("unknown connection %q", cfg.Active)})
		}
	}
	return errs
}

func validateConnection(field, serverURL, apiKey string) ValidationErrors {
	var errs ValidationErrors
	u, err := url.ParseRequestURI(serverURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{Field: field + ".server_url", Message: "must be an absolute http(s) URL"})
	}
	if strings.TrimSpace(apiKey) == "" {
		errs = append(errs, ValidationError{Field: field + ".api_key", Message: "is required"})
	}
	return errs
}

func validateRateLimits(cfg *File) ValidationErrors {
	var errs ValidationErrors
	for category, rule := range cfg.RateLimits {
		if rule.MaxAttempts < 0 {
			errs = append(errs, ValidationError{Field: "rate_limits." + category + ".max_attempts", Message: "must be non-negative"})
		}
		if rule.Window < 0 {
			errs = append(errs, ValidationError{Field: "rate_limits." + category + ".window", Message: "must be non-negative"})
		}
	}
	if _, err := gateway.ParseOnLimit(cfg.OnLimit); err != nil {
		errs = append(errs, ValidationError{Field: "on_limit", Message: "must be one of: wait, throw, skip"})
	}
	return errs
}

func validateRetry(cfg *RetryConfig) ValidationErrors {
	var errs ValidationErrors
	if cfg.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "retry.max_attempts", Message: "must be at least 1"})
	}
	if _, err := transport.ParseBackoff(cfg.Backoff); err != nil {
		errs = append(errs, ValidationError{Field: "retry.backoff", Message: "must be one of: fixed, linear, exponential"})
	}
	if cfg.BaseDelay < 0 {
		errs = append(errs, ValidationError{Field: "retry.base_delay", Message: "must be non-negative"})
	}
	if cfg.MaxDelay < 0 {
		errs = append(errs, ValidationError{Field: "retry.max_delay", Message: "must be non-negative"})
	}
	for _, code := range cfg.RetryableStatusCodes {
		if code < 100 || code > 599 {
			errs = append(errs, ValidationError{Field: "retry.retryable_status_codes", Message: fmt.Sprintf("invalid status code %d", code)})
		}
	}
	return errs
}

func validateWebhook(cfg *WebhookConfig) ValidationErrors {
	var errs ValidationErrors
	switch webhook.Mode(cfg.Mode) {
	case webhook.ModeSync, webhook.ModeQueued:
	default:
		errs = append(errs, ValidationError{Field: "webhook.mode", Message: "must be one of: sync, queued"})
	}
	if cfg.Tolerance < 0 {
		errs = append(errs, ValidationError{Field: "webhook.tolerance", Message: "must be non-negative"})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, ValidationError{Field: "webhook.max_body_bytes", Message: "must be positive"})
	}
	return errs
}

func validateQueue(cfg *File) ValidationErrors {
	var errs ValidationErrors
	switch cfg.Queue.Backend {
	case BackendMemory:
	case BackendRedis:
		if cfg.Redis.Addr == "" {
			errs = append(errs, ValidationError{Field: "redis.addr", Message: "is required for the redis queue backend"})
		}
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			errs = append(errs, ValidationError{Field: "postgres.dsn", Message: "is required for the postgres queue backend"})
		}
	default:
		errs = append(errs, ValidationError{Field: "queue.backend", Message: "must be one of: memory, redis, postgres"})
	}
	if cfg.Redis.RateLimits && cfg.Redis.Addr == "" {
		errs = append(errs, ValidationError{Field: "redis.addr", Message: "is required for redis rate limits"})
	}
	if cfg.Queue.Concurrency < 1 {
		errs = append(errs, ValidationError{Field: "queue.concurrency", Message: "must be at least 1"})
	}
	if cfg.Queue.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "queue.max_attempts", Message: "must be at least 1"})
	}
	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error"})
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{Field: "logging.format", Message: "must be one of: json, text"})
	}
	return errs
}
