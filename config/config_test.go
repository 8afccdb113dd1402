package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/evolution/gateway"
	"github.com/xraph/evolution/transport"
	"github.com/xraph/evolution/webhook"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evolution.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fieldErrors(t *testing.T, err error) map[string]bool {
	t.Helper()
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	fields := make(map[string]bool, len(errs))
	for _, e := range errs {
		fields[e.Field] = true
	}
	return fields
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Queue.Backend)
	assert.Equal(t, "wait", cfg.OnLimit)
	assert.Equal(t, "sync", cfg.Webhook.Mode)
	assert.Contains(t, cfg.RateLimits, "messages")
	assert.Equal(t, 7*24*time.Hour, cfg.Queue.Retention)
	assert.NoError(t, Validate(cfg))
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
api:
  active: primary
  connections:
    primary:
      server_url: https://evo.example.com/
      api_key: key-1
rate_limits:
  messages:
    max_attempts: 5
    window: 10s
on_limit: throw
retry:
  max_attempts: 4
  backoff: linear
  base_delay: 250ms
webhook:
  mode: queued
  secrets: [one, two]
queue:
  retry_schedule: [1s, 5s]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "primary", cfg.API.Active)
	assert.Equal(t, "key-1", cfg.API.Connections["primary"].APIKey)
	assert.Equal(t, 5, cfg.RateLimits["messages"].MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.RateLimits["messages"].Window)
	assert.Contains(t, cfg.RateLimits, "default")
	assert.Equal(t, "throw", cfg.OnLimit)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, []string{"one", "two"}, cfg.Webhook.Secrets)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, cfg.Queue.RetrySchedule)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EVOLUTION_API_SERVER_URL", "https://env.example.com")
	t.Setenv("EVOLUTION_API_API_KEY", "env-key")
	t.Setenv("EVOLUTION_QUEUE_CONCURRENCY", "3")

	cfg, err := Load(LoadOptions{ConfigFile: writeConfig(t, "logging:\n  level: debug\n")})
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.API.ServerURL)
	assert.Equal(t, "env-key", cfg.API.APIKey)
	assert.Equal(t, 3, cfg.Queue.Concurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("EVO_TEST_KEY", "expanded-key")

	cfg, err := LoadFromFile(writeConfig(t, `
api:
  server_url: https://evo.example.com
  api_key: ${EVO_TEST_KEY}
`))
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.API.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_Invalid(t *testing.T) {
	cfg := Default()
	cfg.API.ServerURL = "not a url"
	cfg.API.Active = "ghost"
	cfg.OnLimit = "explode"
	cfg.Retry.MaxAttempts = 0
	cfg.Retry.Backoff = "random"
	cfg.Webhook.Mode = "async"
	cfg.Queue.Backend = "postgres"
	cfg.Logging.Format = "xml"
	cfg.Tracing.SampleRate = 2
	cfg.Server.AdminAddr = cfg.Server.Addr

	fields := fieldErrors(t, Validate(cfg))
	for _, f := range []string{
		"api.server_url",
		"api.api_key",
		"api.active",
		"on_limit",
		"retry.max_attempts",
		"retry.backoff",
		"webhook.mode",
		"postgres.dsn",
		"logging.format",
		"tracing.sample_rate",
		"server.admin_addr",
	} {
		assert.True(t, fields[f], "expected error for %s", f)
	}
}

func TestValidate_LegacyActiveDefault(t *testing.T) {
	cfg := Default()
	cfg.API.ServerURL = "https://evo.example.com"
	cfg.API.APIKey = "k"
	cfg.API.Active = "default"
	assert.NoError(t, Validate(cfg))
}

func TestClientConfig(t *testing.T) {
	cfg := Default()
	cfg.API.Connections = map[string]ConnectionConfig{
		"a": {ServerURL: "https://a.example.com", APIKey: "ka"},
	}
	cfg.OnLimit = "skip"
	cfg.Retry.Backoff = "fixed"
	cfg.Webhook.Mode = "queued"
	cfg.Webhook.Secrets = []string{"s"}
	cfg.Server.AdminToken = "admin"

	c, err := cfg.ClientConfig()
	require.NoError(t, err)

	assert.Equal(t, gateway.OnLimitSkip, c.OnLimit)
	assert.Equal(t, transport.BackoffFixed, c.Retry.Backoff)
	assert.Equal(t, webhook.ModeQueued, c.Webhook.Mode)
	assert.Equal(t, "ka", c.Connections["a"].APIKey)
	assert.Equal(t, []string{"s"}, c.Webhook.Secrets)
	assert.Equal(t, cfg.Server.ShutdownTimeout, c.ShutdownTimeout)
	assert.Equal(t, "admin", c.AdminToken)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 1)
}

func TestRedactedYAML(t *testing.T) {
	cfg := Default()
	cfg.API.ServerURL = "https://evo.example.com"
	cfg.API.APIKey = "super-secret-key"
	cfg.Webhook.Secrets = []string{"whsec_1"}
	cfg.Postgres.DSN = "postgres://user:pw@localhost/db"
	cfg.Server.AdminToken = "admin-bearer"

	out, err := cfg.Redacted().YAML()
	require.NoError(t, err)

	text := string(out)
	assert.NotContains(t, text, "super-secret-key")
	assert.NotContains(t, text, "whsec_1")
	assert.NotContains(t, text, "user:pw")
	assert.NotContains(t, text, "admin-bearer")
	assert.Contains(t, text, "https://evo.example.com")
	assert.Equal(t, "super-secret-key", cfg.API.APIKey, "original must be unchanged")
}

func TestYAMLLoadsBack(t *testing.T) {
	cfg := Default()
	cfg.OnLimit = "throw"
	out, err := cfg.YAML()
	require.NoError(t, err)

	loaded, err := LoadFromFile(writeConfig(t, string(out)))
	require.NoError(t, err)
	assert.Equal(t, "throw", loaded.OnLimit)
	assert.Equal(t, cfg.Queue.PollInterval, loaded.Queue.PollInterval)
	assert.Equal(t, cfg.RateLimits["media"], loaded.RateLimits["media"])
}
