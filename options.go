package evolution

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/evolution/connection"
	"github.com/xraph/evolution/gateway"
	"github.com/xraph/evolution/observability"
	"github.com/xraph/evolution/queue"
	"github.com/xraph/evolution/ratelimit"
	"github.com/xraph/evolution/schema"
	"github.com/xraph/evolution/signature"
	"github.com/xraph/evolution/transport"
	"github.com/xraph/evolution/webhook"
)

// Client is the root Evolution API gateway. It sends outbound calls through
// the connection registry, the rate limiter and the retrying transport, and
// routes inbound webhooks to registered handlers.
type Client struct {
	config Config
	logger *slog.Logger

	store     queue.Store
	backend   ratelimit.Backend
	doer      transport.Doer
	sleep     transport.SleepFunc
	now       func() time.Time
	recorder  webhook.Recorder
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	validator *schema.Validator

	registry   *connection.Registry
	limiter    *ratelimit.Limiter
	transport  *transport.Transport
	gateway    *gateway.Gateway
	verifier   *signature.Verifier
	dispatcher *webhook.Dispatcher
	mux        *queue.Mux
	worker     *queue.Worker
}

// Option configures a Client.
type Option func(*Client) error

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.wire(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithConfig replaces the whole configuration. Options applied after it
// still take effect.
func WithConfig(cfg Config) Option {
	return func(c *Client) error {
		c.config = cfg
		return nil
	}
}

// WithServer configures the default connection from a server URL and API key.
func WithServer(serverURL, apiKey string) Option {
	return func(c *Client) error {
		c.config.ServerURL = serverURL
		c.config.APIKey = apiKey
		return nil
	}
}

// WithConnection adds a named connection.
func WithConnection(name, serverURL, apiKey string) Option {
	return func(c *Client) error {
		if name == "" {
			return fmt.Errorf("%w: connection name is required", ErrInvalidConfig)
		}
		if c.config.Connections == nil {
			c.config.Connections = make(map[string]connection.Config)
		}
		c.config.Connections[name] = connection.Config{ServerURL: serverURL, APIKey: apiKey}
		return nil
	}
}

// WithActiveConnection selects the connection used when a call names none.
func WithActiveConnection(name string) Option {
	return func(c *Client) error {
		c.config.ActiveConnection = name
		return nil
	}
}

// WithRateLimit sets the rule of one category.
func WithRateLimit(category string, maxAttempts int, window time.Duration) Option {
	return func(c *Client) error {
		if c.config.RateLimits == nil {
			c.config.RateLimits = make(map[string]ratelimit.Rule)
		}
		c.config.RateLimits[category] = ratelimit.Rule{MaxAttempts: maxAttempts, Window: window}
		return nil
	}
}

// WithRateLimitBackend sets where rate limit buckets live. Share a Redis
// backend to enforce limits across processes.
func WithRateLimitBackend(b ratelimit.Backend) Option {
	return func(c *Client) error {
		c.backend = b
		return nil
	}
}

// WithOnLimit sets what a call does when its category is exhausted.
func WithOnLimit(p gateway.OnLimit) Option {
	return func(c *Client) error {
		c.config.OnLimit = p
		return nil
	}
}

// WithRetryPolicy sets the outbound retry policy.
func WithRetryPolicy(p transport.Policy) Option {
	return func(c *Client) error {
		c.config.Retry = p
		return nil
	}
}

// WithWebhookSecrets sets the accepted webhook signing secrets.
func WithWebhookSecrets(secrets ...string) Option {
	return func(c *Client) error {
		c.config.Webhook.Secrets = secrets
		return nil
	}
}

// WithAllowUnsigned accepts unsigned webhooks when no secret is configured.
func WithAllowUnsigned(allow bool) Option {
	return func(c *Client) error {
		c.config.Webhook.AllowUnsigned = allow
		return nil
	}
}

// WithAdminToken sets the bearer token required by AdminHandler.
func WithAdminToken(token string) Option {
	return func(c *Client) error {
		c.config.AdminToken = token
		return nil
	}
}

// WithWebhookMode selects sync or queued handler execution.
func WithWebhookMode(m webhook.Mode) Option {
	return func(c *Client) error {
		c.config.Webhook.Mode = m
		return nil
	}
}

// WithStore sets the task store. The default is an in-memory store.
func WithStore(s queue.Store) Option {
	return func(c *Client) error {
		c.store = s
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for outbound calls.
func WithHTTPClient(d transport.Doer) Option {
	return func(c *Client) error {
		c.doer = d
		return nil
	}
}

// WithSleep overrides how the client waits between retries and for rate
// limit windows.
func WithSleep(fn transport.SleepFunc) Option {
	return func(c *Client) error {
		c.sleep = fn
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) error {
		c.now = now
		return nil
	}
}

// WithRecorder sets where webhook outcomes are recorded.
func WithRecorder(r webhook.Recorder) Option {
	return func(c *Client) error {
		c.recorder = r
		return nil
	}
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Client) error {
		c.tracer = t
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of task worker goroutines.
func WithConcurrency(n int) Option {
	return func(c *Client) error {
		c.config.Queue.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the worker checks for pending tasks.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) error {
		c.config.Queue.PollInterval = d
		return nil
	}
}

// WithMaxAttempts sets the attempts of each queued task.
func WithMaxAttempts(n int) Option {
	return func(c *Client) error {
		c.config.Queue.MaxAttempts = n
		return nil
	}
}

// WithRetrySchedule sets the waits between task attempts.
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(c *Client) error {
		c.config.Queue.RetrySchedule = schedule
		return nil
	}
}

// WithShutdownTimeout sets how long Stop waits for in-flight tasks.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.config.ShutdownTimeout = d
		return nil
	}
}
