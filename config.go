package evolution

import (
	"time"

	"github.com/xraph/evolution/api"
	"github.com/xraph/evolution/connection"
	"github.com/xraph/evolution/gateway"
	"github.com/xraph/evolution/queue"
	"github.com/xraph/evolution/ratelimit"
	"github.com/xraph/evolution/transport"
	"github.com/xraph/evolution/webhook"
)

// Config holds the configuration for a Client.
type Config struct {
	// ServerURL and APIKey configure the "default" connection when
	// Connections does not define one.
	ServerURL string
	APIKey    string

	// Connections are the named Evolution API servers.
	Connections map[string]connection.Config

	// ActiveConnection is used when a call names no connection.
	// Empty means "default".
	ActiveConnection string

	// RateLimits maps a category to its fixed-window rule. Categories
	// without a rule use "default"; a missing "default" rule is unlimited.
	RateLimits map[string]ratelimit.Rule

	// OnLimit selects what a call does when its category is exhausted.
	OnLimit gateway.OnLimit

	// Retry is the outbound retry policy.
	Retry transport.Policy

	// Webhook configures inbound webhook handling.
	Webhook WebhookConfig

	// Queue configures the task worker used for queued webhooks and
	// queued message sends.
	Queue QueueConfig

	// AdminToken, when set, is the bearer token AdminHandler requires.
	AdminToken string

	// ShutdownTimeout is the maximum time Stop waits for in-flight tasks.
	ShutdownTimeout time.Duration
}

// WebhookConfig configures inbound webhooks.
type WebhookConfig struct {
	// Mode runs handlers inline (sync) or through the queue (queued).
	Mode webhook.Mode

	// Secrets verify signatures. Several secrets allow rotation.
	Secrets []string

	// Tolerance is the accepted timestamp skew.
	Tolerance time.Duration

	// AllowUnsigned accepts webhooks without verification when no secret
	// is configured. Intended for development.
	AllowUnsigned bool

	SignatureHeader string
	TimestampHeader string

	// MaxBodyBytes limits the request body.
	MaxBodyBytes int64

	// DefaultEvents are subscribed by SetWebhook when none are given.
	DefaultEvents []string
}

// QueueConfig configures the task worker.
type QueueConfig struct {
	Concurrency   int
	PollInterval  time.Duration
	BatchSize     int
	TaskTimeout   time.Duration
	Lease         time.Duration
	MaxAttempts   int
	RetrySchedule []time.Duration

	// Retention is how long done tasks are kept. A negative value keeps
	// them forever.
	Retention time.Duration
}

// DefaultRateLimits returns per-minute limits for the built-in categories.
func DefaultRateLimits() map[string]ratelimit.Rule {
	return map[string]ratelimit.Rule{
		ratelimit.DefaultCategory: {MaxAttempts: 60, Window: time.Minute},
		"messages":                {MaxAttempts: 30, Window: time.Minute},
		"media":                   {MaxAttempts: 10, Window: time.Minute},
	}
}

// DefaultWebhookEvents are the events SetWebhook subscribes by default.
func DefaultWebhookEvents() []string {
	return []string{
		string(webhook.EventApplicationStartup),
		string(webhook.EventQRCodeUpdated),
		string(webhook.EventConnectionUpdate),
		string(webhook.EventMessagesUpsert),
		string(webhook.EventMessagesUpdate),
		string(webhook.EventSendMessage),
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	w := queue.DefaultWorkerConfig()
	return Config{
		RateLimits: DefaultRateLimits(),
		OnLimit:    gateway.OnLimitWait,
		Retry:      transport.DefaultPolicy(),
		Webhook: WebhookConfig{
			Mode:            webhook.ModeSync,
			SignatureHeader: api.DefaultSignatureHeader,
			TimestampHeader: api.DefaultTimestampHeader,
			MaxBodyBytes:    api.DefaultMaxBodyBytes,
			DefaultEvents:   DefaultWebhookEvents(),
		},
		Queue: QueueConfig{
			Concurrency:   w.Concurrency,
			PollInterval:  w.PollInterval,
			BatchSize:     w.BatchSize,
			TaskTimeout:   w.TaskTimeout,
			Lease:         w.Lease,
			MaxAttempts:   queue.DefaultMaxAttempts,
			RetrySchedule: w.RetrySchedule,
			Retention:     w.Retention,
		},
		ShutdownTimeout: 30 * time.Second,
	}
}
