package config

import (
	"github.com/xraph/evolution"
	"github.com/xraph/evolution/connection"
	"github.com/xraph/evolution/gateway"
	"github.com/xraph/evolution/ratelimit"
	"github.com/xraph/evolution/transport"
	"github.com/xraph/evolution/webhook"
)

// ClientConfig converts f into a client configuration. f must be valid.
func (f *File) ClientConfig() (evolution.Config, error) {
	onLimit, err := gateway.ParseOnLimit(f.OnLimit)
	if err != nil {
		return evolution.Config{}, err
	}
	backoff, err := transport.ParseBackoff(f.Retry.Backoff)
	if err != nil {
		return evolution.Config{}, err
	}

	c := evolution.DefaultConfig()
	c.ServerURL = f.API.ServerURL
	c.APIKey = f.API.APIKey
	c.ActiveConnection = f.API.Active
	c.AdminToken = f.Server.AdminToken
	if len(f.API.Connections) > 0 {
		c.Connections = make(map[string]connection.Config, len(f.API.Connections))
		for name, conn := range f.API.Connections {
			c.Connections[name] = connection.Config{ServerURL: conn.ServerURL, APIKey: conn.APIKey}
		}
	}

	c.RateLimits = make(map[string]ratelimit.Rule, len(f.RateLimits))
	for category, rule := range f.RateLimits {
		c.RateLimits[category] = rule
	}
	c.OnLimit = onLimit

	c.Retry = transport.Policy{
		MaxAttempts:          f.Retry.MaxAttempts,
		Backoff:              backoff,
		BaseDelay:            f.Retry.BaseDelay,
		MaxDelay:             f.Retry.MaxDelay,
		RetryableStatusCodes: f.Retry.RetryableStatusCodes,
		AttemptTimeout:       f.Retry.AttemptTimeout,
	}

	c.Webhook = evolution.WebhookConfig{
		Mode:            webhook.Mode(f.Webhook.Mode),
		Secrets:         f.Webhook.Secrets,
		Tolerance:       f.Webhook.Tolerance,
		AllowUnsigned:   f.Webhook.AllowUnsigned,
		SignatureHeader: f.Webhook.SignatureHeader,
		TimestampHeader: f.Webhook.TimestampHeader,
		MaxBodyBytes:    f.Webhook.MaxBodyBytes,
		DefaultEvents:   f.Webhook.DefaultEvents,
	}

	c.Queue = evolution.QueueConfig{
		Concurrency:   f.Queue.Concurrency,
		PollInterval:  f.Queue.PollInterval,
		BatchSize:     f.Queue.BatchSize,
		TaskTimeout:   f.Queue.TaskTimeout,
		Lease:         f.Queue.Lease,
		MaxAttempts:   f.Queue.MaxAttempts,
		RetrySchedule: f.Queue.RetrySchedule,
		Retention:     f.Queue.Retention,
	}
	c.ShutdownTimeout = f.Server.ShutdownTimeout
	return c, nil
}

// Options converts f into client options. Stores, backends and telemetry
// need live connections and are added by the caller.
func (f *File) Options() ([]evolution.Option, error) {
	c, err := f.ClientConfig()
	if err != nil {
		return nil, err
	}
	return []evolution.Option{evolution.WithConfig(c)}, nil
}
