package evolution

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xraph/evolution/ratelimit"
)

// ConnectionState is the WhatsApp connection state of an instance.
type ConnectionState struct {
	Instance string `json:"instanceName"`

	// State is "open", "connecting" or "close".
	State string `json:"state"`
}

// Instance summarizes one instance on a server.
type Instance struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name"`
	ConnectionStatus string `json:"connectionStatus,omitempty"`
	OwnerJID         string `json:"ownerJid,omitempty"`
	ProfileName      string `json:"profileName,omitempty"`
	Integration      string `json:"integration,omitempty"`
}

// WebhookSettings configures the webhook of an instance.
type WebhookSettings struct {
	URL string `json:"url"`

	// Events to subscribe. Empty uses the configured default events.
	Events []string `json:"events"`

	// ByEvents appends the event name to the URL path.
	ByEvents bool `json:"byEvents"`

	// Base64 embeds media as base64 in the payload.
	Base64 bool `json:"base64"`

	Headers map[string]string `json:"headers,omitempty"`

	// Disabled turns the webhook off.
	Disabled bool `json:"-"`
}

// ConnectionState returns the connection state of instance.
func (c *Client) ConnectionState(ctx context.Context, conn, instance string) (ConnectionState, error) {
	resp, err := c.gateway.Call(ctx, conn, http.MethodGet,
		"instance/connectionState/"+escape(instance), nil, ratelimit.DefaultCategory)
	if err != nil {
		return ConnectionState{}, err
	}
	if resp.Skipped {
		return ConnectionState{}, fmt.Errorf("%w: connection state skipped", ErrRateLimitExceeded)
	}
	var out struct {
		Instance ConnectionState `json:"instance"`
	}
	if err := resp.JSON(&out); err != nil {
		return ConnectionState{}, err
	}
	if out.Instance.Instance == "" {
		out.Instance.Instance = instance
	}
	return out.Instance, nil
}

// FetchInstances lists the instances of a server.
func (c *Client) FetchInstances(ctx context.Context, conn string) ([]Instance, error) {
	resp, err := c.gateway.Call(ctx, conn, http.MethodGet,
		"instance/fetchInstances", nil, ratelimit.DefaultCategory)
	if err != nil {
		return nil, err
	}
	if resp.Skipped {
		return nil, fmt.Errorf("%w: fetch instances skipped", ErrRateLimitExceeded)
	}
	var out []Instance
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetWebhook points the webhook of instance at s.URL.
func (c *Client) SetWebhook(ctx context.Context, conn, instance string, s WebhookSettings) error {
	if s.URL == "" && !s.Disabled {
		return fmt.Errorf("%w: webhook url is required", ErrInvalidConfig)
	}
	events := s.Events
	if len(events) == 0 {
		events = c.config.Webhook.DefaultEvents
	}
	body := map[string]any{
		"webhook": map[string]any{
			"enabled":  !s.Disabled,
			"url":      s.URL,
			"byEvents": s.ByEvents,
			"base64":   s.Base64,
			"headers":  s.Headers,
			"events":   events,
		},
	}
	resp, err := c.gateway.Call(ctx, conn, http.MethodPost,
		"webhook/set/"+escape(instance), body, ratelimit.DefaultCategory)
	if err != nil {
		return err
	}
	if resp.Skipped {
		return fmt.Errorf("%w: set webhook skipped", ErrRateLimitExceeded)
	}
	c.logger.InfoContext(ctx, "webhook configured",
		"instance", instance,
		"url", s.URL,
		"events", len(events),
	)
	return nil
}
