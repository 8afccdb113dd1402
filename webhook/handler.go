package webhook

import "context"

// Handler processes one webhook event. A returned error or a panic is
// recorded against the handler and does not affect other handlers.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Registration binds a handler to event type patterns. See Match for the
// pattern syntax.
type Registration struct {
	Name       string
	EventTypes []string
	Handler    Handler
}

// RegisterOption configures a registration.
type RegisterOption func(*Registration)

// WithName names the registration. Queued tasks refer to their handler by
// name, so names must be stable across restarts when the queue is durable.
func WithName(name string) RegisterOption {
	return func(r *Registration) { r.Name = name }
}
