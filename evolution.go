package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/xraph/evolution/api"
	"github.com/xraph/evolution/connection"
	"github.com/xraph/evolution/gateway"
	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/message"
	"github.com/xraph/evolution/queue"
	"github.com/xraph/evolution/queue/memory"
	"github.com/xraph/evolution/ratelimit"
	"github.com/xraph/evolution/schema"
	"github.com/xraph/evolution/signature"
	"github.com/xraph/evolution/transport"
	"github.com/xraph/evolution/webhook"
)

// KindSend is the task kind of queued message sends.
const KindSend = "send"

// wire builds the services from the applied options.
func (c *Client) wire() error {
	cfg := c.config

	c.registry = connection.NewRegistry(cfg.Connections, c.logger).WithLegacy(cfg.ServerURL, cfg.APIKey)
	if cfg.ActiveConnection != "" {
		if err := c.registry.SetActive(cfg.ActiveConnection); err != nil {
			return err
		}
	}

	limOpts := []ratelimit.Option{ratelimit.WithLogger(c.logger)}
	if c.backend != nil {
		limOpts = append(limOpts, ratelimit.WithBackend(c.backend))
	}
	if c.now != nil {
		limOpts = append(limOpts, ratelimit.WithClock(c.now))
	}
	c.limiter = ratelimit.New(cfg.RateLimits, limOpts...)

	trOpts := []transport.Option{transport.WithLogger(c.logger)}
	if c.doer != nil {
		trOpts = append(trOpts, transport.WithDoer(c.doer))
	}
	if c.sleep != nil {
		trOpts = append(trOpts, transport.WithSleep(c.sleep))
	}
	c.transport = transport.New(trOpts...)

	gwOpts := []gateway.Option{
		gateway.WithMetrics(c.metrics),
		gateway.WithTracer(c.tracer),
		gateway.WithLogger(c.logger),
	}
	if c.sleep != nil {
		gwOpts = append(gwOpts, gateway.WithSleep(c.sleep))
	}
	gw, err := gateway.New(c.registry, c.limiter, c.transport,
		gateway.Config{Policy: cfg.Retry, OnLimit: cfg.OnLimit}, gwOpts...)
	if err != nil {
		return err
	}
	c.gateway = gw

	c.verifier = signature.NewVerifier(signature.Config{
		Secrets:       cfg.Webhook.Secrets,
		Tolerance:     cfg.Webhook.Tolerance,
		AllowUnsigned: cfg.Webhook.AllowUnsigned,
	})
	if c.now != nil {
		c.verifier.WithClock(c.now)
	}
	if c.verifier.Unsigned() {
		c.logger.Warn("webhook signature verification is disabled; every webhook is accepted")
	}

	if c.store == nil {
		c.store = memory.New()
	}
	if c.validator == nil {
		c.validator = schema.NewValidator()
	}

	dOpts := []webhook.Option{
		webhook.WithVerifier(c.verifier),
		webhook.WithQueue(c.store),
		webhook.WithMetrics(c.metrics),
		webhook.WithTracer(c.tracer),
		webhook.WithLogger(c.logger),
		webhook.WithValidator(c.validator),
	}
	if c.recorder != nil {
		dOpts = append(dOpts, webhook.WithRecorder(c.recorder))
	}
	if c.now != nil {
		dOpts = append(dOpts, webhook.WithClock(c.now))
	}
	d, err := webhook.NewDispatcher(webhook.Config{
		Mode:        cfg.Webhook.Mode,
		MaxAttempts: cfg.Queue.MaxAttempts,
	}, dOpts...)
	if err != nil {
		return err
	}
	c.dispatcher = d

	c.mux = queue.NewMux()
	c.mux.Handle(webhook.KindWebhook, c.dispatcher)
	c.mux.Handle(KindSend, queue.RunnerFunc(c.runSend))

	c.worker = queue.NewWorker(c.store, c.mux, queue.WorkerConfig{
		Concurrency:   cfg.Queue.Concurrency,
		PollInterval:  cfg.Queue.PollInterval,
		BatchSize:     cfg.Queue.BatchSize,
		TaskTimeout:   cfg.Queue.TaskTimeout,
		Lease:         cfg.Queue.Lease,
		RetrySchedule: cfg.Queue.RetrySchedule,
		Retention:     cfg.Queue.Retention,
		Metrics:       c.metrics,
		Tracer:        c.tracer,
	}, c.logger)
	return nil
}

// Start begins processing queued tasks. It returns immediately.
func (c *Client) Start(ctx context.Context) {
	c.worker.Start(ctx)
	c.logger.Info("evolution client started",
		"webhook_mode", c.dispatcher.Mode(),
		"concurrency", c.config.Queue.Concurrency,
	)
}

// Stop waits for in-flight tasks, bounded by the shutdown timeout.
func (c *Client) Stop(ctx context.Context) error {
	if c.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ShutdownTimeout)
		defer cancel()
	}
	c.logger.Info("evolution client stopping")
	return c.worker.Stop(ctx)
}

// Call sends one request to the Evolution API. conn names the connection;
// empty uses the active one. category selects the rate-limit bucket.
func (c *Client) Call(ctx context.Context, conn, method, path string, body any, category string) (*transport.Response, error) {
	return c.gateway.Call(ctx, conn, method, path, body, category)
}

// SendMessage validates body against the schema of t and posts it to the
// endpoint of t on instance.
func (c *Client) SendMessage(ctx context.Context, conn, instance string, t message.Type, body any) (*transport.Response, error) {
	if instance == "" {
		return nil, fmt.Errorf("%w: instance is required", ErrInvalidMessage)
	}
	if err := message.Validate(c.validator, t, body); err != nil {
		return nil, err
	}
	return c.gateway.Call(ctx, conn, http.MethodPost, t.Path(instance), body, t.Category())
}

// Send posts a typed message body.
func (c *Client) Send(ctx context.Context, conn, instance string, m message.Message) (*transport.Response, error) {
	return c.SendMessage(ctx, conn, instance, m.MessageType(), m)
}

// SendText posts a text message to number.
func (c *Client) SendText(ctx context.Context, conn, instance, number, text string) (*transport.Response, error) {
	return c.Send(ctx, conn, instance, message.TextMessage{Number: number, Text: text})
}

// sendPayload is the payload of a KindSend task.
type sendPayload struct {
	Connection string          `json:"connection,omitempty"`
	Instance   string          `json:"instance"`
	Type       message.Type    `json:"type"`
	Body       json.RawMessage `json:"body"`
}

// QueueMessage validates body and stores it as a task sent by the worker,
// with retries across restarts when the store is durable.
func (c *Client) QueueMessage(ctx context.Context, conn, instance string, t message.Type, body any) (id.ID, error) {
	if instance == "" {
		return id.Nil, fmt.Errorf("%w: instance is required", ErrInvalidMessage)
	}
	if err := message.Validate(c.validator, t, body); err != nil {
		return id.Nil, err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	task, err := queue.NewTask(KindSend, t.String(), sendPayload{
		Connection: conn,
		Instance:   instance,
		Type:       t,
		Body:       raw,
	}, c.config.Queue.MaxAttempts)
	if err != nil {
		return id.Nil, err
	}
	if err := c.store.Enqueue(ctx, task); err != nil {
		return id.Nil, fmt.Errorf("evolution: enqueue message: %w", err)
	}
	c.logger.DebugContext(ctx, "message queued",
		"task_id", task.ID.String(),
		"type", t.String(),
		"instance", instance,
	)
	return task.ID, nil
}

// runSend executes a KindSend task. Failures that a retry cannot fix are
// permanent.
func (c *Client) runSend(ctx context.Context, t *queue.Task) error {
	var p sendPayload
	if err := t.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	resp, err := c.SendMessage(ctx, p.Connection, p.Instance, p.Type, p.Body)
	if err != nil {
		if retryable(err) {
			return err
		}
		return queue.Permanent(err)
	}
	if resp.Skipped {
		return fmt.Errorf("%w: category %q skipped", ErrRateLimitExceeded, p.Type.Category())
	}
	return nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrConnectionNotFound),
		errors.Is(err, ErrInvalidConnection),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrUnknownMessageType):
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

// RegisterHandler subscribes h to eventTypes. "*" matches every event.
func (c *Client) RegisterHandler(eventTypes []string, h webhook.Handler, opts ...webhook.RegisterOption) (webhook.Registration, error) {
	return c.dispatcher.Register(eventTypes, h, opts...)
}

// HandleFunc subscribes fn to eventTypes.
func (c *Client) HandleFunc(eventTypes []string, fn func(ctx context.Context, evt webhook.Event) error, opts ...webhook.RegisterOption) (webhook.Registration, error) {
	return c.dispatcher.Register(eventTypes, webhook.HandlerFunc(fn), opts...)
}

// ProcessWebhook verifies, parses and routes one raw webhook request.
func (c *Client) ProcessWebhook(ctx context.Context, in webhook.Inbound) webhook.Outcome {
	return c.dispatcher.Process(ctx, in)
}

// Handler returns the HTTP handler serving webhooks and health. It does not
// expose the task queue; see AdminHandler.
func (c *Client) Handler() *api.Handler {
	return api.NewHandler(c.dispatcher, api.Config{
		SignatureHeader: c.config.Webhook.SignatureHeader,
		TimestampHeader: c.config.Webhook.TimestampHeader,
		MaxBodyBytes:    c.config.Webhook.MaxBodyBytes,
	}, api.WithLogger(c.logger))
}

// AdminHandler returns the task inspection and replay handler. Mount it on
// a private listener; it requires the configured admin token when one is set.
func (c *Client) AdminHandler() *api.AdminHandler {
	return api.NewAdminHandler(c.store,
		api.WithAdminToken(c.config.AdminToken),
		api.WithAdminLogger(c.logger),
	)
}

// AddConnection registers a connection at runtime, overriding a configured
// one of the same name.
func (c *Client) AddConnection(name, serverURL, apiKey string) error {
	return c.registry.AddRuntime(name, connection.Config{ServerURL: serverURL, APIKey: apiKey})
}

// UseConnection makes name the active connection.
func (c *Client) UseConnection(name string) error {
	return c.registry.SetActive(name)
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Registry returns the connection registry.
func (c *Client) Registry() *connection.Registry { return c.registry }

// Limiter returns the rate limiter.
func (c *Client) Limiter() *ratelimit.Limiter { return c.limiter }

// Gateway returns the outbound gateway.
func (c *Client) Gateway() *gateway.Gateway { return c.gateway }

// Dispatcher returns the webhook dispatcher.
func (c *Client) Dispatcher() *webhook.Dispatcher { return c.dispatcher }

// Store returns the task store.
func (c *Client) Store() queue.Store { return c.store }

// Worker returns the task worker.
func (c *Client) Worker() *queue.Worker { return c.worker }

func escape(s string) string { return url.PathEscape(s) }
