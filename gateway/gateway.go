// Package gateway performs outbound Evolution API calls: it resolves the
// connection, takes a rate-limit slot, then sends through the retrying
// transport.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/evolution/connection"
	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/observability"
	"github.com/xraph/evolution/ratelimit"
	"github.com/xraph/evolution/transport"
)

// OnLimit selects what happens when the rate limiter denies a call.
type OnLimit string

const (
	// OnLimitWait sleeps until the window resets and tries once more.
	OnLimitWait OnLimit = "wait"

	// OnLimitThrow fails the call with a *ratelimit.ExceededError.
	OnLimitThrow OnLimit = "throw"

	// OnLimitSkip returns a skipped response without calling the API.
	OnLimitSkip OnLimit = "skip"
)

// ParseOnLimit converts a config string to an OnLimit.
func ParseOnLimit(s string) (OnLimit, error) {
	switch o := OnLimit(strings.ToLower(strings.TrimSpace(s))); o {
	case OnLimitWait, OnLimitThrow, OnLimitSkip:
		return o, nil
	case "":
		return OnLimitWait, nil
	default:
		return "", fmt.Errorf("evolution: unknown on-limit policy %q", s)
	}
}

// APIKeyHeader carries the connection's API key.
const APIKeyHeader = "apikey"

// Config configures a Gateway.
type Config struct {
	Policy  transport.Policy
	OnLimit OnLimit
}

// DefaultConfig returns the default retry policy with the wait on-limit policy.
func DefaultConfig() Config {
	return Config{
		Policy:  transport.DefaultPolicy(),
		OnLimit: OnLimitWait,
	}
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics sets the metrics collector.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithSleep overrides the wait used by OnLimitWait.
func WithSleep(fn transport.SleepFunc) Option {
	return func(g *Gateway) { g.sleep = fn }
}

// Gateway is the outbound call pipeline. It is safe for concurrent use.
type Gateway struct {
	registry  *connection.Registry
	limiter   *ratelimit.Limiter
	transport *transport.Transport
	config    Config
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
	sleep     transport.SleepFunc
}

// New creates a Gateway. The policy is validated once here.
func New(reg *connection.Registry, lim *ratelimit.Limiter, tr *transport.Transport, cfg Config, opts ...Option) (*Gateway, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	onLimit, err := ParseOnLimit(string(cfg.OnLimit))
	if err != nil {
		return nil, err
	}
	cfg.OnLimit = onLimit

	g := &Gateway{
		registry:  reg,
		limiter:   lim,
		transport: tr,
		config:    cfg,
		logger:    slog.Default(),
		sleep:     transport.Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Registry returns the connection registry.
func (g *Gateway) Registry() *connection.Registry { return g.registry }

// Limiter returns the rate limiter.
func (g *Gateway) Limiter() *ratelimit.Limiter { return g.limiter }

// Call sends method {serverUrl}/{path} on the named connection (empty for
// the active one) under the rate-limit category. body is sent as JSON;
// []byte and json.RawMessage are sent unchanged.
//
// A non-2xx terminal response is returned together with an
// *transport.APIError. A skipped call returns a Response with Skipped set
// and a nil error.
func (g *Gateway) Call(ctx context.Context, conn, method, path string, body any, category string) (*transport.Response, error) {
	cfg, err := g.registry.Resolve(conn)
	if err != nil {
		return nil, err
	}

	callID := id.NewCallID()
	ctx, span := g.tracer.StartCallSpan(ctx, callID.String(), cfg.Name, method, path, category)
	start := time.Now()

	resp, outcome, err := g.call(ctx, cfg, method, path, body, category)

	status, attempts := 0, 0
	if resp != nil {
		status, attempts = resp.StatusCode, resp.Attempts
	}
	g.tracer.EndCallSpan(span, status, attempts, err)
	g.metrics.RecordCall(category, outcome, attempts, time.Since(start).Seconds())
	g.logger.DebugContext(ctx, "api call",
		"call_id", callID,
		"connection", cfg.Name,
		"method", method,
		"path", path,
		"category", category,
		"status", status,
		"attempts", attempts,
		"outcome", outcome,
	)
	return resp, err
}

func (g *Gateway) call(ctx context.Context, cfg connection.Config, method, path string, body any, category string) (*transport.Response, string, error) {
	res, err := g.acquire(ctx, category)
	if err != nil {
		return nil, "error", err
	}
	if !res.Allowed {
		if g.config.OnLimit == OnLimitSkip {
			return &transport.Response{Skipped: true}, "skipped", nil
		}
		return nil, "rate_limited", res.Err()
	}

	payload, err := encode(body)
	if err != nil {
		return nil, "error", err
	}

	header := http.Header{}
	header.Set(APIKeyHeader, cfg.APIKey)
	req := transport.Request{
		Method: method,
		URL:    cfg.URL(path),
		Header: header,
		Body:   payload,
	}

	resp, err := g.transport.Send(ctx, req, g.config.Policy)
	if err != nil {
		return resp, "transport_error", err
	}
	if !resp.OK() {
		return resp, "api_error", &transport.APIError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp, "ok", nil
}

// acquire takes a slot, waiting once for the window to reset under
// OnLimitWait. A denied result is returned with a nil error.
func (g *Gateway) acquire(ctx context.Context, category string) (ratelimit.Result, error) {
	res, err := g.limiter.Acquire(ctx, category)
	if err != nil || res.Allowed {
		return res, err
	}
	g.metrics.RecordRateLimited(res.Category, string(g.config.OnLimit))
	g.logger.DebugContext(ctx, "rate limited",
		"category", res.Category,
		"retry_after", res.RetryAfterSeconds,
		"policy", g.config.OnLimit,
	)
	if g.config.OnLimit != OnLimitWait {
		return res, nil
	}

	if err := g.sleep(ctx, res.RetryAfter); err != nil {
		return res, err
	}
	return g.limiter.Acquire(ctx, category)
}

func encode(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("evolution: encode request body: %w", err)
		}
		return raw, nil
	}
}
