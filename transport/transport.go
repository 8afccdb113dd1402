// Package transport sends HTTP requests with bounded retries and backoff.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultMaxResponseBody = 10 << 20 // 10MB

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Request is one outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the outcome of an outbound call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Duration covers every attempt, including waits between them.
	Duration time.Duration

	// Attempts is the number of requests made, including the first.
	Attempts int

	// Skipped is set when the call was dropped by the rate limiter.
	Skipped bool
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("evolution: decode response: %w", err)
	}
	return nil
}

// Transport sends requests with retries.
type Transport struct {
	doer    Doer
	sleep   SleepFunc
	logger  *slog.Logger
	maxBody int64
}

// Option configures a Transport.
type Option func(*Transport)

// WithDoer sets the HTTP client.
func WithDoer(d Doer) Option {
	return func(t *Transport) { t.doer = d }
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(t *Transport) { t.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithMaxResponseBody caps how many response bytes are read.
func WithMaxResponseBody(n int64) Option {
	return func(t *Transport) { t.maxBody = n }
}

// New creates a Transport backed by a plain http.Client. Per-attempt
// deadlines come from Policy.AttemptTimeout.
func New(opts ...Option) *Transport {
	t := &Transport{
		doer:    &http.Client{},
		sleep:   Sleep,
		logger:  slog.Default(),
		maxBody: defaultMaxResponseBody,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Send performs req under policy p. A response whose status is outside the
// retryable set is returned as is, with a nil error. Once attempts are
// exhausted Send returns a *TransportError; when the last failure was a
// retryable status its Cause is an *APIError and the last response is
// returned alongside.
func (t *Transport) Send(ctx context.Context, req Request, p Policy) (*Response, error) {
	start := time.Now()
	for attempt := 1; ; attempt++ {
		resp, err := t.attempt(ctx, req, p)

		switch Decide(p, resp, err, attempt) {
		case Done:
			resp.Attempts = attempt
			resp.Duration = time.Since(start)
			return resp, nil

		case GiveUp:
			t.logger.WarnContext(ctx, "outbound call failed",
				"method", req.Method,
				"url", req.URL,
				"attempts", attempt,
				"error", failure(resp, err),
			)
			if resp != nil {
				resp.Attempts = attempt
				resp.Duration = time.Since(start)
				return resp, &TransportError{Attempts: attempt, Cause: failure(resp, err)}
			}
			return nil, &TransportError{Attempts: attempt, Cause: err}

		case Retry:
			// The caller gave up; waiting would be pointless.
			if ctx.Err() != nil {
				return nil, &TransportError{Attempts: attempt, Cause: ctx.Err()}
			}
			delay := Delay(attempt, p)
			t.logger.DebugContext(ctx, "retrying outbound call",
				"method", req.Method,
				"url", req.URL,
				"attempt", attempt,
				"delay", delay,
				"error", failure(resp, err),
			)
			if sleepErr := t.sleep(ctx, delay); sleepErr != nil {
				return nil, &TransportError{Attempts: attempt, Cause: sleepErr}
			}
		}
	}
}

// attempt makes a single request. The response body is fully read before the
// per-attempt deadline is released.
func (t *Transport) attempt(ctx context.Context, req Request, p Policy) (*Response, error) {
	if p.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	httpResp, err := t.doer.Do(httpReq) //nolint:gosec // G704: URL comes from a configured connection.
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, t.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}, nil
}

// failure describes why an attempt failed.
func failure(resp *Response, err error) error {
	if err != nil {
		return err
	}
	return &APIError{StatusCode: resp.StatusCode, Body: resp.Body}
}
