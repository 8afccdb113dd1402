package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/observability"
	"github.com/xraph/evolution/queue"
	"github.com/xraph/evolution/schema"
	"github.com/xraph/evolution/signature"
)

// KindWebhook is the queue task kind for queued handler invocations. The
// task key is the handler name and the payload is the Event.
const KindWebhook = "webhook"

// Mode selects how matched handlers run.
type Mode string

const (
	// ModeSync runs handlers inline, in registration order.
	ModeSync Mode = "sync"

	// ModeQueued enqueues one task per matched handler.
	ModeQueued Mode = "queued"
)

// State is the lifecycle state of one inbound webhook.
type State string

const (
	StateReceived State = "received"
	StateVerified State = "verified"
	StateRouted   State = "routed"
	StateHandled  State = "handled"
	StateQueued   State = "queued"
	StateFailed   State = "failed"
)

// Config configures a Dispatcher.
type Config struct {
	Mode Mode

	// MaxAttempts bounds each queued task. Zero uses queue.DefaultMaxAttempts.
	MaxAttempts int
}

// Inbound is a raw webhook request.
type Inbound struct {
	Body      []byte
	Instance  string
	Signature string
	Timestamp string
}

// Outcome is the result of processing one webhook.
type Outcome struct {
	State    State
	Event    Event
	Handlers []string
	Errors   []error
	Tasks    []id.ID
	Err      error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithVerifier enables signature verification.
func WithVerifier(v *signature.Verifier) Option {
	return func(d *Dispatcher) { d.verifier = v }
}

// WithQueue sets the queue used in ModeQueued.
func WithQueue(q queue.Queue) Option {
	return func(d *Dispatcher) { d.queue = q }
}

// WithRecorder sets a recorder for outcomes.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithValidator shares a schema validator.
func WithValidator(v *schema.Validator) Option {
	return func(d *Dispatcher) { d.validator = v }
}

// Dispatcher verifies, parses and routes inbound webhooks.
type Dispatcher struct {
	config    Config
	verifier  *signature.Verifier
	queue     queue.Queue
	recorder  Recorder
	validator *schema.Validator
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.RWMutex
	regs []Registration
}

// NewDispatcher creates a dispatcher. ModeQueued requires WithQueue.
func NewDispatcher(cfg Config, opts ...Option) (*Dispatcher, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeSync
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = queue.DefaultMaxAttempts
	}
	d := &Dispatcher{
		config: cfg,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.validator == nil {
		d.validator = schema.NewValidator()
	}

	switch cfg.Mode {
	case ModeSync:
	case ModeQueued:
		if d.queue == nil {
			return nil, errors.New("evolution: queued webhook mode requires a queue")
		}
	default:
		return nil, fmt.Errorf("evolution: unknown webhook mode %q", cfg.Mode)
	}
	return d, nil
}

// Mode returns the dispatch mode.
func (d *Dispatcher) Mode() Mode { return d.config.Mode }

// Register adds a handler for the given event type patterns. Unnamed
// registrations are named "handler-N", where N is the first number from the
// registration count up that no other handler uses.
func (d *Dispatcher) Register(eventTypes []string, h Handler, opts ...RegisterOption) (Registration, error) {
	if h == nil || len(eventTypes) == 0 {
		return Registration{}, ErrInvalidRegistration
	}
	reg := Registration{
		EventTypes: append([]string(nil), eventTypes...),
		Handler:    h,
	}
	for _, opt := range opts {
		opt(&reg)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if reg.Name == "" {
		for n := len(d.regs) + 1; ; n++ {
			name := "handler-" + strconv.Itoa(n)
			if !d.named(name) {
				reg.Name = name
				break
			}
		}
	}
	if d.named(reg.Name) {
		return Registration{}, fmt.Errorf("%w: %q", ErrDuplicateHandler, reg.Name)
	}
	d.regs = append(d.regs, reg)
	return reg, nil
}

// named reports whether a handler called name is registered. d.mu must be
// held.
func (d *Dispatcher) named(name string) bool {
	for _, existing := range d.regs {
		if existing.Name == name {
			return true
		}
	}
	return false
}

// Registrations returns a snapshot of the registered handlers.
func (d *Dispatcher) Registrations() []Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Registration(nil), d.regs...)
}

// Process runs one inbound webhook through verification, parsing and
// routing. Handler failures are reported in Outcome.Errors and never change
// a handled state.
func (d *Dispatcher) Process(ctx context.Context, in Inbound) Outcome {
	ctx, span := d.tracer.StartWebhookSpan(ctx, in.Instance)
	out := d.process(ctx, in)
	d.tracer.EndWebhookSpan(span, out.Event.ID.String(), string(out.Event.Type), string(out.State), len(out.Errors), out.Err)

	d.metrics.RecordWebhook(string(out.State), eventLabel(out.Event))
	for _, err := range out.Errors {
		var he *HandlerExecutionError
		if errors.As(err, &he) {
			d.metrics.RecordHandlerError(string(he.EventType), he.Handler)
		}
	}
	if d.recorder != nil {
		d.recorder.Record(ctx, out)
	}

	if out.State == StateFailed {
		d.logger.WarnContext(ctx, "webhook failed",
			"instance", in.Instance, "event", out.Event.RawType, "error", out.Err)
	} else {
		d.logger.DebugContext(ctx, "webhook processed",
			"event_id", out.Event.ID,
			"event", out.Event.Type,
			"instance", out.Event.Instance,
			"state", out.State,
			"handlers", len(out.Handlers),
			"handler_errors", len(out.Errors),
		)
	}
	return out
}

func (d *Dispatcher) process(ctx context.Context, in Inbound) Outcome {
	out := Outcome{State: StateReceived}

	// 1. Verify.
	signed := false
	if d.verifier != nil {
		if err := d.verifier.Check(in.Body, in.Signature, in.Timestamp); err != nil {
			out.State = StateFailed
			out.Err = fmt.Errorf("%w: %w", ErrInvalidSignature, err)
			return out
		}
		signed = !d.verifier.Unsigned()
	}
	out.State = StateVerified

	// 2. Parse.
	evt, err := ParseEvent(d.validator, in.Body, in.Instance, d.now())
	if err != nil {
		out.State = StateFailed
		out.Err = err
		return out
	}
	evt.SignatureValid = signed
	out.Event = evt

	// 3. Route.
	regs := d.route(evt)
	out.State = StateRouted
	for _, reg := range regs {
		out.Handlers = append(out.Handlers, reg.Name)
	}

	// 4. Handle or enqueue.
	if d.config.Mode == ModeQueued && len(regs) > 0 {
		for _, reg := range regs {
			task, err := queue.NewTask(KindWebhook, reg.Name, evt, d.config.MaxAttempts)
			if err == nil {
				err = d.queue.Enqueue(ctx, task)
			}
			if err != nil {
				out.State = StateFailed
				out.Err = fmt.Errorf("%w: handler %q: %w", ErrEnqueueFailed, reg.Name, err)
				return out
			}
			out.Tasks = append(out.Tasks, task.ID)
		}
		out.State = StateQueued
		return out
	}

	for _, reg := range regs {
		if err := d.invoke(ctx, reg, evt); err != nil {
			out.Errors = append(out.Errors, err)
		}
	}
	out.State = StateHandled
	return out
}

// route returns the registrations matching evt, in registration order.
func (d *Dispatcher) route(evt Event) []Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matched []Registration
	for _, reg := range d.regs {
		if matches(reg.EventTypes, evt) {
			matched = append(matched, reg)
		}
	}
	return matched
}

// Deliver runs the named handler for evt. Queue workers use it to execute
// queued tasks.
func (d *Dispatcher) Deliver(ctx context.Context, handlerName string, evt Event) error {
	reg, ok := d.lookup(handlerName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrHandlerNotFound, handlerName)
	}
	if err := d.invoke(ctx, reg, evt); err != nil {
		d.metrics.RecordHandlerError(string(evt.Type), reg.Name)
		return err
	}
	return nil
}

// Run implements queue.Runner for KindWebhook tasks.
func (d *Dispatcher) Run(ctx context.Context, t *queue.Task) error {
	var evt Event
	if err := t.Decode(&evt); err != nil {
		return queue.Permanent(err)
	}
	err := d.Deliver(ctx, t.Key, evt)
	if errors.Is(err, ErrHandlerNotFound) {
		return queue.Permanent(err)
	}
	return err
}

func (d *Dispatcher) lookup(name string) (Registration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, reg := range d.regs {
		if reg.Name == name {
			return reg, true
		}
	}
	return Registration{}, false
}

// invoke calls one handler, converting errors and panics into a
// *HandlerExecutionError.
func (d *Dispatcher) invoke(ctx context.Context, reg Registration, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerExecutionError{
				EventType: evt.Type,
				Handler:   reg.Name,
				Cause:     fmt.Errorf("panic: %v", r),
			}
		}
		if err != nil {
			d.logger.WarnContext(ctx, "webhook handler failed",
				"handler", reg.Name, "event", evt.Type, "event_id", evt.ID, "error", err)
		}
	}()

	if herr := reg.Handler.Handle(ctx, evt); herr != nil {
		return &HandlerExecutionError{EventType: evt.Type, Handler: reg.Name, Cause: herr}
	}
	return nil
}

func eventLabel(evt Event) string {
	if evt.Type == "" {
		return "none"
	}
	return string(evt.Type)
}
