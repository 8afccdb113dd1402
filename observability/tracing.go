package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/evolution"

// Tracer provides OpenTelemetry tracing. A nil *Tracer starts no spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return NewTracerWithProvider(otel.GetTracerProvider())
}

// NewTracerWithProvider creates a tracer from the given provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartCallSpan starts a span for an outbound gateway call.
func (t *Tracer) StartCallSpan(ctx context.Context, callID, connection, method, path, category string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "evolution.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("evolution.call_id", callID),
			attribute.String("evolution.connection", connection),
			attribute.String("http.request.method", method),
			attribute.String("evolution.path", path),
			attribute.String("evolution.category", category),
		),
	)
}

// EndCallSpan ends a call span with result attributes.
func (t *Tracer) EndCallSpan(span trace.Span, statusCode, attempts int, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", statusCode),
		attribute.Int("evolution.attempts", attempts),
	)
	end(span, err)
}

// StartWebhookSpan starts a span for dispatching an inbound webhook.
func (t *Tracer) StartWebhookSpan(ctx context.Context, instance string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "evolution.webhook",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("evolution.instance", instance)),
	)
}

// EndWebhookSpan ends a webhook span with its outcome.
func (t *Tracer) EndWebhookSpan(span trace.Span, eventID, eventType, state string, handlerErrors int, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.String("evolution.event_id", eventID),
		attribute.String("evolution.event_type", eventType),
		attribute.String("evolution.state", state),
		attribute.Int("evolution.handler_errors", handlerErrors),
	)
	end(span, err)
}

// StartTaskSpan starts a span for running one queued task.
func (t *Tracer) StartTaskSpan(ctx context.Context, taskID, handler, eventType string, attempt int) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "evolution.task",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("evolution.task_id", taskID),
			attribute.String("evolution.handler", handler),
			attribute.String("evolution.event_type", eventType),
			attribute.Int("evolution.attempt", attempt),
		),
	)
}

// EndTaskSpan ends a task span.
func (t *Tracer) EndTaskSpan(span trace.Span, err error) {
	if t == nil {
		return
	}
	end(span, err)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
