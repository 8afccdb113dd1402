// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for outbound calls, webhook dispatch and queued tasks.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments. A nil *Metrics records nothing.
type Metrics struct {
	CallsTotal         *prometheus.CounterVec
	CallDuration       *prometheus.HistogramVec
	CallRetriesTotal   *prometheus.CounterVec
	RateLimitedTotal   *prometheus.CounterVec
	WebhooksTotal      *prometheus.CounterVec
	HandlerErrorsTotal *prometheus.CounterVec
	TasksTotal         *prometheus.CounterVec
	TaskDuration       prometheus.Histogram
	PendingTasks       prometheus.Gauge
}

// NewMetrics creates the instruments and registers them on reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolution_api_calls_total",
				Help: "Outbound Evolution API calls by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		CallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evolution_api_call_duration_seconds",
				Help:    "Outbound call latency including retries",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"category"},
		),
		CallRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolution_api_call_retries_total",
				Help: "Attempts beyond the first made for outbound calls",
			},
			[]string{"category"},
		),
		RateLimitedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolution_rate_limited_total",
				Help: "Outbound calls denied by the rate limiter, by on-limit policy",
			},
			[]string{"category", "policy"},
		),
		WebhooksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolution_webhooks_total",
				Help: "Inbound webhooks by terminal state and event type",
			},
			[]string{"state", "event"},
		),
		HandlerErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolution_webhook_handler_errors_total",
				Help: "Webhook handler failures by event type and handler",
			},
			[]string{"event", "handler"},
		),
		TasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolution_queue_tasks_total",
				Help: "Queued handler task attempts by outcome",
			},
			[]string{"outcome"},
		),
		TaskDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evolution_queue_task_duration_seconds",
				Help:    "Queued handler task run time",
				Buckets: prometheus.DefBuckets,
			},
		),
		PendingTasks: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "evolution_queue_pending_tasks",
				Help: "Tasks waiting in the delivery queue",
			},
		),
	}
}

// RecordCall records one outbound call.
func (m *Metrics) RecordCall(category, outcome string, attempts int, seconds float64) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(category, outcome).Inc()
	m.CallDuration.WithLabelValues(category).Observe(seconds)
	if attempts > 1 {
		m.CallRetriesTotal.WithLabelValues(category).Add(float64(attempts - 1))
	}
}

// RecordRateLimited records a rate limiter denial.
func (m *Metrics) RecordRateLimited(category, policy string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(category, policy).Inc()
}

// RecordWebhook records the terminal state of an inbound webhook.
func (m *Metrics) RecordWebhook(state, event string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(state, event).Inc()
}

// RecordHandlerError records a failed handler invocation.
func (m *Metrics) RecordHandlerError(event, handler string) {
	if m == nil {
		return
	}
	m.HandlerErrorsTotal.WithLabelValues(event, handler).Inc()
}

// RecordTask records one task attempt.
func (m *Metrics) RecordTask(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(outcome).Inc()
	m.TaskDuration.Observe(seconds)
}

// SetPending sets the pending task gauge.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingTasks.Set(float64(n))
}
