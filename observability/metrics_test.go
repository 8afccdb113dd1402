package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestRecordCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordCall("messages", "success", 1, 0.2)
	m.RecordCall("messages", "transport_error", 3, 4.1)
	m.RecordCall("media", "success", 2, 0.9)

	families := gather(t, reg)

	calls, ok := families["evolution_api_calls_total"]
	if !ok {
		t.Fatal("evolution_api_calls_total not found")
	}
	if len(calls.GetMetric()) != 3 {
		t.Fatalf("expected 3 label combinations, got %d", len(calls.GetMetric()))
	}

	retries, ok := families["evolution_api_call_retries_total"]
	if !ok {
		t.Fatal("evolution_api_call_retries_total not found")
	}
	var total float64
	for _, metric := range retries.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	if total != 3 {
		t.Fatalf("expected 3 retries, got %f", total)
	}
}

func TestRecordWebhookAndTasks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordWebhook("handled", "MESSAGES_UPSERT")
	m.RecordWebhook("handled", "MESSAGES_UPSERT")
	m.RecordHandlerError("MESSAGES_UPSERT", "audit")
	m.RecordTask("done", 0.01)
	m.SetPending(7)

	families := gather(t, reg)

	webhooks := families["evolution_webhooks_total"]
	if webhooks == nil || webhooks.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("unexpected webhooks metric: %v", webhooks)
	}
	pending := families["evolution_queue_pending_tasks"]
	if pending == nil || pending.GetMetric()[0].GetGauge().GetValue() != 7 {
		t.Fatalf("unexpected pending gauge: %v", pending)
	}
	if families["evolution_webhook_handler_errors_total"] == nil {
		t.Fatal("handler errors not recorded")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordCall("x", "success", 2, 1)
	m.RecordRateLimited("x", "throw")
	m.RecordWebhook("failed", "UNKNOWN")
	m.RecordHandlerError("x", "y")
	m.RecordTask("dead", 1)
	m.SetPending(1)
}
