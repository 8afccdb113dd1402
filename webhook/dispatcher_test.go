package webhook

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/queue"
	"github.com/xraph/evolution/queue/memory"
	"github.com/xraph/evolution/signature"
)

const testSecret = "whsec_test"

var upsertBody = []byte(`{"event":"messages.upsert","instance":"inst","data":{"key":{"id":"MSG1"}}}`)

func signed(body []byte, now time.Time) Inbound {
	ts := now.Unix()
	return Inbound{
		Body:      body,
		Signature: signature.Sign(body, testSecret, ts),
		Timestamp: strconv.FormatInt(ts, 10),
	}
}

func newSyncDispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(Config{Mode: ModeSync}, opts...)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func mustRegister(t *testing.T, d *Dispatcher, types []string, h HandlerFunc, opts ...RegisterOption) Registration {
	t.Helper()
	reg, err := d.Register(types, h, opts...)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func TestProcess_PartialFailureIsolation(t *testing.T) {
	d := newSyncDispatcher(t)

	var calls []string
	mustRegister(t, d, []string{"MESSAGES_UPSERT"}, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	mustRegister(t, d, []string{"MESSAGES_UPSERT"}, func(_ context.Context, evt Event) error {
		calls = append(calls, "second")
		if evt.Instance != "inst" {
			t.Errorf("instance = %q", evt.Instance)
		}
		return nil
	})

	out := d.Process(context.Background(), Inbound{Body: upsertBody})
	if out.State != StateHandled {
		t.Fatalf("state = %s, err = %v", out.State, out.Err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("calls = %v", calls)
	}
	if len(out.Errors) != 1 {
		t.Fatalf("errors = %v", out.Errors)
	}

	var he *HandlerExecutionError
	if !errors.As(out.Errors[0], &he) {
		t.Fatalf("expected *HandlerExecutionError, got %T", out.Errors[0])
	}
	if he.Handler != "handler-1" || he.EventType != EventMessagesUpsert {
		t.Errorf("unexpected error fields: %+v", he)
	}
	if !errors.Is(out.Errors[0], ErrHandlerExecution) {
		t.Error("expected errors.Is ErrHandlerExecution")
	}
	if out.Err != nil {
		t.Errorf("handler errors must not fail the webhook: %v", out.Err)
	}
}

func TestProcess_PanicCaptured(t *testing.T) {
	d := newSyncDispatcher(t)
	ran := false
	mustRegister(t, d, []string{"*"}, func(context.Context, Event) error { panic("nil map") }, WithName("panicky"))
	mustRegister(t, d, []string{"*"}, func(context.Context, Event) error { ran = true; return nil })

	out := d.Process(context.Background(), Inbound{Body: upsertBody})
	if out.State != StateHandled || !ran {
		t.Fatalf("state = %s, ran = %v", out.State, ran)
	}
	if len(out.Errors) != 1 {
		t.Fatalf("errors = %v", out.Errors)
	}
	var he *HandlerExecutionError
	if !errors.As(out.Errors[0], &he) || he.Handler != "panicky" {
		t.Fatalf("unexpected error %v", out.Errors[0])
	}
}

func TestProcess_Routing(t *testing.T) {
	d := newSyncDispatcher(t)
	var got []string
	record := func(name string) HandlerFunc {
		return func(context.Context, Event) error {
			got = append(got, name)
			return nil
		}
	}
	mustRegister(t, d, []string{"CONNECTION_UPDATE"}, record("conn"))
	mustRegister(t, d, []string{"MESSAGES_*"}, record("prefix"))
	mustRegister(t, d, []string{"*"}, record("all"))
	mustRegister(t, d, []string{"messages.upsert"}, record("exact"))

	out := d.Process(context.Background(), Inbound{Body: upsertBody})
	want := []string{"prefix", "all", "exact"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if len(out.Handlers) != 3 || out.Handlers[0] != "handler-2" {
		t.Errorf("handlers = %v", out.Handlers)
	}
}

func TestProcess_NoHandlers(t *testing.T) {
	d := newSyncDispatcher(t)
	out := d.Process(context.Background(), Inbound{Body: upsertBody})
	if out.State != StateHandled || len(out.Handlers) != 0 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestProcess_InvalidPayload(t *testing.T) {
	d := newSyncDispatcher(t)
	called := false
	mustRegister(t, d, []string{"*"}, func(context.Context, Event) error { called = true; return nil })

	out := d.Process(context.Background(), Inbound{Body: []byte(`not json`)})
	if out.State != StateFailed || !errors.Is(out.Err, ErrInvalidPayload) {
		t.Fatalf("outcome = %+v", out)
	}
	if called {
		t.Error("handler ran for invalid payload")
	}
}

func TestProcess_Signature(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v := signature.NewVerifier(signature.Config{Secrets: []string{testSecret}}).
		WithClock(func() time.Time { return now })

	t.Run("valid", func(t *testing.T) {
		d := newSyncDispatcher(t, WithVerifier(v))
		var got Event
		mustRegister(t, d, []string{"*"}, func(_ context.Context, evt Event) error { got = evt; return nil })

		out := d.Process(context.Background(), signed(upsertBody, now))
		if out.State != StateHandled {
			t.Fatalf("state = %s, err = %v", out.State, out.Err)
		}
		if !got.SignatureValid {
			t.Error("expected SignatureValid")
		}
	})

	t.Run("tampered", func(t *testing.T) {
		d := newSyncDispatcher(t, WithVerifier(v))
		called := false
		mustRegister(t, d, []string{"*"}, func(context.Context, Event) error { called = true; return nil })

		in := signed(upsertBody, now)
		in.Body = append([]byte(nil), upsertBody...)
		in.Body[10] ^= 0x01

		out := d.Process(context.Background(), in)
		if out.State != StateFailed || !errors.Is(out.Err, ErrInvalidSignature) {
			t.Fatalf("outcome = %+v", out)
		}
		if !errors.Is(out.Err, signature.ErrSignatureMismatch) {
			t.Errorf("expected mismatch reason, got %v", out.Err)
		}
		if called {
			t.Error("handler ran for invalid signature")
		}
	})

	t.Run("stale", func(t *testing.T) {
		d := newSyncDispatcher(t, WithVerifier(v))
		out := d.Process(context.Background(), signed(upsertBody, now.Add(-10*time.Minute)))
		if !errors.Is(out.Err, signature.ErrTimestampOutOfTolerance) {
			t.Fatalf("expected stale timestamp, got %v", out.Err)
		}
	})

	t.Run("unsigned opt-in", func(t *testing.T) {
		d := newSyncDispatcher(t, WithVerifier(signature.NewVerifier(signature.Config{AllowUnsigned: true})))
		var got Event
		mustRegister(t, d, []string{"*"}, func(_ context.Context, evt Event) error { got = evt; return nil })

		out := d.Process(context.Background(), Inbound{Body: upsertBody})
		if out.State != StateHandled {
			t.Fatalf("state = %s, err = %v", out.State, out.Err)
		}
		if got.SignatureValid {
			t.Error("unsigned events must not be marked valid")
		}
	})
}

func TestRegister(t *testing.T) {
	d := newSyncDispatcher(t)
	noop := HandlerFunc(func(context.Context, Event) error { return nil })

	if _, err := d.Register(nil, noop); !errors.Is(err, ErrInvalidRegistration) {
		t.Errorf("expected ErrInvalidRegistration, got %v", err)
	}
	if _, err := d.Register([]string{"*"}, nil); !errors.Is(err, ErrInvalidRegistration) {
		t.Errorf("expected ErrInvalidRegistration, got %v", err)
	}

	reg := mustRegister(t, d, []string{"*"}, noop, WithName("audit"))
	if reg.Name != "audit" {
		t.Errorf("name = %q", reg.Name)
	}
	if _, err := d.Register([]string{"CALL"}, noop, WithName("audit")); !errors.Is(err, ErrDuplicateHandler) {
		t.Errorf("expected ErrDuplicateHandler, got %v", err)
	}
	if got := len(d.Registrations()); got != 1 {
		t.Errorf("registrations = %d", got)
	}
}

func TestRegister_GeneratedNamesSkipTaken(t *testing.T) {
	d := newSyncDispatcher(t)
	noop := HandlerFunc(func(context.Context, Event) error { return nil })

	mustRegister(t, d, []string{"*"}, noop, WithName("handler-2"))
	reg := mustRegister(t, d, []string{"*"}, noop)
	if reg.Name != "handler-3" {
		t.Errorf("name = %q, want handler-3", reg.Name)
	}
	reg = mustRegister(t, d, []string{"*"}, noop)
	if reg.Name != "handler-4" {
		t.Errorf("name = %q, want handler-4", reg.Name)
	}
	if _, err := d.Register([]string{"*"}, noop, WithName("handler-3")); !errors.Is(err, ErrDuplicateHandler) {
		t.Errorf("expected ErrDuplicateHandler, got %v", err)
	}
}

func TestNewDispatcher_Validation(t *testing.T) {
	if _, err := NewDispatcher(Config{Mode: ModeQueued}); err == nil {
		t.Error("expected error for queued mode without a queue")
	}
	if _, err := NewDispatcher(Config{Mode: "bogus"}); err == nil {
		t.Error("expected error for unknown mode")
	}
	d, err := NewDispatcher(Config{})
	if err != nil || d.Mode() != ModeSync {
		t.Errorf("default mode = %v, err = %v", d, err)
	}
}

func TestQueued_EnqueueAndRun(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	d, err := NewDispatcher(Config{Mode: ModeQueued, MaxAttempts: 2}, WithQueue(store))
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu  sync.Mutex
		got []string
	)
	for _, name := range []string{"a", "b"} {
		mustRegister(t, d, []string{"MESSAGES_UPSERT"}, func(_ context.Context, evt Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+string(evt.Data))
			return nil
		}, WithName(name))
	}

	out := d.Process(ctx, Inbound{Body: upsertBody})
	if out.State != StateQueued || len(out.Tasks) != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	for _, taskID := range out.Tasks {
		task, err := store.Get(ctx, taskID)
		if err != nil {
			t.Fatal(err)
		}
		if task.Kind != KindWebhook || task.MaxAttempts != 2 {
			t.Errorf("task = %+v", task)
		}
	}

	mux := queue.NewMux()
	mux.Handle(KindWebhook, d)
	w := queue.NewWorker(store, mux, queue.WorkerConfig{}, nil)
	if n, err := w.RunOnce(ctx); err != nil || n != 2 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	for _, g := range got {
		if g != "a:"+`{"key":{"id":"MSG1"}}` && g != "b:"+`{"key":{"id":"MSG1"}}` {
			t.Errorf("unexpected delivery %q", g)
		}
	}
}

type failingQueue struct{ calls int }

func (q *failingQueue) Enqueue(context.Context, *queue.Task) error {
	q.calls++
	if q.calls > 1 {
		return errors.New("redis down")
	}
	return nil
}

func TestQueued_EnqueueFailure(t *testing.T) {
	q := &failingQueue{}
	d, err := NewDispatcher(Config{Mode: ModeQueued}, WithQueue(q))
	if err != nil {
		t.Fatal(err)
	}
	noop := HandlerFunc(func(context.Context, Event) error { return nil })
	mustRegister(t, d, []string{"*"}, noop)
	mustRegister(t, d, []string{"*"}, noop)

	out := d.Process(context.Background(), Inbound{Body: upsertBody})
	if out.State != StateFailed || !errors.Is(out.Err, ErrEnqueueFailed) {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.Tasks) != 1 {
		t.Errorf("tasks enqueued before the failure = %d", len(out.Tasks))
	}
}

func TestRun_PermanentFailures(t *testing.T) {
	d := newSyncDispatcher(t)
	ctx := context.Background()

	task, err := queue.NewTask(KindWebhook, "missing", Event{ID: id.NewEventID(), Type: EventCall}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(ctx, task); !errors.Is(err, queue.ErrPermanent) || !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("expected permanent handler-not-found, got %v", err)
	}

	task.Payload = []byte(`"not an event"`)
	if err := d.Run(ctx, task); !errors.Is(err, queue.ErrPermanent) {
		t.Errorf("expected permanent decode failure, got %v", err)
	}
}

func TestRun_HandlerErrorIsRetryable(t *testing.T) {
	d := newSyncDispatcher(t)
	mustRegister(t, d, []string{"*"}, func(context.Context, Event) error { return errors.New("later") }, WithName("flaky"))

	task, err := queue.NewTask(KindWebhook, "flaky", Event{ID: id.NewEventID(), Type: EventCall}, 3)
	if err != nil {
		t.Fatal(err)
	}
	err = d.Run(context.Background(), task)
	if err == nil || errors.Is(err, queue.ErrPermanent) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if !errors.Is(err, ErrHandlerExecution) {
		t.Errorf("expected handler execution error, got %v", err)
	}
}

func TestRecorder(t *testing.T) {
	rec := NewMemoryRecorder(2)
	d := newSyncDispatcher(t, WithRecorder(rec))

	for i := 0; i < 3; i++ {
		d.Process(context.Background(), Inbound{Body: upsertBody})
	}
	d.Process(context.Background(), Inbound{Body: []byte(`{}`)})

	outs := rec.Outcomes()
	if len(outs) != 2 || rec.Total() != 4 {
		t.Fatalf("outcomes = %d, total = %d", len(outs), rec.Total())
	}
	if outs[0].State != StateHandled || outs[1].State != StateFailed {
		t.Errorf("states = %s, %s", outs[0].State, outs[1].State)
	}
}
