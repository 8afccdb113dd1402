package evolution_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/xraph/evolution"
	"github.com/xraph/evolution/message"
	"github.com/xraph/evolution/queue"
	"github.com/xraph/evolution/signature"
	"github.com/xraph/evolution/webhook"
)

const (
	apiKey = "test-key"
	secret = "whsec_test"
)

func ctx() context.Context { return context.Background() }

func noSleep(context.Context, time.Duration) error { return nil }

type call struct {
	method string
	path   string
	apiKey string
	body   map[string]any
}

type server struct {
	*httptest.Server
	mu    sync.Mutex
	calls []call
}

func newServer(t *testing.T, status int, response string) *server {
	t.Helper()
	s := &server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		s.mu.Lock()
		s.calls = append(s.calls, call{method: r.Method, path: r.URL.Path, apiKey: r.Header.Get("apikey"), body: body})
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *server) recorded() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func setup(t *testing.T, opts ...evolution.Option) *evolution.Client {
	t.Helper()
	base := []evolution.Option{
		evolution.WithSleep(noSleep),
		evolution.WithWebhookSecrets(secret),
	}
	c, err := evolution.New(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSendTextHappyPath(t *testing.T) {
	srv := newServer(t, http.StatusCreated, `{"key":{"id":"MSG1"}}`)
	c := setup(t, evolution.WithServer(srv.URL, apiKey))

	resp, err := c.SendText(ctx(), "", "inst", "5511999999999", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated || resp.Attempts != 1 {
		t.Fatalf("got status %d after %d attempts", resp.StatusCode, resp.Attempts)
	}

	calls := srv.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	got := calls[0]
	if got.method != http.MethodPost || got.path != "/message/sendText/inst" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if got.apiKey != apiKey {
		t.Fatalf("expected apikey %q, got %q", apiKey, got.apiKey)
	}
	if got.body["number"] != "5511999999999" || got.body["text"] != "hello" {
		t.Fatalf("unexpected body %v", got.body)
	}

	b, ok, err := c.Limiter().Bucket(ctx(), message.CategoryMessages)
	if err != nil || !ok {
		t.Fatalf("expected messages bucket, ok=%v err=%v", ok, err)
	}
	if b.Count != 1 {
		t.Fatalf("expected count 1, got %d", b.Count)
	}
}

func TestSendMessageInvalidBody(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{}`)
	c := setup(t, evolution.WithServer(srv.URL, apiKey))

	_, err := c.SendMessage(ctx(), "", "inst", message.Text, map[string]any{"number": "1"})
	if !errors.Is(err, evolution.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	_, err = c.SendMessage(ctx(), "", "inst", message.Type(99), map[string]any{})
	if !errors.Is(err, evolution.ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
	_, err = c.SendText(ctx(), "", "", "1", "x")
	if !errors.Is(err, evolution.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for missing instance, got %v", err)
	}
	if n := len(srv.recorded()); n != 0 {
		t.Fatalf("expected no calls, got %d", n)
	}
}

func TestNamedConnections(t *testing.T) {
	a := newServer(t, http.StatusOK, `{}`)
	b := newServer(t, http.StatusOK, `{}`)
	c := setup(t,
		evolution.WithConnection("a", a.URL, "key-a"),
		evolution.WithConnection("b", b.URL+"/", "key-b"),
		evolution.WithActiveConnection("a"),
	)

	if _, err := c.SendText(ctx(), "", "inst", "1", "to a"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SendText(ctx(), "b", "inst", "1", "to b"); err != nil {
		t.Fatal(err)
	}
	if got := a.recorded(); len(got) != 1 || got[0].apiKey != "key-a" {
		t.Fatalf("unexpected calls on a: %+v", got)
	}
	if got := b.recorded(); len(got) != 1 || got[0].apiKey != "key-b" || got[0].path != "/message/sendText/inst" {
		t.Fatalf("unexpected calls on b: %+v", got)
	}

	_, err := c.SendText(ctx(), "missing", "inst", "1", "x")
	var nf *evolution.ConnectionNotFoundError
	if !errors.As(err, &nf) || nf.Name != "missing" {
		t.Fatalf("expected ConnectionNotFoundError, got %v", err)
	}
}

func TestNewRejectsUnknownActiveConnection(t *testing.T) {
	_, err := evolution.New(evolution.WithActiveConnection("nope"))
	if !errors.Is(err, evolution.ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
	_, err = evolution.New(evolution.WithConnection("", "http://x", "k"))
	if !errors.Is(err, evolution.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestAPIErrorSurfaces(t *testing.T) {
	srv := newServer(t, http.StatusUnauthorized, `{"error":"bad key"}`)
	c := setup(t, evolution.WithServer(srv.URL, apiKey))

	_, err := c.SendText(ctx(), "", "inst", "1", "x")
	var apiErr *evolution.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected APIError 401, got %v", err)
	}
	if n := len(srv.recorded()); n != 1 {
		t.Fatalf("expected 1 call, got %d", n)
	}
}

func TestQueueMessage(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{}`)
	c := setup(t, evolution.WithServer(srv.URL, apiKey))

	taskID, err := c.QueueMessage(ctx(), "", "inst", message.Text, message.TextMessage{Number: "1", Text: "later"})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(srv.recorded()); n != 0 {
		t.Fatalf("expected no call before the worker runs, got %d", n)
	}

	n, err := c.Worker().RunOnce(ctx())
	if err != nil || n != 1 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	calls := srv.recorded()
	if len(calls) != 1 || calls[0].body["text"] != "later" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	task, err := c.Store().Get(ctx(), taskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.State != queue.StateDone {
		t.Fatalf("expected done, got %s", task.State)
	}
}

func TestHandlerHidesQueuedPayloads(t *testing.T) {
	c, err := evolution.New(
		evolution.WithServer("http://evolution.invalid", apiKey),
		evolution.WithAllowUnsigned(true),
		evolution.WithAdminToken("admin"),
	)
	if err != nil {
		t.Fatal(err)
	}
	taskID, err := c.QueueMessage(ctx(), "", "inst", message.Text, message.TextMessage{Number: "1", Text: "secret text"})
	if err != nil {
		t.Fatal(err)
	}
	path := "/tasks/" + taskID.String()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("webhook handler: expected 404, got %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("secret text")) {
		t.Fatal("webhook handler leaked the task payload")
	}

	rec = httptest.NewRecorder()
	c.AdminHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("admin handler without token: expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer admin")
	rec = httptest.NewRecorder()
	c.AdminHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin handler: expected 200, got %d", rec.Code)
	}
}

func TestQueueMessageClientErrorIsDead(t *testing.T) {
	srv := newServer(t, http.StatusBadRequest, `{"error":"bad number"}`)
	c := setup(t, evolution.WithServer(srv.URL, apiKey))

	taskID, err := c.QueueMessage(ctx(), "", "inst", message.Text, message.TextMessage{Number: "1", Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Worker().RunOnce(ctx()); err != nil {
		t.Fatal(err)
	}
	task, err := c.Store().Get(ctx(), taskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.State != queue.StateDead || task.Attempts != 1 {
		t.Fatalf("expected dead after 1 attempt, got %s after %d", task.State, task.Attempts)
	}
}

func TestQueueMessageServerErrorRetries(t *testing.T) {
	srv := newServer(t, http.StatusServiceUnavailable, `{}`)
	c := setup(t, evolution.WithServer(srv.URL, apiKey))

	taskID, err := c.QueueMessage(ctx(), "", "inst", message.Text, message.TextMessage{Number: "1", Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Worker().RunOnce(ctx()); err != nil {
		t.Fatal(err)
	}
	task, err := c.Store().Get(ctx(), taskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.State != queue.StatePending || task.Attempts != 1 {
		t.Fatalf("expected pending after 1 attempt, got %s after %d", task.State, task.Attempts)
	}
}

func TestQueueMessageValidates(t *testing.T) {
	c := setup(t, evolution.WithServer("http://localhost", apiKey))
	_, err := c.QueueMessage(ctx(), "", "inst", message.Text, map[string]any{"text": "no number"})
	if !errors.Is(err, evolution.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestConnectionState(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"instance":{"instanceName":"inst","state":"open"}}`)
	c := setup(t, evolution.WithServer(srv.URL, apiKey))

	st, err := c.ConnectionState(ctx(), "", "inst")
	if err != nil {
		t.Fatal(err)
	}
	if st.Instance != "inst" || st.State != "open" {
		t.Fatalf("unexpected state %+v", st)
	}
	if got := srv.recorded()[0]; got.method != http.MethodGet || got.path != "/instance/connectionState/inst" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
}

func TestFetchInstances(t *testing.T) {
	srv := newServer(t, http.StatusOK, `[{"name":"a","connectionStatus":"open"},{"name":"b","connectionStatus":"close"}]`)
	c := setup(t, evolution.WithServer(srv.URL, apiKey))

	list, err := c.FetchInstances(ctx(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[1].ConnectionStatus != "close" {
		t.Fatalf("unexpected instances %+v", list)
	}
}

func TestSetWebhookDefaultEvents(t *testing.T) {
	srv := newServer(t, http.StatusCreated, `{}`)
	c := setup(t, evolution.WithServer(srv.URL, apiKey))

	if err := c.SetWebhook(ctx(), "", "inst", evolution.WebhookSettings{URL: "https://hooks.test/webhook/inst"}); err != nil {
		t.Fatal(err)
	}
	got := srv.recorded()[0]
	if got.path != "/webhook/set/inst" {
		t.Fatalf("unexpected path %s", got.path)
	}
	hook, ok := got.body["webhook"].(map[string]any)
	if !ok {
		t.Fatalf("missing webhook object in %v", got.body)
	}
	if hook["enabled"] != true || hook["url"] != "https://hooks.test/webhook/inst" {
		t.Fatalf("unexpected webhook %v", hook)
	}
	events, _ := hook["events"].([]any)
	if len(events) != len(evolution.DefaultWebhookEvents()) {
		t.Fatalf("expected default events, got %v", events)
	}

	if err := c.SetWebhook(ctx(), "", "inst", evolution.WebhookSettings{}); !errors.Is(err, evolution.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func postWebhook(t *testing.T, h http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	ts := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", signature.Sign(body, secret, ts))
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(ts, 10))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookSync(t *testing.T) {
	c := setup(t)

	var mu sync.Mutex
	var got []webhook.Event
	if _, err := c.HandleFunc([]string{"MESSAGES_UPSERT"}, func(_ context.Context, evt webhook.Event) error {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	body := []byte(`{"event":"messages.upsert","instance":"body-inst","data":{"key":{"id":"M1"}}}`)
	rec := postWebhook(t, c.Handler(), "/webhook/path-inst", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Instance != "path-inst" || got[0].Type != webhook.EventMessagesUpsert || !got[0].SignatureValid {
		t.Fatalf("unexpected event %+v", got[0])
	}
}

func TestWebhookBadSignature(t *testing.T) {
	c := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{"event":"CALL"}`)))
	req.Header.Set("X-Webhook-Signature", "v1=deadbeef")
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookQueued(t *testing.T) {
	c := setup(t, evolution.WithWebhookMode(webhook.ModeQueued))

	calls := 0
	if _, err := c.HandleFunc([]string{"*"}, func(context.Context, webhook.Event) error {
		calls++
		return nil
	}, webhook.WithName("counter")); err != nil {
		t.Fatal(err)
	}

	rec := postWebhook(t, c.Handler(), "/webhook/inst", []byte(`{"event":"CONNECTION_UPDATE","data":{"state":"open"}}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if calls != 0 {
		t.Fatalf("handler ran before the worker: %d", calls)
	}

	pending, err := c.Store().CountPending(ctx())
	if err != nil || pending != 1 {
		t.Fatalf("CountPending = %d, %v", pending, err)
	}
	if _, err := c.Worker().RunOnce(ctx()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 handler call, got %d", calls)
	}
}

func TestStartStop(t *testing.T) {
	c := setup(t, evolution.WithPollInterval(10*time.Millisecond))
	c.Start(ctx())
	if err := c.Stop(ctx()); err != nil {
		t.Fatal(err)
	}
}
