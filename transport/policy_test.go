package transport_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/xraph/evolution/transport"
)

func TestDelayExponentialCapped(t *testing.T) {
	p := transport.Policy{
		Backoff:   transport.BackoffExponential,
		BaseDelay: 1000 * time.Millisecond,
		MaxDelay:  30000 * time.Millisecond,
	}
	want := []time.Duration{1000, 2000, 4000, 8000, 16000, 30000}
	for i, ms := range want {
		attempt := i + 1
		if got := transport.Delay(attempt, p); got != ms*time.Millisecond {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, ms*time.Millisecond)
		}
	}
	if got := transport.Delay(64, p); got != 30*time.Second {
		t.Errorf("large attempt should stay capped, got %v", got)
	}
}

func TestDelayUncappedSaturates(t *testing.T) {
	tests := []struct {
		name    string
		backoff transport.Backoff
		attempt int
	}{
		{"exponential", transport.BackoffExponential, 35},
		{"exponential far", transport.BackoffExponential, 200},
		{"linear", transport.BackoffLinear, math.MaxInt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := transport.Policy{Backoff: tt.backoff, BaseDelay: time.Second}
			if got := transport.Delay(tt.attempt, p); got != time.Duration(math.MaxInt64) {
				t.Fatalf("got %v, want saturation", got)
			}
		})
	}

	p := transport.Policy{Backoff: transport.BackoffExponential, BaseDelay: time.Second}
	if got := transport.Delay(34, p); got != time.Second<<33 {
		t.Fatalf("attempt 34: got %v, want %v", got, time.Second<<33)
	}
}

func TestDelayStrategies(t *testing.T) {
	tests := []struct {
		name    string
		backoff transport.Backoff
		attempt int
		want    time.Duration
	}{
		{"fixed first", transport.BackoffFixed, 1, 500 * time.Millisecond},
		{"fixed later", transport.BackoffFixed, 4, 500 * time.Millisecond},
		{"linear first", transport.BackoffLinear, 1, 500 * time.Millisecond},
		{"linear third", transport.BackoffLinear, 3, 1500 * time.Millisecond},
		{"linear ignores cap", transport.BackoffLinear, 10, 5 * time.Second},
		{"exponential third", transport.BackoffExponential, 3, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := transport.Policy{Backoff: tt.backoff, BaseDelay: 500 * time.Millisecond, MaxDelay: 4 * time.Second}
			if got := transport.Delay(tt.attempt, p); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	p := transport.DefaultPolicy()
	netErr := errors.New("connection refused")

	tests := []struct {
		name    string
		status  int
		err     error
		attempt int
		want    transport.Decision
	}{
		{"2xx", 200, nil, 1, transport.Done},
		{"401 not retryable", 401, nil, 1, transport.Done},
		{"404 not retryable", 404, nil, 2, transport.Done},
		{"503 first attempt", 503, nil, 1, transport.Retry},
		{"429 second attempt", 429, nil, 2, transport.Retry},
		{"408 last attempt", 408, nil, 3, transport.GiveUp},
		{"network error", 0, netErr, 1, transport.Retry},
		{"network error exhausted", 0, netErr, 3, transport.GiveUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *transport.Response
			if tt.err == nil {
				resp = &transport.Response{StatusCode: tt.status}
			}
			if got := transport.Decide(p, resp, tt.err, tt.attempt); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := transport.DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	bad := transport.DefaultPolicy()
	bad.MaxAttempts = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero attempts")
	}

	bad = transport.DefaultPolicy()
	bad.Backoff = "random"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown backoff")
	}
}

func TestParseBackoff(t *testing.T) {
	for _, s := range []string{"fixed", "linear", "exponential"} {
		if _, err := transport.ParseBackoff(s); err != nil {
			t.Errorf("ParseBackoff(%q): %v", s, err)
		}
	}
	if _, err := transport.ParseBackoff("jitter"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
