// Package ratelimit implements fixed-window throttling of outbound calls per
// category.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// DefaultCategory is the rule used for categories without their own rule.
const DefaultCategory = "default"

// Rule limits a category to MaxAttempts calls per Window. A rule with
// MaxAttempts <= 0 or Window <= 0 is unlimited.
type Rule struct {
	MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`
	Window      time.Duration `json:"window" mapstructure:"window" yaml:"window"`
}

func (r Rule) unlimited() bool {
	return r.MaxAttempts <= 0 || r.Window <= 0
}

// Bucket is the fixed-window state of one category.
type Bucket struct {
	Category        string
	MaxAttempts     int
	Window          time.Duration
	Count           int
	WindowStartedAt time.Time
}

// Result reports the outcome of Acquire.
type Result struct {
	Allowed           bool
	Category          string
	Count             int
	Limit             int
	RetryAfter        time.Duration
	RetryAfterSeconds int
}

// Backend stores buckets. Take must atomically reset an expired window, then
// increment the count when it is below rule.MaxAttempts.
type Backend interface {
	Take(ctx context.Context, key string, rule Rule, now time.Time) (b Bucket, allowed bool, err error)
	Peek(ctx context.Context, key string, rule Rule, now time.Time) (Bucket, bool, error)
	Reset(ctx context.Context, key string) error
}

// Limiter throttles calls per category. It only reports whether a call may
// proceed; what to do on denial belongs to the caller.
type Limiter struct {
	rules   map[string]Rule
	backend Backend
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithBackend sets the bucket storage. The default is a MemoryBackend.
func WithBackend(b Backend) Option {
	return func(l *Limiter) { l.backend = b }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates a limiter enforcing rules keyed by category.
func New(rules map[string]Rule, opts ...Option) *Limiter {
	l := &Limiter{
		rules:  make(map[string]Rule, len(rules)),
		now:    time.Now,
		logger: slog.Default(),
	}
	for category, rule := range rules {
		l.rules[category] = rule
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.backend == nil {
		l.backend = NewMemoryBackend()
	}
	return l
}

// Rule returns the rule and bucket key that apply to category.
func (l *Limiter) Rule(category string) (string, Rule) {
	if rule, ok := l.rules[category]; ok {
		return category, rule
	}
	return DefaultCategory, l.rules[DefaultCategory]
}

// Acquire takes one slot in the window of category.
func (l *Limiter) Acquire(ctx context.Context, category string) (Result, error) {
	key, rule := l.Rule(category)
	if rule.unlimited() {
		return Result{Allowed: true, Category: key}, nil
	}

	now := l.now()
	b, allowed, err := l.backend.Take(ctx, key, rule, now)
	if err != nil {
		return Result{}, fmt.Errorf("evolution: rate limit %q: %w", key, err)
	}

	res := Result{
		Allowed:  allowed,
		Category: key,
		Count:    b.Count,
		Limit:    rule.MaxAttempts,
	}
	if !allowed {
		res.RetryAfter = b.WindowStartedAt.Add(rule.Window).Sub(now)
		res.RetryAfterSeconds = ceilSeconds(res.RetryAfter)
		l.logger.DebugContext(ctx, "rate limit reached",
			"category", key,
			"count", b.Count,
			"retry_after", res.RetryAfter,
		)
	}
	return res, nil
}

// Bucket returns the current state of the bucket used by category.
func (l *Limiter) Bucket(ctx context.Context, category string) (Bucket, bool, error) {
	key, rule := l.Rule(category)
	b, ok, err := l.backend.Peek(ctx, key, rule, l.now())
	if err != nil || !ok {
		return Bucket{}, false, err
	}
	b.Category = key
	b.MaxAttempts = rule.MaxAttempts
	b.Window = rule.Window
	return b, true, nil
}

// Reset clears the bucket used by category.
func (l *Limiter) Reset(ctx context.Context, category string) error {
	key, _ := l.Rule(category)
	return l.backend.Reset(ctx, key)
}

// ceilSeconds rounds d up to whole seconds, never below one.
func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
