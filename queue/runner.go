package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPermanent marks a failure that retrying cannot fix.
var ErrPermanent = errors.New("evolution: permanent task failure")

// ErrUnknownKind is returned by Mux for a kind with no runner.
var ErrUnknownKind = errors.New("evolution: no runner for task kind")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// Permanent wraps err so the worker marks the task dead without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Runner executes one task.
type Runner interface {
	Run(ctx context.Context, t *Task) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, t *Task) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, t *Task) error { return f(ctx, t) }

// Mux routes tasks to runners by Kind.
type Mux struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{runners: make(map[string]Runner)}
}

// Handle registers r for kind, replacing any earlier runner.
func (m *Mux) Handle(kind string, r Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners[kind] = r
}

// Run implements Runner.
func (m *Mux) Run(ctx context.Context, t *Task) error {
	m.mu.RLock()
	r, ok := m.runners[t.Kind]
	m.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind))
	}
	return r.Run(ctx, t)
}
