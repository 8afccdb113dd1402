package webhook

import (
	"context"
	"sync"
)

// Recorder receives the outcome of every processed webhook.
type Recorder interface {
	Record(ctx context.Context, out Outcome)
}

// DefaultRecorderSize is the capacity of a MemoryRecorder created with size <= 0.
const DefaultRecorderSize = 100

// MemoryRecorder keeps the most recent outcomes in a ring buffer.
type MemoryRecorder struct {
	mu    sync.Mutex
	buf   []Outcome
	next  int
	full  bool
	total int
}

// NewMemoryRecorder creates a recorder holding up to size outcomes.
func NewMemoryRecorder(size int) *MemoryRecorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &MemoryRecorder{buf: make([]Outcome, size)}
}

// Record stores out, evicting the oldest outcome when full.
func (r *MemoryRecorder) Record(_ context.Context, out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = out
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

// Outcomes returns the retained outcomes, oldest first.
func (r *MemoryRecorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]Outcome(nil), r.buf[:r.next]...)
	}
	out := make([]Outcome, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Total returns the number of outcomes recorded since creation.
func (r *MemoryRecorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
