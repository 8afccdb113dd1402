package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps buckets in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{buckets: make(map[string]*Bucket)}
}

// Take implements Backend.
func (m *MemoryBackend) Take(_ context.Context, key string, rule Rule, now time.Time) (Bucket, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || now.Sub(b.WindowStartedAt) >= rule.Window {
		b = &Bucket{
			Category:        key,
			MaxAttempts:     rule.MaxAttempts,
			Window:          rule.Window,
			WindowStartedAt: now,
		}
		m.buckets[key] = b
	}

	if b.Count >= rule.MaxAttempts {
		return *b, false, nil
	}
	b.Count++
	return *b, true, nil
}

// Peek implements Backend. An expired window reads as an empty bucket.
func (m *MemoryBackend) Peek(_ context.Context, key string, rule Rule, now time.Time) (Bucket, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		return Bucket{}, false, nil
	}
	out := *b
	if now.Sub(out.WindowStartedAt) >= rule.Window {
		out.Count = 0
		out.WindowStartedAt = now
	}
	return out, true, nil
}

// Reset implements Backend.
func (m *MemoryBackend) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
	return nil
}
