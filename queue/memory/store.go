// Package memory provides an in-process queue.Store for tests and single
// process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/queue"
)

// compile-time interface checks
var (
	_ queue.Store  = (*Store)(nil)
	_ queue.Pruner = (*Store)(nil)
)

// Store keeps tasks in a map. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	tasks  map[string]*queue.Task
	leases map[string]time.Time // task ID → claim expiry
	now    func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tasks:  make(map[string]*queue.Task),
		leases: make(map[string]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Enqueue stores a copy of t.
func (s *Store) Enqueue(_ context.Context, t *queue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID.String()] = t.Clone()
	return nil
}

// Dequeue claims due pending tasks, earliest first.
func (s *Store) Dequeue(_ context.Context, limit int, lease time.Duration) ([]*queue.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	candidates := make([]*queue.Task, 0, len(s.tasks))
	for key, t := range s.tasks {
		if t.State != queue.StatePending || t.NextAttemptAt.After(now) {
			continue
		}
		if until, ok := s.leases[key]; ok && until.After(now) {
			continue
		}
		candidates = append(candidates, t)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextAttemptAt.Before(candidates[j].NextAttemptAt)
	})
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	out := make([]*queue.Task, 0, len(candidates))
	for _, t := range candidates {
		s.leases[t.ID.String()] = now.Add(lease)
		out = append(out, t.Clone())
	}
	return out, nil
}

// Update saves t and releases its claim.
func (s *Store) Update(_ context.Context, t *queue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.ID.String()
	if _, ok := s.tasks[key]; !ok {
		return queue.ErrNotFound
	}
	s.tasks[key] = t.Clone()
	delete(s.leases, key)
	return nil
}

// Get returns a copy of the task.
func (s *Store) Get(_ context.Context, taskID id.ID) (*queue.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID.String()]
	if !ok {
		return nil, queue.ErrNotFound
	}
	return t.Clone(), nil
}

// CountPending returns the number of pending tasks.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.tasks {
		if t.State == queue.StatePending {
			n++
		}
	}
	return n, nil
}

// ListDead returns dead tasks, most recently completed first.
func (s *Store) ListDead(_ context.Context, limit int) ([]*queue.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dead := make([]*queue.Task, 0)
	for _, t := range s.tasks {
		if t.State == queue.StateDead {
			dead = append(dead, t.Clone())
		}
	}
	sort.Slice(dead, func(i, j int) bool {
		return completedAt(dead[i]).After(completedAt(dead[j]))
	})
	if limit > 0 && limit < len(dead) {
		dead = dead[:limit]
	}
	return dead, nil
}

// Replay makes a dead task pending again.
func (s *Store) Replay(_ context.Context, taskID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID.String()]
	if !ok {
		return queue.ErrNotFound
	}
	if t.State != queue.StateDead {
		return queue.ErrNotDead
	}
	now := s.now()
	t.State = queue.StatePending
	t.Attempts = 0
	t.LastError = ""
	t.CompletedAt = nil
	t.NextAttemptAt = now
	t.UpdatedAt = now
	return nil
}

// PurgeDone deletes done tasks completed before the cutoff.
func (s *Store) PurgeDone(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, t := range s.tasks {
		if t.State == queue.StateDone && completedAt(t).Before(before) {
			delete(s.tasks, key)
			delete(s.leases, key)
			n++
		}
	}
	return n, nil
}

func completedAt(t *queue.Task) time.Time {
	if t.CompletedAt == nil {
		return t.UpdatedAt
	}
	return *t.CompletedAt
}
