package queue

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/evolution/id"
)

var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("evolution: task not found")

	// ErrNotDead is returned when replaying a task that is not dead.
	ErrNotDead = errors.New("evolution: task is not dead")
)

// Queue accepts tasks. It is all a producer needs.
type Queue interface {
	Enqueue(ctx context.Context, t *Task) error
}

// Store persists tasks for workers.
type Store interface {
	Queue

	// Dequeue claims up to limit pending tasks whose NextAttemptAt has
	// passed. A claimed task is invisible to other workers until lease
	// elapses or Update is called.
	Dequeue(ctx context.Context, limit int, lease time.Duration) ([]*Task, error)

	// Update saves a task and releases its claim.
	Update(ctx context.Context, t *Task) error

	// Get returns a task by ID.
	Get(ctx context.Context, taskID id.ID) (*Task, error)

	// CountPending returns the number of pending tasks, claimed or not.
	CountPending(ctx context.Context) (int64, error)

	// ListDead returns dead tasks, most recent first.
	ListDead(ctx context.Context, limit int) ([]*Task, error)

	// Replay makes a dead task pending again with its attempts reset.
	Replay(ctx context.Context, taskID id.ID) error
}

// Pruner is implemented by stores that delete finished tasks on request.
// Stores that expire done tasks on their own do not implement it.
type Pruner interface {
	// PurgeDone deletes done tasks completed before the cutoff and returns
	// how many were removed.
	PurgeDone(ctx context.Context, before time.Time) (int64, error)
}
