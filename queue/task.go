// Package queue runs tasks asynchronously with retries and a dead state.
//
// A Task carries a JSON payload, a Kind that selects its Runner and a Key
// the runner interprets (a webhook handler name, a message type). Delivery is
// at-least-once: a task whose worker dies before recording the result is
// claimed again once its lease expires, so runners must be idempotent.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/internal/entity"
)

// State represents the lifecycle state of a task.
type State string

const (
	// StatePending indicates the task awaits an attempt.
	StatePending State = "pending"

	// StateDone indicates the task ran successfully.
	StateDone State = "done"

	// StateDead indicates the task failed permanently or ran out of attempts.
	StateDead State = "dead"
)

// DefaultMaxAttempts is used when a task is created without a limit.
const DefaultMaxAttempts = 5

// Task is one unit of queued work.
type Task struct {
	entity.Entity

	// ID is the unique TypeID for this task.
	ID id.ID `json:"id"`

	// Kind selects the runner, e.g. "webhook".
	Kind string `json:"kind"`

	// Key is interpreted by the runner, e.g. a handler name.
	Key string `json:"key"`

	// Payload is the JSON-encoded work item.
	Payload json.RawMessage `json:"payload"`

	// State is the current task state.
	State State `json:"state"`

	// Attempts is the number of attempts made so far.
	Attempts int `json:"attempts"`

	// MaxAttempts is the number of attempts before the task is dead.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt is when the task becomes claimable.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// CompletedAt is when the task became done or dead.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask encodes payload into a pending task that is claimable immediately.
func NewTask(kind, key string, payload any, maxAttempts int) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("evolution: encode task payload: %w", err)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	e := entity.New()
	return &Task{
		Entity:        e,
		ID:            id.NewTaskID(),
		Kind:          kind,
		Key:           key,
		Payload:       raw,
		State:         StatePending,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: e.CreatedAt,
	}, nil
}

// Decode unmarshals the payload into v.
func (t *Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("evolution: decode task %s payload: %w", t.ID, err)
	}
	return nil
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Payload = append(json.RawMessage(nil), t.Payload...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
