package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/internal/entity"
	"github.com/xraph/evolution/queue"
)

type taskModel struct {
	grove.BaseModel `grove:"table:evolution_tasks"`

	ID            string          `grove:"id,pk"`
	Kind          string          `grove:"kind"`
	Key           string          `grove:"key"`
	Payload       json.RawMessage `grove:"payload,type:jsonb"`
	State         string          `grove:"state"`
	Attempts      int             `grove:"attempts"`
	MaxAttempts   int             `grove:"max_attempts"`
	NextAttemptAt time.Time       `grove:"next_attempt_at"`
	LockedUntil   *time.Time      `grove:"locked_until"`
	LastError     string          `grove:"last_error"`
	CompletedAt   *time.Time      `grove:"completed_at"`
	CreatedAt     time.Time       `grove:"created_at"`
	UpdatedAt     time.Time       `grove:"updated_at"`
}

func toTaskModel(t *queue.Task) *taskModel {
	return &taskModel{
		ID:            t.ID.String(),
		Kind:          t.Kind,
		Key:           t.Key,
		Payload:       t.Payload,
		State:         string(t.State),
		Attempts:      t.Attempts,
		MaxAttempts:   t.MaxAttempts,
		NextAttemptAt: t.NextAttemptAt,
		LastError:     t.LastError,
		CompletedAt:   t.CompletedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func fromTaskModel(m *taskModel) (*queue.Task, error) {
	taskID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("evolution/postgres: parse task ID %q: %w", m.ID, err)
	}
	return &queue.Task{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            taskID,
		Kind:          m.Kind,
		Key:           m.Key,
		Payload:       m.Payload,
		State:         queue.State(m.State),
		Attempts:      m.Attempts,
		MaxAttempts:   m.MaxAttempts,
		NextAttemptAt: m.NextAttemptAt,
		LastError:     m.LastError,
		CompletedAt:   m.CompletedAt,
	}, nil
}

func fromTaskModels(models []taskModel) ([]*queue.Task, error) {
	tasks := make([]*queue.Task, len(models))
	for i := range models {
		t, err := fromTaskModel(&models[i])
		if err != nil {
			return nil, err
		}
		tasks[i] = t
	}
	return tasks, nil
}
