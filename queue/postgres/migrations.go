package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the task table. It can be
// registered with a shared grove orchestrator or applied through Migrate.
var Migrations = migrate.NewGroup("evolution")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_evolution_tasks",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS evolution_tasks (
    id              TEXT PRIMARY KEY,
    kind            TEXT NOT NULL,
    key             TEXT NOT NULL DEFAULT '',
    payload         JSONB NOT NULL,
    state           TEXT NOT NULL DEFAULT 'pending',
    attempts        INT NOT NULL DEFAULT 0,
    max_attempts    INT NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    locked_until    TIMESTAMPTZ,
    last_error      TEXT NOT NULL DEFAULT '',
    completed_at    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_evolution_tasks_pending
    ON evolution_tasks (next_attempt_at) WHERE state = 'pending';
CREATE INDEX IF NOT EXISTS idx_evolution_tasks_dead
    ON evolution_tasks (completed_at DESC) WHERE state = 'dead';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS evolution_tasks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "index_evolution_tasks_done",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE INDEX IF NOT EXISTS idx_evolution_tasks_done
    ON evolution_tasks (completed_at) WHERE state = 'done';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP INDEX IF EXISTS idx_evolution_tasks_done`)
				return err
			},
		},
	)
}
