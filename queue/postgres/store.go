// Package postgres provides a PostgreSQL-backed queue.Store on Grove ORM.
//
// Workers claim tasks with FOR UPDATE SKIP LOCKED and stamp locked_until, so
// several processes can share one table and an abandoned claim expires.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/queue"
)

// compile-time interface checks
var (
	_ queue.Store  = (*Store)(nil)
	_ queue.Pruner = (*Store)(nil)
)

// Store implements queue.Store using PostgreSQL via Grove ORM.
type Store struct {
	db  *grove.DB
	pg  *pgdriver.PgDB
	now func() time.Time
}

// New creates a store on an open grove database.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		pg:  pgdriver.Unwrap(db),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to dsn with the grove Postgres driver and verifies the
// connection with a ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pgdb := pgdriver.New()
	if err := pgdb.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("evolution/postgres: open: %w", err)
	}
	db, err := grove.Open(pgdb)
	if err != nil {
		_ = pgdb.Close()
		return nil, fmt.Errorf("evolution/postgres: open: %w", err)
	}
	s := New(db)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("evolution/postgres: ping: %w", err)
	}
	return s, nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the task table and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("evolution/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("evolution/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue inserts t.
func (s *Store) Enqueue(ctx context.Context, t *queue.Task) error {
	if _, err := s.pg.NewInsert(toTaskModel(t)).Exec(ctx); err != nil {
		return fmt.Errorf("evolution/postgres: enqueue task: %w", err)
	}
	return nil
}

// Dequeue claims up to limit due tasks whose lease is free or expired.
func (s *Store) Dequeue(ctx context.Context, limit int, lease time.Duration) ([]*queue.Task, error) {
	if limit <= 0 {
		limit = 1
	}
	now := s.now()

	var models []taskModel
	err := s.pg.NewRaw(`
		UPDATE evolution_tasks SET locked_until = $2
		WHERE id IN (
			SELECT id FROM evolution_tasks
			WHERE state = 'pending' AND next_attempt_at <= $1
			  AND (locked_until IS NULL OR locked_until < $1)
			ORDER BY next_attempt_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, now, now.Add(lease), limit).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("evolution/postgres: claim tasks: %w", err)
	}
	return fromTaskModels(models)
}

// Update saves t and clears its lease.
func (s *Store) Update(ctx context.Context, t *queue.Task) error {
	res, err := s.pg.NewUpdate(toTaskModel(t)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("evolution/postgres: update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return queue.ErrNotFound
	}
	return nil
}

// Get returns a task by ID.
func (s *Store) Get(ctx context.Context, taskID id.ID) (*queue.Task, error) {
	m := new(taskModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", taskID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, queue.ErrNotFound
		}
		return nil, fmt.Errorf("evolution/postgres: get task: %w", err)
	}
	return fromTaskModel(m)
}

// CountPending returns the number of pending tasks.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.pg.NewSelect((*taskModel)(nil)).
		Where("state = $1", string(queue.StatePending)).
		Count(ctx)
	return count, err
}

// ListDead returns dead tasks, most recently completed first.
func (s *Store) ListDead(ctx context.Context, limit int) ([]*queue.Task, error) {
	var models []taskModel
	q := s.pg.NewSelect(&models).
		Where("state = $1", string(queue.StateDead)).
		OrderExpr("completed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("evolution/postgres: list dead: %w", err)
	}
	return fromTaskModels(models)
}

// Replay makes a dead task pending again.
func (s *Store) Replay(ctx context.Context, taskID id.ID) error {
	now := s.now()
	res, err := s.pg.NewUpdate((*taskModel)(nil)).
		Set("state = $1", string(queue.StatePending)).
		Set("attempts = 0").
		Set("last_error = ''").
		Set("completed_at = NULL").
		Set("locked_until = NULL").
		Set("next_attempt_at = $2", now).
		Set("updated_at = $3", now).
		Where("id = $4", taskID.String()).
		Where("state = $5", string(queue.StateDead)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("evolution/postgres: replay task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	// Distinguish a missing task from one that is not dead.
	if _, err := s.Get(ctx, taskID); err != nil {
		return err
	}
	return queue.ErrNotDead
}

// PurgeDone deletes done tasks completed before the cutoff.
func (s *Store) PurgeDone(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*taskModel)(nil)).
		Where("state = $1", string(queue.StateDone)).
		Where("completed_at < $2", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("evolution/postgres: purge done tasks: %w", err)
	}
	return res.RowsAffected()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
