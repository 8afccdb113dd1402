// Package redis provides a Redis-backed queue.Store.
//
// Each task is a JSON string under "evolution:task:<id>". Pending tasks live
// in a sorted set scored by the time they become claimable; claiming a task
// re-scores it to the end of its lease, so a task whose worker disappears is
// picked up again. Dead tasks are indexed in a second sorted set. Done tasks
// expire after the store's done TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/queue"
)

// compile-time interface check
var _ queue.Store = (*Store)(nil)

const (
	prefixTask = "evolution:task:"
	zPending   = "evolution:z:task:pending"
	zDead      = "evolution:z:task:dead"
)

// DefaultDoneTTL is how long a done task stays readable.
const DefaultDoneTTL = 7 * 24 * time.Hour

// claimScript atomically claims due task IDs and pushes each one to the end
// of its lease.
// KEYS[1] = pending sorted set
// ARGV[1] = now score
// ARGV[2] = limit
// ARGV[3] = lease expiry score
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
    redis.call('ZADD', KEYS[1], 'XX', ARGV[3], id)
end
return ids
`)

// Store implements queue.Store using Redis.
type Store struct {
	rdb     goredis.UniversalClient
	now     func() time.Time
	doneTTL time.Duration
}

// New creates a store on an existing client.
func New(rdb goredis.UniversalClient) *Store {
	return &Store{
		rdb:     rdb,
		now:     func() time.Time { return time.Now().UTC() },
		doneTTL: DefaultDoneTTL,
	}
}

// WithDoneTTL sets how long done tasks are kept. Zero restores
// DefaultDoneTTL and a negative value keeps them forever.
func (s *Store) WithDoneTTL(d time.Duration) *Store {
	switch {
	case d == 0:
		d = DefaultDoneTTL
	case d < 0:
		d = 0
	}
	s.doneTTL = d
	return s
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Enqueue stores t and indexes it as pending.
func (s *Store) Enqueue(ctx context.Context, t *queue.Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("evolution/redis: marshal task: %w", err)
	}
	key := t.ID.String()

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, prefixTask+key, raw, 0)
	pipe.ZAdd(ctx, zPending, goredis.Z{Score: score(t.NextAttemptAt), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("evolution/redis: enqueue task: %w", err)
	}
	return nil
}

// Dequeue claims up to limit due tasks.
func (s *Store) Dequeue(ctx context.Context, limit int, lease time.Duration) ([]*queue.Task, error) {
	if limit <= 0 {
		limit = 1
	}
	now := s.now()
	ids, err := claimScript.Run(ctx, s.rdb, []string{zPending},
		formatScore(score(now)), limit, formatScore(score(now.Add(lease)))).StringSlice()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("evolution/redis: claim tasks: %w", err)
	}

	tasks := make([]*queue.Task, 0, len(ids))
	for _, key := range ids {
		t, err := s.load(ctx, key)
		if errors.Is(err, queue.ErrNotFound) {
			// Orphaned index entry.
			s.rdb.ZRem(ctx, zPending, key)
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Update saves t and moves it between the pending and dead indexes.
func (s *Store) Update(ctx context.Context, t *queue.Task) error {
	key := t.ID.String()
	exists, err := s.rdb.Exists(ctx, prefixTask+key).Result()
	if err != nil {
		return fmt.Errorf("evolution/redis: update task: %w", err)
	}
	if exists == 0 {
		return queue.ErrNotFound
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("evolution/redis: marshal task: %w", err)
	}

	var ttl time.Duration
	if t.State == queue.StateDone {
		ttl = s.doneTTL
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, prefixTask+key, raw, ttl)
	switch t.State {
	case queue.StatePending:
		pipe.ZAdd(ctx, zPending, goredis.Z{Score: score(t.NextAttemptAt), Member: key})
		pipe.ZRem(ctx, zDead, key)
	case queue.StateDead:
		pipe.ZRem(ctx, zPending, key)
		pipe.ZAdd(ctx, zDead, goredis.Z{Score: score(completedAt(t)), Member: key})
	default:
		pipe.ZRem(ctx, zPending, key)
		pipe.ZRem(ctx, zDead, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("evolution/redis: update task: %w", err)
	}
	return nil
}

// Get returns a task by ID.
func (s *Store) Get(ctx context.Context, taskID id.ID) (*queue.Task, error) {
	return s.load(ctx, taskID.String())
}

// CountPending returns the size of the pending index.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, zPending).Result()
	if err != nil {
		return 0, fmt.Errorf("evolution/redis: count pending: %w", err)
	}
	return n, nil
}

// ListDead returns dead tasks, most recently completed first.
func (s *Store) ListDead(ctx context.Context, limit int) ([]*queue.Task, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.rdb.ZRevRange(ctx, zDead, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("evolution/redis: list dead: %w", err)
	}

	tasks := make([]*queue.Task, 0, len(ids))
	for _, key := range ids {
		t, err := s.load(ctx, key)
		if errors.Is(err, queue.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Replay makes a dead task pending again.
func (s *Store) Replay(ctx context.Context, taskID id.ID) error {
	t, err := s.Get(ctx, taskID)
	if err != nil {
		return err
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
	return s.Update(ctx, t)
}

func (s *Store) load(ctx context.Context, key string) (*queue.Task, error) {
	raw, err := s.rdb.Get(ctx, prefixTask+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, queue.ErrNotFound
		}
		return nil, fmt.Errorf("evolution/redis: get task: %w", err)
	}
	var t queue.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("evolution/redis: decode task %s: %w", key, err)
	}
	return &t, nil
}

// score converts a time to a sorted set score in fractional unix seconds.
func score(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func completedAt(t *queue.Task) time.Time {
	if t.CompletedAt == nil {
		return t.UpdatedAt
	}
	return *t.CompletedAt
}
