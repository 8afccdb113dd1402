// Package queuetest holds a conformance suite that every queue.Store
// implementation runs from its own tests.
package queuetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/queue"
)

// Run exercises s. newStore must return an empty store on each call.
func Run(t *testing.T, newStore func(t *testing.T) queue.Store) {
	t.Helper()

	t.Run("EnqueueGet", func(t *testing.T) { testEnqueueGet(t, newStore(t)) })
	t.Run("DequeueDueOnly", func(t *testing.T) { testDequeueDueOnly(t, newStore(t)) })
	t.Run("LeaseHidesClaimed", func(t *testing.T) { testLease(t, newStore(t)) })
	t.Run("UpdateStates", func(t *testing.T) { testUpdateStates(t, newStore(t)) })
	t.Run("DeadAndReplay", func(t *testing.T) { testDeadAndReplay(t, newStore(t)) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("PurgeDone", func(t *testing.T) {
		s := newStore(t)
		p, ok := s.(queue.Pruner)
		if !ok {
			t.Skip("store does not implement queue.Pruner")
		}
		testPurgeDone(t, s, p)
	})
}

func newTask(t *testing.T, key string) *queue.Task {
	t.Helper()
	task, err := queue.NewTask("webhook", key, map[string]string{"key": key}, 3)
	require.NoError(t, err)
	return task
}

func testEnqueueGet(t *testing.T, s queue.Store) {
	ctx := context.Background()
	task := newTask(t, "a")
	require.NoError(t, s.Enqueue(ctx, task))

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID.String(), got.ID.String())
	assert.Equal(t, "webhook", got.Kind)
	assert.Equal(t, "a", got.Key)
	assert.Equal(t, queue.StatePending, got.State)
	assert.Equal(t, 3, got.MaxAttempts)
	assert.JSONEq(t, `{"key":"a"}`, string(got.Payload))
	assert.WithinDuration(t, task.NextAttemptAt, got.NextAttemptAt, time.Millisecond)

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testDequeueDueOnly(t *testing.T, s queue.Store) {
	ctx := context.Background()
	due := newTask(t, "due")
	later := newTask(t, "later")
	later.NextAttemptAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.Enqueue(ctx, due))
	require.NoError(t, s.Enqueue(ctx, later))

	claimed, err := s.Dequeue(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID.String(), claimed[0].ID.String())
}

func testLease(t *testing.T, s queue.Store) {
	ctx := context.Background()
	task := newTask(t, "leased")
	require.NoError(t, s.Enqueue(ctx, task))

	first, err := s.Dequeue(ctx, 10, 200*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := s.Dequeue(ctx, 10, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed task must stay hidden during its lease")

	// Claimed tasks still count as pending.
	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	time.Sleep(400 * time.Millisecond)
	reclaimed, err := s.Dequeue(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, task.ID.String(), reclaimed[0].ID.String())
}

func testUpdateStates(t *testing.T, s queue.Store) {
	ctx := context.Background()
	done := newTask(t, "done")
	retry := newTask(t, "retry")
	require.NoError(t, s.Enqueue(ctx, done))
	require.NoError(t, s.Enqueue(ctx, retry))

	claimed, err := s.Dequeue(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	now := time.Now().UTC()
	for _, c := range claimed {
		c.Attempts = 1
		if c.Key == "done" {
			c.State = queue.StateDone
			c.CompletedAt = &now
		} else {
			c.LastError = "boom"
			c.NextAttemptAt = now.Add(time.Hour)
		}
		c.Touch()
		require.NoError(t, s.Update(ctx, c))
	}

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The retry is scheduled in the future and its lease was released.
	next, err := s.Dequeue(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, next)

	got, err := s.Get(ctx, retry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "boom", got.LastError)

	got, err = s.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateDone, got.State)
	require.NotNil(t, got.CompletedAt)
}

func testDeadAndReplay(t *testing.T, s queue.Store) {
	ctx := context.Background()
	task := newTask(t, "dead")
	require.NoError(t, s.Enqueue(ctx, task))

	claimed, err := s.Dequeue(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	dead := claimed[0]
	now := time.Now().UTC()
	dead.State = queue.StateDead
	dead.Attempts = 3
	dead.LastError = "gave up"
	dead.CompletedAt = &now
	require.NoError(t, s.Update(ctx, dead))

	list, err := s.ListDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, task.ID.String(), list[0].ID.String())
	assert.Equal(t, "gave up", list[0].LastError)

	require.NoError(t, s.Replay(ctx, task.ID))
	assert.ErrorIs(t, s.Replay(ctx, task.ID), queue.ErrNotDead)

	list, err = s.ListDead(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	again, err := s.Dequeue(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 0, again[0].Attempts)
	assert.Empty(t, again[0].LastError)
	assert.Nil(t, again[0].CompletedAt)
}

func testMissing(t *testing.T, s queue.Store) {
	ctx := context.Background()
	missing := id.NewTaskID()

	_, err := s.Get(ctx, missing)
	assert.ErrorIs(t, err, queue.ErrNotFound)
	assert.ErrorIs(t, s.Replay(ctx, missing), queue.ErrNotFound)

	task := newTask(t, "ghost")
	assert.ErrorIs(t, s.Update(ctx, task), queue.ErrNotFound)
}

func testPurgeDone(t *testing.T, s queue.Store, p queue.Pruner) {
	ctx := context.Background()
	old := newTask(t, "old")
	recent := newTask(t, "recent")
	dead := newTask(t, "dead")
	pending := newTask(t, "pending")
	for _, task := range []*queue.Task{old, recent, dead, pending} {
		require.NoError(t, s.Enqueue(ctx, task))
	}

	now := time.Now().UTC()
	weekAgo := now.Add(-7 * 24 * time.Hour)
	finish := func(task *queue.Task, state queue.State, at time.Time) {
		task.State = state
		task.CompletedAt = &at
		task.Touch()
		require.NoError(t, s.Update(ctx, task))
	}
	finish(old, queue.StateDone, weekAgo)
	finish(recent, queue.StateDone, now)
	finish(dead, queue.StateDead, weekAgo)

	n, err := p.PurgeDone(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, queue.ErrNotFound)
	for _, kept := range []*queue.Task{recent, dead, pending} {
		_, err := s.Get(ctx, kept.ID)
		assert.NoError(t, err, kept.Key)
	}
}
