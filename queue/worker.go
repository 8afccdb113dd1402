package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/evolution/observability"
)

// DefaultRetrySchedule defines the waits between task attempts. The last
// entry repeats.
var DefaultRetrySchedule = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	15 * time.Minute,
	time.Hour,
}

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Concurrency   int
	PollInterval  time.Duration
	BatchSize     int
	TaskTimeout   time.Duration
	Lease         time.Duration
	RetrySchedule []time.Duration

	// Retention is how long done tasks are kept in stores that implement
	// Pruner. A negative value keeps them forever.
	Retention     time.Duration
	PurgeInterval time.Duration

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// DefaultWorkerConfig returns a WorkerConfig with sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:   10,
		PollInterval:  time.Second,
		BatchSize:     50,
		TaskTimeout:   30 * time.Second,
		Lease:         5 * time.Minute,
		RetrySchedule: DefaultRetrySchedule,
		Retention:     7 * 24 * time.Hour,
		PurgeInterval: time.Hour,
	}
}

// Worker polls a Store and runs claimed tasks with bounded concurrency.
type Worker struct {
	store  Store
	runner Runner
	config WorkerConfig
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker. Zero config fields take their defaults.
func NewWorker(store Store, runner Runner, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWorkerConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if len(cfg.RetrySchedule) == 0 {
		cfg.RetrySchedule = def.RetrySchedule
	}
	if cfg.Retention == 0 {
		cfg.Retention = def.Retention
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = def.PurgeInterval
	}
	return &Worker{
		store:  store,
		runner: runner,
		config: cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the poll loop.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight tasks, or for ctx.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("evolution: worker stop: %w", ctx.Err())
	}
}

// RunOnce claims one batch and runs it to completion. It returns the number
// of tasks processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	batch, err := w.store.Dequeue(ctx, w.config.BatchSize, w.config.Lease)
	if err != nil {
		return 0, fmt.Errorf("evolution: dequeue: %w", err)
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, w.config.Concurrency)
	for _, t := range batch {
		sem <- struct{}{}
		wg.Add(1)
		go func(task *Task) {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, task)
		}(t)
	}
	wg.Wait()
	w.refreshPending(ctx)
	return len(batch), nil
}

// Purge deletes done tasks older than the retention window when the store
// implements Pruner. It returns the number of tasks removed.
func (w *Worker) Purge(ctx context.Context) (int64, error) {
	p, ok := w.store.(Pruner)
	if !ok || w.config.Retention < 0 {
		return 0, nil
	}
	n, err := p.PurgeDone(ctx, w.now().Add(-w.config.Retention))
	if err != nil {
		return 0, fmt.Errorf("evolution: purge done tasks: %w", err)
	}
	if n > 0 {
		w.logger.DebugContext(ctx, "purged done tasks", "count", n)
	}
	return n, nil
}

// pollLoop periodically dequeues pending tasks and dispatches them to workers.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	purge := time.NewTicker(w.config.PurgeInterval)
	defer purge.Stop()

	sem := make(chan struct{}, w.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-purge.C:
			if _, err := w.Purge(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "purge done tasks failed", "error", err)
			}
		case <-ticker.C:
			batch, err := w.store.Dequeue(ctx, w.config.BatchSize, w.config.Lease)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				}
				continue
			}

			for _, t := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				w.wg.Add(1)
				go func(task *Task) {
					defer w.wg.Done()
					defer func() { <-sem }()
					// Results are recorded even while stopping.
					w.process(context.WithoutCancel(ctx), task)
				}(t)
			}
			w.refreshPending(ctx)
		}
	}
}

// process runs a single task and records the result.
func (w *Worker) process(ctx context.Context, t *Task) {
	t.Attempts++
	ctx, span := w.config.Tracer.StartTaskSpan(ctx, t.ID.String(), t.Key, t.Kind, t.Attempts)

	start := time.Now()
	err := w.run(ctx, t)
	seconds := time.Since(start).Seconds()
	w.config.Tracer.EndTaskSpan(span, err)

	now := w.now()
	switch {
	case err == nil:
		t.State = StateDone
		t.LastError = ""
		t.CompletedAt = &now
		w.config.Metrics.RecordTask("done", seconds)
		w.logger.DebugContext(ctx, "task done",
			"task_id", t.ID, "kind", t.Kind, "key", t.Key, "attempt", t.Attempts)

	case errors.Is(err, ErrPermanent) || t.Attempts >= t.MaxAttempts:
		t.State = StateDead
		t.LastError = err.Error()
		t.CompletedAt = &now
		w.config.Metrics.RecordTask("dead", seconds)
		w.logger.WarnContext(ctx, "task failed permanently",
			"task_id", t.ID, "kind", t.Kind, "key", t.Key, "attempts", t.Attempts, "error", err)

	default:
		t.LastError = err.Error()
		t.NextAttemptAt = now.Add(w.backoff(t.Attempts))
		w.config.Metrics.RecordTask("retry", seconds)
		w.logger.DebugContext(ctx, "task retry scheduled",
			"task_id", t.ID, "attempt", t.Attempts, "next_at", t.NextAttemptAt, "error", err)
	}

	t.Touch()
	if updateErr := w.store.Update(ctx, t); updateErr != nil {
		// The lease expires and the task runs again.
		w.logger.ErrorContext(ctx, "update task failed",
			"task_id", t.ID, "error", updateErr)
	}
}

// run calls the runner under the task timeout, turning panics into errors.
func (w *Worker) run(ctx context.Context, t *Task) (err error) {
	if w.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.TaskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.runner.Run(ctx, t)
}

// backoff returns the wait after the given attempt.
func (w *Worker) backoff(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(w.config.RetrySchedule) {
		idx = len(w.config.RetrySchedule) - 1
	}
	return w.config.RetrySchedule[idx]
}

func (w *Worker) refreshPending(ctx context.Context) {
	if w.config.Metrics == nil {
		return
	}
	n, err := w.store.CountPending(ctx)
	if err != nil {
		return
	}
	w.config.Metrics.SetPending(int(n))
}
