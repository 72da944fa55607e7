package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/internal/pool"
)

// ErrUnknownJob is returned by Submit for names without a registered handler.
var ErrUnknownJob = errors.New("no handler registered for job")

const stateSaveTimeout = 5 * time.Second

// Handler executes one job and returns its result payload.
type Handler func(ctx context.Context, job *Job) (string, error)

// Options configures a Queue.
type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Queue submits jobs to a worker pool and records their state in a Backend.
type Queue struct {
	backend    Backend
	pool       *pool.GoroutinePool
	jobTimeout time.Duration
	metrics    *metrics.Collector
	logger     *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewQueue creates a queue. collector may be nil.
func NewQueue(backend Backend, opts Options, collector *metrics.Collector, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "task_queue"))

	return &Queue{
		backend: backend,
		pool: pool.NewGoroutinePool(pool.GoroutinePoolConfig{
			MaxWorkers: opts.Workers,
			QueueSize:  opts.QueueSize,
			Logger:     logger,
		}),
		jobTimeout: opts.JobTimeout,
		metrics:    collector,
		logger:     logger,
		handlers:   make(map[string]Handler),
	}
}

// Register binds a handler to a job name, replacing any previous one.
func (q *Queue) Register(name string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

func (q *Queue) handler(name string) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[name]
	return h, ok
}

// Submit records a pending job and hands it to the pool without waiting for it
// to run. The returned id can be passed to Lookup. The job runs on its own
// context, not on ctx.
func (q *Queue) Submit(ctx context.Context, name string, payload any) (string, error) {
	h, ok := q.handler(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := time.Now()
	job := &Job{
		ID:        uuid.New().String(),
		Name:      name,
		Payload:   raw,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.backend.Save(ctx, job); err != nil {
		q.metrics.RecordJobSubmit(name, false)
		return "", fmt.Errorf("failed to record job: %w", err)
	}

	err = q.pool.Submit(context.Background(), func(context.Context) error {
		return q.run(h, job.Clone())
	})
	if err != nil {
		q.metrics.RecordJobSubmit(name, false)
		q.finish(job, "", err)
		q.logger.Warn("job rejected",
			zap.String("job_id", job.ID),
			zap.String("job", name),
			zap.Error(err))
		return "", fmt.Errorf("failed to submit job: %w", err)
	}

	q.metrics.RecordJobSubmit(name, true)
	q.logger.Debug("job submitted", zap.String("job_id", job.ID), zap.String("job", name))
	return job.ID, nil
}

// Lookup returns the current state of a job, or ErrJobNotFound.
func (q *Queue) Lookup(ctx context.Context, id string) (*Job, error) {
	return q.backend.Get(ctx, id)
}

func (q *Queue) run(h Handler, job *Job) error {
	started := time.Now()
	job.State = StateRunning
	job.StartedAt = &started
	job.UpdatedAt = started
	q.save(job)

	ctx := context.Background()
	if q.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.jobTimeout)
		defer cancel()
	}

	result, err := q.invoke(ctx, h, job)
	q.finish(job, result, err)

	q.metrics.RecordJobFinished(job.Name, string(job.State), time.Since(started))
	stats := q.pool.Stats()
	q.metrics.RecordPool(stats.Workers, stats.Active, stats.Queued)
	return err
}

func (q *Queue) invoke(ctx context.Context, h Handler, job *Job) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked",
				zap.String("job_id", job.ID),
				zap.String("job", job.Name),
				zap.Any("panic", r))
			result, err = "", fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, job.Clone())
}

func (q *Queue) finish(job *Job, result string, err error) {
	now := time.Now()
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err != nil {
		job.State = StateFailed
		job.Error = err.Error()
		job.Result = ""
	} else {
		job.State = StateSucceeded
		job.Result = result
		job.Error = ""
	}
	q.save(job)
}

// save persists state transitions on a detached context so that a job whose
// own deadline has passed can still record its terminal state.
func (q *Queue) save(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), stateSaveTimeout)
	defer cancel()

	if err := q.backend.Save(ctx, job); err != nil {
		q.logger.Error("failed to save job state",
			zap.String("job_id", job.ID),
			zap.String("state", string(job.State)),
			zap.Error(err))
	}
}

// Ping checks the job backend.
func (q *Queue) Ping(ctx context.Context) error {
	return q.backend.Ping(ctx)
}

// Stats returns worker pool statistics.
func (q *Queue) Stats() pool.GoroutinePoolStats {
	return q.pool.Stats()
}

// Close stops accepting jobs and waits for queued jobs until ctx expires.
func (q *Queue) Close(ctx context.Context) error {
	return q.pool.Shutdown(ctx)
}
