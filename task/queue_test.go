package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/internal/metrics"
)

type promptPayload struct {
	Prompt string `json:"prompt"`
}

func newTestQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = 16
	}
	collector := metrics.NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
	q := NewQueue(NewMemoryBackend(0), opts, collector, zap.NewNop())
	t.Cleanup(func() { _ = q.Close(context.Background()) })
	return q
}

func waitForState(t *testing.T, q *Queue, id string, state State) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		j, err := q.Lookup(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.State == state
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestQueue_SubmitRunsHandler(t *testing.T) {
	q := newTestQueue(t, Options{})
	q.Register("echo", func(ctx context.Context, job *Job) (string, error) {
		var p promptPayload
		if err := job.Decode(&p); err != nil {
			return "", err
		}
		return "/media/" + p.Prompt + ".png", nil
	})

	id, err := q.Submit(context.Background(), "echo", promptPayload{Prompt: "cat"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job := waitForState(t, q, id, StateSucceeded)
	assert.Equal(t, "/media/cat.png", job.Result)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}

func TestQueue_SubmitIsNonBlocking(t *testing.T) {
	q := newTestQueue(t, Options{Workers: 1})
	release := make(chan struct{})
	q.Register("slow", func(ctx context.Context, job *Job) (string, error) {
		<-release
		return "done", nil
	})

	start := time.Now()
	id, err := q.Submit(context.Background(), "slow", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	job, err := q.Lookup(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, []State{StatePending, StateRunning}, job.State)

	close(release)
	waitForState(t, q, id, StateSucceeded)
}

func TestQueue_JobOutlivesSubmitContext(t *testing.T) {
	q := newTestQueue(t, Options{})
	q.Register("ctx", func(ctx context.Context, job *Job) (string, error) {
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "ok", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	id, err := q.Submit(ctx, "ctx", nil)
	require.NoError(t, err)
	cancel()

	job := waitForState(t, q, id, StateSucceeded)
	assert.Equal(t, "ok", job.Result)
}

func TestQueue_HandlerErrorMarksFailed(t *testing.T) {
	q := newTestQueue(t, Options{})
	q.Register("fail", func(ctx context.Context, job *Job) (string, error) {
		return "", errors.New("provider unavailable")
	})

	id, err := q.Submit(context.Background(), "fail", nil)
	require.NoError(t, err)

	job := waitForState(t, q, id, StateFailed)
	assert.Equal(t, "provider unavailable", job.Error)
	assert.Empty(t, job.Result)
}

func TestQueue_HandlerPanicMarksFailed(t *testing.T) {
	q := newTestQueue(t, Options{})
	q.Register("panic", func(ctx context.Context, job *Job) (string, error) {
		panic("boom")
	})

	id, err := q.Submit(context.Background(), "panic", nil)
	require.NoError(t, err)

	job := waitForState(t, q, id, StateFailed)
	assert.Contains(t, job.Error, "boom")
}

func TestQueue_JobTimeout(t *testing.T) {
	q := newTestQueue(t, Options{JobTimeout: 20 * time.Millisecond})
	q.Register("hang", func(ctx context.Context, job *Job) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	id, err := q.Submit(context.Background(), "hang", nil)
	require.NoError(t, err)

	job := waitForState(t, q, id, StateFailed)
	assert.Contains(t, job.Error, context.DeadlineExceeded.Error())
}

func TestQueue_UnknownJob(t *testing.T) {
	q := newTestQueue(t, Options{})

	_, err := q.Submit(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestQueue_LookupUnknown(t *testing.T) {
	q := newTestQueue(t, Options{})

	_, err := q.Lookup(context.Background(), "not-a-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueue_RejectedWhenFull(t *testing.T) {
	q := newTestQueue(t, Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	var started atomic.Bool
	q.Register("block", func(ctx context.Context, job *Job) (string, error) {
		started.Store(true)
		<-release
		return "", nil
	})

	_, err := q.Submit(context.Background(), "block", nil)
	require.NoError(t, err)
	require.Eventually(t, started.Load, time.Second, 5*time.Millisecond)

	_, err = q.Submit(context.Background(), "block", nil)
	require.NoError(t, err)

	_, err = q.Submit(context.Background(), "block", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is full")

	close(release)
}

func TestQueue_CloseDrains(t *testing.T) {
	collector := metrics.NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
	q := NewQueue(NewMemoryBackend(0), Options{Workers: 1, QueueSize: 8}, collector, zap.NewNop())

	var ran atomic.Int32
	q.Register("count", func(ctx context.Context, job *Job) (string, error) {
		time.Sleep(5 * time.Millisecond)
		ran.Add(1)
		return "", nil
	})

	for i := 0; i < 5; i++ {
		_, err := q.Submit(context.Background(), "count", nil)
		require.NoError(t, err)
	}
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(5), ran.Load())

	_, err := q.Submit(context.Background(), "count", nil)
	assert.Error(t, err)
}
