package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/store"
	"github.com/BaSui01/imageflow/task"
	"github.com/BaSui01/imageflow/testutil"
	"github.com/BaSui01/imageflow/types"
)

func TestDispatcher_SubmitsNewPrompt(t *testing.T) {
	sub := &fakeSubmitter{}
	d := NewDispatcher(store.NewMemoryStore(), sub, 0, nil, zap.NewNop())

	prompt, url, err := d.Dispatch(context.Background(), "a cat", "https://h")
	require.NoError(t, err)
	assert.Equal(t, "a cat", prompt)
	assert.Equal(t, "https://h/result/job-a cat", url)
	assert.Equal(t, []string{"a cat"}, sub.calls)
}

func TestDispatcher_ReusesRecordedJob(t *testing.T) {
	records := store.NewMemoryStore()
	_, err := records.Upsert(context.Background(), "a cat", "generated_images/a_cat.png", "job-existing")
	require.NoError(t, err)

	sub := &fakeSubmitter{}
	d := NewDispatcher(records, sub, 0, nil, zap.NewNop())

	_, url, err := d.Dispatch(context.Background(), "a cat", "https://h/")
	require.NoError(t, err)
	assert.Equal(t, "https://h/result/job-existing", url)
	assert.Equal(t, 0, sub.count())
}

func TestDispatcher_RecordWithoutJobResubmits(t *testing.T) {
	records := store.NewMemoryStore()
	_, err := records.Upsert(context.Background(), "a cat", "generated_images/a_cat.png", "")
	require.NoError(t, err)

	sub := &fakeSubmitter{}
	d := NewDispatcher(records, sub, 0, nil, zap.NewNop())

	_, url, err := d.Dispatch(context.Background(), "a cat", "https://h")
	require.NoError(t, err)
	assert.Equal(t, "https://h/result/job-a cat", url)
	assert.Equal(t, 1, sub.count())
}

func TestDispatcher_Validation(t *testing.T) {
	sub := &fakeSubmitter{}
	d := NewDispatcher(store.NewMemoryStore(), sub, 10, nil, zap.NewNop())

	for _, prompt := range []string{"", "   ", strings.Repeat("x", 11)} {
		_, _, err := d.Dispatch(context.Background(), prompt, "https://h")
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
	}

	_, _, err := d.Dispatch(context.Background(), strings.Repeat("猫", 10), "https://h")
	assert.NoError(t, err)
	assert.Equal(t, 1, sub.count())
}

func TestDispatcher_SubmitError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("pool is full")}
	d := NewDispatcher(store.NewMemoryStore(), sub, 0, nil, zap.NewNop())

	_, url, err := d.Dispatch(context.Background(), "a cat", "https://h")
	require.Error(t, err)
	assert.Empty(t, url)
	assert.True(t, types.IsCode(err, types.ErrSubstrate))
	assert.Contains(t, err.Error(), "pool is full")
}

type failingStore struct{ store.Store }

func (failingStore) Find(ctx context.Context, prompt string) (*store.GenerationRecord, error) {
	return nil, errors.New("database is locked")
}

func TestDispatcher_StoreError(t *testing.T) {
	sub := &fakeSubmitter{}
	d := NewDispatcher(failingStore{}, sub, 0, nil, zap.NewNop())

	_, _, err := d.Dispatch(context.Background(), "a cat", "https://h")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInternalError))
	assert.Equal(t, 0, sub.count())
}

func TestDispatcher_ConcurrentSamePromptSubmitsOnce(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	d := NewDispatcher(store.NewMemoryStore(), sub, 0, nil, zap.NewNop())

	const n = 8
	urls := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, url, err := d.Dispatch(context.Background(), "a cat", "https://h")
			assert.NoError(t, err)
			urls[i] = url
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(sub.block)
	wg.Wait()

	assert.Equal(t, 1, sub.count())
	for _, url := range urls {
		assert.Equal(t, "https://h/result/job-a cat", url)
	}
}

func TestDispatcher_SharedDispatchSurvivesLeaderCancel(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	d := NewDispatcher(store.NewMemoryStore(), sub, 0, nil, zap.NewNop())

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		url string
		err error
	}
	leader := make(chan result, 1)
	go func() {
		_, url, err := d.Dispatch(leaderCtx, "a cat", "https://h")
		leader <- result{url, err}
	}()
	require.Eventually(t, func() bool { return sub.waiting.Load() == 1 }, time.Second, time.Millisecond)

	follower := make(chan result, 1)
	go func() {
		_, url, err := d.Dispatch(context.Background(), "a cat", "https://h")
		follower <- result{url, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	close(sub.block)

	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, "https://h/result/job-a cat", got.url)

	got = <-leader
	require.NoError(t, got.err)
	assert.Equal(t, "https://h/result/job-a cat", got.url)
}

func TestDispatcher_Idempotent(t *testing.T) {
	h := newHarness(t, successProvider())
	ctx := testutil.TestContext(t)

	_, first, err := h.dispatcher.Dispatch(ctx, "a cat", "https://h")
	require.NoError(t, err)

	jobID := strings.TrimPrefix(first, "https://h/result/")
	job := h.waitTerminal(t, jobID)
	require.Equal(t, task.StateSucceeded, job.State)

	_, second, err := h.dispatcher.Dispatch(ctx, "a cat", "https://h")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.provider.GetCallCount())
}

func TestPollURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/result/abc", PollURL("http://localhost:8080", "abc"))
	assert.Equal(t, "http://localhost:8080/result/abc", PollURL("http://localhost:8080/", "abc"))
}
