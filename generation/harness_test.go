package generation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/blob"
	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/store"
	"github.com/BaSui01/imageflow/task"
	"github.com/BaSui01/imageflow/testutil"
	"github.com/BaSui01/imageflow/testutil/mocks"
)

// harness 组装真实的队列、内存记录与本地文件存储.
type harness struct {
	provider   *mocks.MockProvider
	store      *store.MemoryStore
	blobs      *blob.LocalStorage
	queue      *task.Queue
	runner     *Runner
	dispatcher *Dispatcher
	batch      *BatchCoordinator
	status     *StatusReporter
}

func newHarness(t *testing.T, provider *mocks.MockProvider) *harness {
	t.Helper()

	logger := zap.NewNop()
	collector := metrics.NewCollector("test", prometheus.NewRegistry(), logger)

	blobs, err := blob.NewLocalStorage(t.TempDir(), "/media/", "generated_images", logger)
	require.NoError(t, err)

	records := store.NewMemoryStore()
	queue := task.NewQueue(task.NewMemoryBackend(0), task.Options{Workers: 4, QueueSize: 64, JobTimeout: 5 * time.Second}, collector, logger)
	t.Cleanup(func() { _ = queue.Close(context.Background()) })

	runner := NewRunner(provider, records, blobs, collector, logger)
	queue.Register(JobName, runner.Handle)

	dispatcher := NewDispatcher(records, queue, 0, collector, logger)
	return &harness{
		provider:   provider,
		store:      records,
		blobs:      blobs,
		queue:      queue,
		runner:     runner,
		dispatcher: dispatcher,
		batch:      NewBatchCoordinator(dispatcher, 0, collector, logger),
		status:     NewStatusReporter(queue, records, blobs),
	}
}

func (h *harness) waitTerminal(t *testing.T, jobID string) *task.Job {
	t.Helper()
	var job *task.Job
	require.Eventually(t, func() bool {
		j, err := h.queue.Lookup(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.State.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func successProvider() *mocks.MockProvider {
	return mocks.NewSuccessProvider(testutil.PNGBase64(4, 4))
}

// fakeSubmitter 记录提交次数, 可选阻塞或返回错误. 阻塞结束后 ctx 已取消则返回 ctx 错误.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []string
	err     error
	block   chan struct{}
	counter int
	waiting atomic.Int32
}

func (f *fakeSubmitter) Submit(ctx context.Context, name string, payload any) (string, error) {
	if f.block != nil {
		f.waiting.Add(1)
		<-f.block
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.counter++
	p := payload.(Payload)
	f.calls = append(f.calls, p.Prompt)
	return "job-" + p.Prompt, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter
}
