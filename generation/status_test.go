package generation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/blob"
	"github.com/BaSui01/imageflow/store"
	"github.com/BaSui01/imageflow/task"
	"github.com/BaSui01/imageflow/testutil"
	"github.com/BaSui01/imageflow/types"
)

type stubLookup struct {
	jobs map[string]*task.Job
	err  error
}

func (s stubLookup) Lookup(ctx context.Context, id string) (*task.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, task.ErrJobNotFound
	}
	return job, nil
}

func statusJSON(t *testing.T, s JobStatus) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data)
}

func TestStatusReporter_Translation(t *testing.T) {
	reporter := NewStatusReporter(stubLookup{jobs: map[string]*task.Job{
		"done":    {ID: "done", State: task.StateSucceeded, Result: "/generated_images/x.png"},
		"empty":   {ID: "empty", State: task.StateSucceeded},
		"pending": {ID: "pending", State: task.StatePending},
		"running": {ID: "running", State: task.StateRunning},
		"failed":  {ID: "failed", State: task.StateFailed, Error: "job panicked: boom"},
		"odd":     {ID: "odd", State: task.State("retrying"), Result: "attempt 2"},
	}}, nil, nil)

	tests := []struct {
		id       string
		expected string
		terminal bool
	}{
		{"done", `{"status":"Completed","image_url":"https://h//generated_images/x.png"}`, true},
		{"empty", `{"status":"Failed","error":"No image URL returned"}`, true},
		{"pending", `{"status":"pending","result":null}`, false},
		{"running", `{"status":"running","result":null}`, false},
		{"failed", `{"status":"failed","result":"job panicked: boom"}`, true},
		{"odd", `{"status":"retrying","result":"attempt 2"}`, false},
		{"unknown-id", `{"status":"pending","result":null}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			status, err := reporter.Status(context.Background(), tt.id, "https://h/")
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, statusJSON(t, status))
			assert.Equal(t, tt.terminal, status.Terminal())
		})
	}
}

func TestStatusReporter_LookupError(t *testing.T) {
	reporter := NewStatusReporter(stubLookup{err: errors.New("redis: connection refused")}, store.NewMemoryStore(), staticURLs{})

	_, err := reporter.Status(context.Background(), "x", "https://h")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInternalError))
}

type staticURLs struct{}

func (staticURLs) URL(ref string) string { return "/media/" + ref }

type brokenRecords struct{}

func (brokenRecords) FindByJobID(ctx context.Context, jobID string) (*store.GenerationRecord, error) {
	return nil, errors.New("database is locked")
}

func TestStatusReporter_ForgottenJobFallsBackToRecord(t *testing.T) {
	ctx := context.Background()
	records := store.NewMemoryStore()
	_, err := records.Upsert(ctx, "a cat", "generated_images/a_cat_1a2b3c4d.png", "expired-job")
	require.NoError(t, err)

	reporter := NewStatusReporter(stubLookup{}, records, staticURLs{})

	status, err := reporter.Status(ctx, "expired-job", "https://h")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Completed","image_url":"https://h/media/generated_images/a_cat_1a2b3c4d.png"}`, statusJSON(t, status))
	assert.True(t, status.Terminal())

	status, err = reporter.Status(ctx, "never-seen", "https://h")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"pending","result":null}`, statusJSON(t, status))
}

func TestStatusReporter_RecordLookupError(t *testing.T) {
	reporter := NewStatusReporter(stubLookup{}, brokenRecords{}, staticURLs{})

	_, err := reporter.Status(context.Background(), "expired-job", "https://h")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInternalError))
}

func TestStatusReporter_CompletedAfterQueueRestart(t *testing.T) {
	h := newHarness(t, successProvider())
	ctx := testutil.TestContext(t)

	_, pollURL, err := h.dispatcher.Dispatch(ctx, "a cat", "https://h")
	require.NoError(t, err)
	jobID := strings.TrimPrefix(pollURL, "https://h/result/")
	require.Equal(t, task.StateSucceeded, h.waitTerminal(t, jobID).State)

	// 新队列使用空的内存后端, 生成记录与图片文件保留
	queue := task.NewQueue(task.NewMemoryBackend(0), task.Options{Workers: 1, QueueSize: 4}, nil, zap.NewNop())
	t.Cleanup(func() { _ = queue.Close(context.Background()) })
	queue.Register(JobName, h.runner.Handle)

	dispatcher := NewDispatcher(h.store, queue, 0, nil, zap.NewNop())
	_, again, err := dispatcher.Dispatch(ctx, "a cat", "https://h")
	require.NoError(t, err)
	assert.Equal(t, pollURL, again)

	status, err := NewStatusReporter(queue, h.store, h.blobs).Status(ctx, jobID, "https://h")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, "https://h"+h.blobs.URL(blob.FileName("a cat", "png")), status.ImageURL)
	assert.Equal(t, 1, h.provider.GetCallCount())
}
