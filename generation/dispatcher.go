package generation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/store"
	"github.com/BaSui01/imageflow/types"
)

// DefaultMaxPromptLength 与生成记录 prompt 列宽一致.
const DefaultMaxPromptLength = 255

// Submitter 提交异步任务并返回任务 ID.
type Submitter interface {
	Submit(ctx context.Context, name string, payload any) (string, error)
}

// Dispatcher 把 prompt 映射为已有记录的任务 ID 或新提交的任务 ID.
//
// 查找与提交之间不是原子的: 两个进程同时分发同一个新 prompt 可能各提交一次,
// 记录由 Upsert 保证唯一, 以最后写入为准. 同一进程内的并发分发通过
// singleflight 合并为一次.
type Dispatcher struct {
	store           store.Store
	queue           Submitter
	maxPromptLength int
	metrics         *metrics.Collector
	logger          *zap.Logger
	inflight        singleflight.Group
}

// NewDispatcher 创建 Dispatcher. maxPromptLength <= 0 时使用 DefaultMaxPromptLength.
func NewDispatcher(records store.Store, queue Submitter, maxPromptLength int, collector *metrics.Collector, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPromptLength <= 0 {
		maxPromptLength = DefaultMaxPromptLength
	}
	return &Dispatcher{
		store:           records,
		queue:           queue,
		maxPromptLength: maxPromptLength,
		metrics:         collector,
		logger:          logger.With(zap.String("component", "dispatcher")),
	}
}

// Dispatch 返回 prompt 和其状态查询 URL ({baseURL}/result/{jobID}).
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, baseURL string) (string, string, error) {
	if err := d.validate(prompt); err != nil {
		d.metrics.RecordDispatch("invalid")
		return prompt, "", err
	}

	// 合并后的查找与提交不随发起者的请求取消
	v, err, shared := d.inflight.Do(prompt, func() (any, error) {
		return d.resolve(context.WithoutCancel(ctx), prompt)
	})
	if err != nil {
		d.metrics.RecordDispatch("error")
		return prompt, "", err
	}

	res := v.(resolution)
	switch {
	case shared:
		d.metrics.RecordDispatch("shared")
	case res.reused:
		d.metrics.RecordDispatch("reused")
	default:
		d.metrics.RecordDispatch("submitted")
	}
	return prompt, PollURL(baseURL, res.jobID), nil
}

type resolution struct {
	jobID  string
	reused bool
}

func (d *Dispatcher) resolve(ctx context.Context, prompt string) (resolution, error) {
	rec, err := d.store.Find(ctx, prompt)
	switch {
	case err == nil && rec.HasJob():
		d.logger.Debug("reusing existing generation",
			zap.String("prompt", prompt),
			zap.String("job_id", rec.JobRef()))
		return resolution{jobID: rec.JobRef(), reused: true}, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return resolution{}, types.NewError(types.ErrInternalError, "failed to look up prompt").WithCause(err)
	}

	jobID, err := d.queue.Submit(ctx, JobName, Payload{Prompt: prompt})
	if err != nil {
		return resolution{}, types.NewError(types.ErrSubstrate, "failed to submit generation job").
			WithCause(err).
			WithRetryable(true)
	}

	d.logger.Info("generation job submitted",
		zap.String("prompt", prompt),
		zap.String("job_id", jobID))
	return resolution{jobID: jobID}, nil
}

func (d *Dispatcher) validate(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return types.NewError(types.ErrInvalidRequest, "prompt is empty").WithHTTPStatus(http.StatusBadRequest)
	}
	if n := utf8.RuneCountInString(prompt); n > d.maxPromptLength {
		return types.NewError(types.ErrInvalidRequest, "prompt exceeds maximum length").WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

// PollURL 构造任务状态查询 URL.
func PollURL(baseURL, jobID string) string {
	return strings.TrimRight(baseURL, "/") + "/result/" + jobID
}
