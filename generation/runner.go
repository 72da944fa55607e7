package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/blob"
	"github.com/BaSui01/imageflow/image"
	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/store"
	"github.com/BaSui01/imageflow/task"
	"github.com/BaSui01/imageflow/types"
)

// JobName 是生成任务在队列中注册的名称.
const JobName = "generate_image"

// Payload 是生成任务的参数.
type Payload struct {
	Prompt string `json:"prompt"`
}

// Outcome 是一次生成的结果: 成功时 URL 非空, 失败时 Failure 非空.
type Outcome struct {
	URL     string
	Failure error
}

// Failed 返回本次生成是否失败.
func (o Outcome) Failed() bool { return o.Failure != nil }

// Runner 调用图片服务, 保存图片文件并写入生成记录.
type Runner struct {
	provider image.Provider
	store    store.Store
	blobs    blob.Storage
	metrics  *metrics.Collector
	tracer   trace.Tracer
	sizes    metric.Int64Histogram
	logger   *zap.Logger
}

// NewRunner 创建 Runner. collector 可以为 nil.
func NewRunner(provider image.Provider, records store.Store, blobs blob.Storage, collector *metrics.Collector, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "job_runner"))

	sizes, err := otel.Meter("github.com/BaSui01/imageflow/generation").Int64Histogram(
		"imageflow.image.size",
		metric.WithUnit("By"),
		metric.WithDescription("Size of stored generated images"),
	)
	if err != nil {
		logger.Warn("failed to create image size histogram", zap.Error(err))
		sizes = noop.Int64Histogram{}
	}

	return &Runner{
		provider: provider,
		store:    records,
		blobs:    blobs,
		metrics:  collector,
		tracer:   otel.Tracer("github.com/BaSui01/imageflow/generation"),
		sizes:    sizes,
		logger:   logger,
	}
}

// Handle 实现 task.Handler. 生成失败只记录日志, 任务以空结果成功结束,
// 调用方通过状态查询得到 "No image URL returned".
func (r *Runner) Handle(ctx context.Context, job *task.Job) (string, error) {
	var p Payload
	if err := job.Decode(&p); err != nil {
		return "", fmt.Errorf("invalid %s payload: %w", JobName, err)
	}

	out := r.Run(ctx, job.ID, p.Prompt)
	if out.Failed() {
		return "", nil
	}
	return out.URL, nil
}

// Run 为 prompt 生成图片并以 jobID 写入记录.
func (r *Runner) Run(ctx context.Context, jobID, prompt string) Outcome {
	ctx, span := r.tracer.Start(ctx, "generation.run", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.Int("prompt.length", len(prompt)),
		attribute.String("provider", r.provider.Name()),
	))
	defer span.End()

	url, err := r.generate(ctx, jobID, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("image generation failed",
			zap.String("job_id", jobID),
			zap.String("prompt", prompt),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		return Outcome{Failure: err}
	}

	span.SetStatus(codes.Ok, "")
	r.logger.Info("image generated",
		zap.String("job_id", jobID),
		zap.String("prompt", prompt),
		zap.String("url", url))
	return Outcome{URL: url}
}

func (r *Runner) generate(ctx context.Context, jobID, prompt string) (string, error) {
	start := time.Now()
	resp, err := r.provider.Generate(ctx, &image.GenerateRequest{Prompt: prompt})
	model := ""
	if resp != nil {
		model = resp.Model
	}
	if err != nil {
		r.metrics.RecordImageRequest(r.provider.Name(), model, "error", time.Since(start))
		return "", err
	}
	r.metrics.RecordImageRequest(r.provider.Name(), model, "success", time.Since(start))

	first, ok := resp.First()
	if !ok || first.B64JSON == "" {
		return "", types.NewError(types.ErrNoResult, "provider returned no image").WithProvider(r.provider.Name())
	}

	decoded, err := image.Decode(first.B64JSON)
	if err != nil {
		return "", err
	}

	ref, err := r.blobs.Save(ctx, blob.FileName(prompt, decoded.Format), decoded.Data)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	r.sizes.Record(ctx, int64(len(decoded.Data)), metric.WithAttributes(
		attribute.String("provider", r.provider.Name()),
		attribute.String("format", decoded.Format),
	))

	if _, err := r.store.Upsert(ctx, prompt, ref, jobID); err != nil {
		if errors.Is(err, store.ErrDuplicateJobID) {
			return "", types.NewError(types.ErrInternalError, "job id already recorded for another prompt").WithCause(err)
		}
		return "", fmt.Errorf("failed to record generation: %w", err)
	}

	return r.blobs.URL(ref), nil
}
