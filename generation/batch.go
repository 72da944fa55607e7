package generation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/types"
)

// DefaultBatchWidth 是单次请求内的最大并发分发数.
const DefaultBatchWidth = 5

// PromptDispatcher 分发单个 prompt.
type PromptDispatcher interface {
	Dispatch(ctx context.Context, prompt, baseURL string) (string, string, error)
}

// BatchCoordinator 在有界并发下为一组 prompt 执行分发.
type BatchCoordinator struct {
	dispatcher PromptDispatcher
	width      int
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewBatchCoordinator 创建 BatchCoordinator. width <= 0 时使用 DefaultBatchWidth.
func NewBatchCoordinator(dispatcher PromptDispatcher, width int, collector *metrics.Collector, logger *zap.Logger) *BatchCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if width <= 0 {
		width = DefaultBatchWidth
	}
	return &BatchCoordinator{
		dispatcher: dispatcher,
		width:      width,
		metrics:    collector,
		logger:     logger.With(zap.String("component", "batch_coordinator")),
	}
}

// ParsePrompts 按逗号拆分, 去除首尾空白, 丢弃空段, 按首次出现去重.
func ParsePrompts(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	prompts := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		prompts = append(prompts, p)
	}

	if len(prompts) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "No valid prompts provided").WithHTTPStatus(http.StatusBadRequest)
	}
	return prompts, nil
}

// DispatchAll 并发分发所有 prompt, 返回 prompt 到状态 URL 或错误信息的映射.
// 单个 prompt 失败不影响其他 prompt; 等待全部完成后返回, 不设超时.
func (b *BatchCoordinator) DispatchAll(ctx context.Context, prompts []string, baseURL string) map[string]string {
	start := time.Now()
	results := make(map[string]string, len(prompts))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(b.width)

	for _, prompt := range prompts {
		g.Go(func() error {
			value := b.dispatchOne(ctx, prompt, baseURL)

			mu.Lock()
			results[prompt] = value
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	b.metrics.RecordBatch(len(prompts), time.Since(start))
	b.logger.Debug("batch dispatched",
		zap.Int("prompts", len(prompts)),
		zap.Duration("duration", time.Since(start)))
	return results
}

func (b *BatchCoordinator) dispatchOne(ctx context.Context, prompt, baseURL string) (value string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("dispatch panicked", zap.String("prompt", prompt), zap.Any("panic", r))
			value = fmt.Sprintf("dispatch panicked: %v", r)
		}
	}()

	_, url, err := b.dispatcher.Dispatch(ctx, prompt, baseURL)
	switch {
	case types.IsCode(err, types.ErrInvalidRequest):
		b.logger.Debug("prompt rejected", zap.String("prompt", prompt), zap.Error(err))
		return err.Error()
	case err != nil:
		b.logger.Warn("dispatch failed",
			zap.String("prompt", prompt),
			zap.Bool("retryable", types.IsRetryable(err)),
			zap.Error(err))
		return err.Error()
	}
	return url
}
