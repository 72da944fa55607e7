package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/imageflow/generation"
	"go.uber.org/zap"
)

// =============================================================================
// 🎨 生成请求 Handler
// =============================================================================

// 生成端点的错误文案，客户端依赖这些字符串
const (
	MsgMissingPrompts  = "Please provide a prompts in query params"
	MsgNoValidPrompts  = "No valid prompts provided"
	MsgMissingTaskID   = "Task ID not provided"
	MsgStatusLookupErr = "Failed to look up task status"
)

// BatchDispatcher 批量分发 prompt 的能力
type BatchDispatcher interface {
	DispatchAll(ctx context.Context, prompts []string, baseURL string) map[string]string
}

// GenerateHandler 处理 GET /generate
type GenerateHandler struct {
	batch         BatchDispatcher
	publicBaseURL string
	logger        *zap.Logger
}

// NewGenerateHandler 创建生成请求处理器
func NewGenerateHandler(batch BatchDispatcher, publicBaseURL string, logger *zap.Logger) *GenerateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerateHandler{
		batch:         batch,
		publicBaseURL: publicBaseURL,
		logger:        logger.With(zap.String("handler", "generate")),
	}
}

// HandleGenerate 处理 /generate?prompts=a,b,c
// @Summary 批量提交图片生成
// @Description 每个 prompt 返回一个轮询地址，或者失败原因
// @Tags 生成
// @Produce json
// @Param prompts query string true "逗号分隔的 prompt 列表"
// @Success 200 {object} map[string]string "prompt → 轮询 URL 或错误信息"
// @Failure 400 {object} ErrorBody "参数错误"
// @Router /generate [get]
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("prompts")
	if strings.TrimSpace(raw) == "" {
		WriteBareError(w, http.StatusBadRequest, MsgMissingPrompts)
		return
	}

	prompts, err := generation.ParsePrompts(raw)
	if err != nil {
		WriteBareError(w, http.StatusBadRequest, MsgNoValidPrompts)
		return
	}

	results := h.batch.DispatchAll(r.Context(), prompts, BaseURL(r, h.publicBaseURL))

	h.logger.Debug("batch dispatched",
		zap.Int("prompts", len(prompts)),
		zap.Int("results", len(results)),
	)
	WriteJSON(w, http.StatusOK, results)
}
