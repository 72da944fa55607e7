package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/generation"
)

// =============================================================================
// 🔍 任务状态 Handler
// =============================================================================

const (
	defaultWatchInterval = 2 * time.Second
	watchWriteTimeout    = 10 * time.Second
)

// StatusSource 查询单个任务的对外状态
type StatusSource interface {
	Status(ctx context.Context, jobID, baseURL string) (generation.JobStatus, error)
}

// ResultHandler 处理 /result/{id} 与 /result/{id}/watch
type ResultHandler struct {
	status        StatusSource
	publicBaseURL string
	interval      time.Duration
	logger        *zap.Logger
}

// NewResultHandler 创建任务状态处理器。interval 为 websocket 推送间隔。
func NewResultHandler(status StatusSource, publicBaseURL string, interval time.Duration, logger *zap.Logger) *ResultHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	return &ResultHandler{
		status:        status,
		publicBaseURL: publicBaseURL,
		interval:      interval,
		logger:        logger.With(zap.String("handler", "result")),
	}
}

// HandleResult 处理 /result/{id}
// @Summary 查询任务状态
// @Description 未知任务返回 pending
// @Tags 生成
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} generation.JobStatus "任务状态"
// @Failure 400 {object} ErrorBody "缺少任务 ID"
// @Router /result/{id} [get]
func (h *ResultHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteBareError(w, http.StatusBadRequest, MsgMissingTaskID)
		return
	}

	status, err := h.status.Status(r.Context(), id, BaseURL(r, h.publicBaseURL))
	if err != nil {
		h.logger.Error("status lookup failed", zap.String("job_id", id), zap.Error(err))
		WriteBareError(w, http.StatusInternalServerError, MsgStatusLookupErr)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleWatch 处理 /result/{id}/watch，通过 websocket 周期推送状态直到任务结束
func (h *ResultHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteBareError(w, http.StatusBadRequest, MsgMissingTaskID)
		return
	}
	base := BaseURL(r, h.publicBaseURL)

	// 长连接不受服务器读写超时约束
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		status, err := h.status.Status(ctx, id, base)
		if err != nil {
			h.logger.Error("status lookup failed", zap.String("job_id", id), zap.Error(err))
			conn.Close(websocket.StatusInternalError, MsgStatusLookupErr)
			return
		}

		if err := h.push(ctx, conn, status); err != nil {
			h.logger.Debug("watch ended", zap.String("job_id", id), zap.Error(err))
			return
		}

		if status.Terminal() {
			conn.Close(websocket.StatusNormalClosure, status.Status)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *ResultHandler) push(ctx context.Context, conn *websocket.Conn, status generation.JobStatus) error {
	ctx, cancel := context.WithTimeout(ctx, watchWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, status)
}
