package handlers

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/blob"
	"github.com/BaSui01/imageflow/store"
	"github.com/BaSui01/imageflow/types"
)

// =============================================================================
// 🖼️ 生成记录与媒体文件 Handler
// =============================================================================

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RecordLister 列出生成记录
type RecordLister interface {
	List(ctx context.Context, limit int) ([]store.GenerationRecord, error)
}

// ImageRecord 生成记录的对外表示
type ImageRecord struct {
	ID        uint      `json:"id"`
	Prompt    string    `json:"prompt"`
	ImageURL  string    `json:"image_url,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImagesHandler 处理 /api/v1/images 与媒体文件下载
type ImagesHandler struct {
	records       RecordLister
	blobs         blob.Storage
	publicBaseURL string
	logger        *zap.Logger
}

// NewImagesHandler 创建生成记录处理器
func NewImagesHandler(records RecordLister, blobs blob.Storage, publicBaseURL string, logger *zap.Logger) *ImagesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImagesHandler{
		records:       records,
		blobs:         blobs,
		publicBaseURL: publicBaseURL,
		logger:        logger.With(zap.String("handler", "images")),
	}
}

// HandleList 处理 /api/v1/images?limit=N
// @Summary 最近的生成记录
// @Tags 生成
// @Produce json
// @Param limit query int false "返回条数，默认 50，最大 500"
// @Success 200 {object} Response "生成记录列表"
// @Failure 400 {object} Response "参数错误"
// @Router /api/v1/images [get]
func (h *ImagesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a positive integer", h.logger)
			return
		}
		limit = min(n, maxListLimit)
	}

	recs, err := h.records.List(r.Context(), limit)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to list images").WithCause(err), h.logger)
		return
	}

	base := BaseURL(r, h.publicBaseURL)
	out := make([]ImageRecord, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		item := ImageRecord{
			ID:        rec.ID,
			Prompt:    rec.Prompt,
			JobID:     rec.JobRef(),
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
		if rec.Image != "" {
			item.ImageURL = base + h.blobs.URL(rec.Image)
		}
		out = append(out, item)
	}

	WriteSuccess(w, out)
}

// ServeMedia 返回在 prefix 下提供媒体文件的 Handler
func (h *ImagesHandler) ServeMedia(prefix string) http.Handler {
	return http.StripPrefix(strings.TrimSuffix(prefix, "/"), http.HandlerFunc(h.handleMedia))
}

func (h *ImagesHandler) handleMedia(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimPrefix(r.URL.Path, "/")
	if ref == "" || strings.HasSuffix(ref, "/") {
		http.NotFound(w, r)
		return
	}

	rc, err := h.blobs.Open(r.Context(), ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, blob.ErrInvalidRef) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("failed to open media", zap.String("ref", ref), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	var modTime time.Time
	if f, ok := rc.(*os.File); ok {
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		modTime = info.ModTime()
	}

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(ref), modTime, rs)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, rc)
}
