package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/imageflow/types"
)

// OpenAIProvider 使用 OpenAI images 接口生成图片, 固定请求 b64_json 格式.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIProvider 创建新的 OpenAI 图像提供者.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	def := DefaultOpenAIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Width == 0 {
		cfg.Width = def.Width
	}
	if cfg.Height == 0 {
		cfg.Height = def.Height
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = def.Timeout
	}

	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *OpenAIProvider) Name() string { return "openai-image" }

type dalleRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type dalleResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		B64JSON       string `json:"b64_json,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// Generate 从文本提示生成图像.
func (p *OpenAIProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "prompt is required").WithProvider(p.Name())
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	width, height := dimensions(req, p.cfg.Width, p.cfg.Height)
	n := req.Samples
	if n == 0 {
		n = 1
	}

	payload, err := json.Marshal(dalleRequest{
		Model:          model,
		Prompt:         req.Prompt,
		N:              n,
		Size:           formatSize(width, height),
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/images/generations",
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, statusError(p.Name(), resp.StatusCode, errBody)
	}

	var dResp dalleResponse
	if err := json.NewDecoder(resp.Body).Decode(&dResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to decode dalle response").
			WithCause(err).
			WithProvider(p.Name())
	}
	if len(dResp.Data) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "dalle returned no images").WithProvider(p.Name())
	}

	images := make([]ImageData, len(dResp.Data))
	for i, d := range dResp.Data {
		images[i] = ImageData{
			B64JSON:       d.B64JSON,
			RevisedPrompt: d.RevisedPrompt,
		}
	}

	created := time.Now()
	if dResp.Created > 0 {
		created = time.Unix(dResp.Created, 0)
	}

	return &GenerateResponse{
		Provider:  p.Name(),
		Model:     model,
		Images:    images,
		CreatedAt: created,
	}, nil
}
