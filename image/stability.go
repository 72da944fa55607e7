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

// StabilityProvider 使用 Stability AI v1 text-to-image 接口生成图片.
type StabilityProvider struct {
	cfg    StabilityConfig
	client *http.Client
}

// NewStabilityProvider 创建 Stability AI 提供者, 未设置的字段使用默认值.
func NewStabilityProvider(cfg StabilityConfig) *StabilityProvider {
	def := DefaultStabilityConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Engine == "" {
		cfg.Engine = def.Engine
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

	return &StabilityProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *StabilityProvider) Name() string { return "stability" }

type stabilityTextPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight,omitempty"`
}

type stabilityRequest struct {
	TextPrompts []stabilityTextPrompt `json:"text_prompts"`
	Width       int                   `json:"width"`
	Height      int                   `json:"height"`
	Samples     int                   `json:"samples,omitempty"`
	Seed        int64                 `json:"seed,omitempty"`
}

type stabilityResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		Seed         int64  `json:"seed"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

// Generate 从文本提示生成图像, 请求未指定宽高时使用配置中的宽高.
func (p *StabilityProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "prompt is required").WithProvider(p.Name())
	}

	engine := req.Model
	if engine == "" {
		engine = p.cfg.Engine
	}

	width, height := dimensions(req, p.cfg.Width, p.cfg.Height)
	body := stabilityRequest{
		TextPrompts: []stabilityTextPrompt{{Text: req.Prompt}},
		Width:       width,
		Height:      height,
		Samples:     req.Samples,
		Seed:        req.Seed,
	}
	if req.NegativePrompt != "" {
		body.TextPrompts = append(body.TextPrompts, stabilityTextPrompt{Text: req.NegativePrompt, Weight: -1})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/generation/%s/text-to-image", strings.TrimRight(p.cfg.BaseURL, "/"), engine)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
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

	var sResp stabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&sResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to decode stability response").
			WithCause(err).
			WithProvider(p.Name())
	}
	if len(sResp.Artifacts) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "stability returned no artifacts").WithProvider(p.Name())
	}

	images := make([]ImageData, len(sResp.Artifacts))
	for i, a := range sResp.Artifacts {
		images[i] = ImageData{
			B64JSON:      a.Base64,
			Seed:         a.Seed,
			FinishReason: a.FinishReason,
		}
	}

	return &GenerateResponse{
		Provider:  p.Name(),
		Model:     engine,
		Images:    images,
		CreatedAt: time.Now(),
	}, nil
}
