package image

import (
	"fmt"
	"time"
)

// StabilityConfig 配置 Stability AI 提供者.
type StabilityConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Engine  string        `json:"engine,omitempty" yaml:"engine,omitempty"` // stable-diffusion-xl-1024-v1-0
	Width   int           `json:"width,omitempty" yaml:"width,omitempty"`
	Height  int           `json:"height,omitempty" yaml:"height,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIConfig 配置 OpenAI 图片生成提供者.
type OpenAIConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // dall-e-3, gpt-image-1
	Width   int           `json:"width,omitempty" yaml:"width,omitempty"`
	Height  int           `json:"height,omitempty" yaml:"height,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultStabilityConfig 返回默认 Stability AI 配置.
func DefaultStabilityConfig() StabilityConfig {
	return StabilityConfig{
		BaseURL: "https://api.stability.ai",
		Engine:  "stable-diffusion-xl-1024-v1-0",
		Width:   1024,
		Height:  1024,
		Timeout: 120 * time.Second,
	}
}

// DefaultOpenAIConfig 返回默认 OpenAI 图像配置.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "dall-e-3",
		Width:   1024,
		Height:  1024,
		Timeout: 120 * time.Second,
	}
}

// dimensions 返回请求指定的宽高, 未指定的边使用配置值.
func dimensions(req *GenerateRequest, width, height int) (int, int) {
	if req.Width > 0 {
		width = req.Width
	}
	if req.Height > 0 {
		height = req.Height
	}
	return width, height
}

func formatSize(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}
