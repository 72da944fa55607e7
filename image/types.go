package image

import (
	"context"
	"time"
)

// GenerateRequest 代表一次文生图请求.
type GenerateRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Model          string `json:"model,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Samples        int    `json:"samples,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
}

// GenerateResponse 代表生成结果, Images 按服务商返回顺序排列.
type GenerateResponse struct {
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	Images    []ImageData `json:"images"`
	CreatedAt time.Time   `json:"created_at"`
}

// First 返回第一张图片, 没有图片时返回 false.
func (r *GenerateResponse) First() (ImageData, bool) {
	if r == nil || len(r.Images) == 0 {
		return ImageData{}, false
	}
	return r.Images[0], true
}

// ImageData 代表一张生成的图片 (base64 编码).
type ImageData struct {
	B64JSON       string `json:"b64_json,omitempty"`
	Seed          int64  `json:"seed,omitempty"`
	FinishReason  string `json:"finish_reason,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// Provider 定义了图像生成提供者接口.
//
// 实现只做请求/响应转换, 不保存状态, 也不做重试.
type Provider interface {
	// Generate 从文本提示生成图像.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Name 返回提供者名称.
	Name() string
}
