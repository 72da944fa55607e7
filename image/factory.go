package image

import (
	"fmt"
	"strings"

	"github.com/BaSui01/imageflow/config"
)

// NewProvider 按 provider.name 构建图片生成提供者.
func NewProvider(cfg config.ProviderConfig) (Provider, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "stability":
		return NewStabilityProvider(StabilityConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Engine:  cfg.Model,
			Width:   cfg.Width,
			Height:  cfg.Height,
			Timeout: cfg.Timeout,
		}), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Width:   cfg.Width,
			Height:  cfg.Height,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown image provider: %s", cfg.Name)
	}
}
