package image

import (
	"bytes"
	"encoding/base64"
	stdimage "image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/BaSui01/imageflow/types"
)

// Decoded 是解码并校验后的图片.
type Decoded struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Decode 解码 base64 图片并校验其为可识别的 PNG/JPEG.
// 支持带 data URI 前缀的输入.
func Decode(b64 string) (*Decoded, error) {
	b64 = strings.TrimSpace(b64)
	if i := strings.Index(b64, ";base64,"); i >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+len(";base64,"):]
	}
	if b64 == "" {
		return nil, types.NewError(types.ErrInvalidImage, "empty image payload")
	}

	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidImage, "invalid base64 image payload").WithCause(err)
	}

	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidImage, "payload is not a supported image").WithCause(err)
	}

	return &Decoded{
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
