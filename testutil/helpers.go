package testutil

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"
)

// TestContext 返回 30 秒超时的测试上下文，测试结束时取消
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// 🖼️ 图片样本
// =============================================================================

func solid(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := color.RGBA{R: 0x33, G: 0x99, B: 0xcc, A: 0xff}
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

// PNGBytes 生成指定尺寸的纯色 PNG
func PNGBytes(width, height int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(width, height)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEGBase64 返回指定尺寸纯色 JPEG 的 base64 编码
func JPEGBase64(width, height int) string {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(width, height), nil); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// PNGBase64 返回 PNGBytes 的 base64 编码，即提供者响应中的图片字段
func PNGBase64(width, height int) string {
	return base64.StdEncoding.EncodeToString(PNGBytes(width, height))
}
