// Package blob 管理生成图片文件的落盘与对外 URL.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidRef 表示引用越出媒体根目录或为空.
var ErrInvalidRef = errors.New("invalid blob reference")

const maxStemLength = 100

// Storage 保存图片字节并解析其 URL.
type Storage interface {
	// Save 写入 name 并返回相对媒体根目录的引用, 同名文件被覆盖.
	Save(ctx context.Context, name string, data []byte) (string, error)
	// Open 读取引用对应的文件.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// URL 返回引用对应的可访问 URL (相对站点根路径).
	URL(ref string) string
}

// LocalStorage 把文件写在本地媒体根目录下.
type LocalStorage struct {
	root      string
	mediaURL  string
	uploadDir string
	logger    *zap.Logger
}

// NewLocalStorage 创建本地存储, 必要时创建上传目录.
func NewLocalStorage(root, mediaURL, uploadDir string, logger *zap.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if root == "" {
		return nil, fmt.Errorf("media root is required")
	}
	if mediaURL == "" {
		mediaURL = "/media/"
	}
	if !strings.HasSuffix(mediaURL, "/") {
		mediaURL += "/"
	}
	uploadDir = strings.Trim(uploadDir, "/")

	if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(uploadDir)), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &LocalStorage{
		root:      root,
		mediaURL:  mediaURL,
		uploadDir: uploadDir,
		logger:    logger.With(zap.String("component", "blob_storage")),
	}, nil
}

// Root 返回媒体根目录.
func (s *LocalStorage) Root() string { return s.root }

// MediaURL 返回媒体 URL 前缀, 以 "/" 结尾.
func (s *LocalStorage) MediaURL() string { return s.mediaURL }

// Save 先写临时文件再 rename, 读者不会看到半截文件.
func (s *LocalStorage) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "", ErrInvalidRef
	}

	ref := path.Join(s.uploadDir, name)
	full, err := s.resolve(ref)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close image: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to chmod image: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move image into place: %w", err)
	}

	s.logger.Debug("image saved", zap.String("ref", ref), zap.Int("bytes", len(data)))
	return ref, nil
}

// Open 打开引用对应的文件.
func (s *LocalStorage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	full, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// URL 拼接媒体 URL 前缀和引用.
func (s *LocalStorage) URL(ref string) string {
	return s.mediaURL + strings.TrimPrefix(ref, "/")
}

func (s *LocalStorage) resolve(ref string) (string, error) {
	clean := path.Clean("/" + ref)
	if clean == "/" {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// FileName 根据 prompt 和图片格式生成确定性的文件名:
// 非 [A-Za-z0-9_-] 字符替换为 "_", 截断到 100 字符, 再追加 sha256 前 8 位.
// 扩展名由 format 决定 (jpeg 为 .jpg), 为空时使用 .png.
func FileName(prompt, format string) string {
	var b strings.Builder
	for _, r := range prompt {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	stem := b.String()
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}

	sum := sha256.Sum256([]byte(prompt))
	return stem + "_" + hex.EncodeToString(sum[:])[:8] + extension(format)
}

func extension(format string) string {
	switch format {
	case "", "png":
		return ".png"
	case "jpeg":
		return ".jpg"
	default:
		return "." + format
	}
}
