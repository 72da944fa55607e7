package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/BaSui01/imageflow/types"
)

// transportError 把网络层错误转换为 UPSTREAM_* 错误.
func transportError(provider string, err error) *types.Error {
	code := types.ErrUpstreamError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = types.ErrUpstreamTimeout
	}
	return types.NewError(code, provider+" request failed").
		WithCause(err).
		WithProvider(provider).
		WithHTTPStatus(http.StatusBadGateway)
}

// statusError 从错误响应体中提取服务商的 message 字段.
func statusError(provider string, status int, body []byte) *types.Error {
	msg := strings.TrimSpace(string(body))

	var parsed struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Message != "":
			msg = parsed.Message
		case parsed.Error.Message != "":
			msg = parsed.Error.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	return types.NewError(types.ErrUpstreamError, fmt.Sprintf("%s error: status=%d message=%s", provider, status, msg)).
		WithProvider(provider).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
}
