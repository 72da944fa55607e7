package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("stability")

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "[UPSTREAM_ERROR] upstream failed: root", err.Error())
	assert.Equal(t, "stability", err.Provider)
}

func TestGetErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrSubstrate, "queue full")
	wrapped := fmt.Errorf("dispatch %q: %w", "a cat", inner)

	assert.Equal(t, ErrSubstrate, GetErrorCode(wrapped))
	assert.True(t, IsCode(wrapped, ErrSubstrate))
	assert.False(t, IsCode(wrapped, ErrNoResult))
	assert.False(t, IsRetryable(wrapped))
}

func TestGetErrorCode_PlainError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.Equal(t, "[NO_RESULT] nothing", NewError(ErrNoResult, "nothing").Error())
}
