// MockProvider 的图片生成提供者测试模拟实现。
//
// 支持固定响应、空结果、按 prompt 注入错误、延迟与调用记录。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/imageflow/image"
)

// MockProvider 是 image.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	b64          string
	emptyResult  bool
	err          error
	promptErrors map[string]error
	delay        time.Duration

	calls []MockProviderCall
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *image.GenerateRequest
	Response *image.GenerateResponse
	Error    error
}

var _ image.Provider = (*MockProvider)(nil)

// NewMockProvider 创建不含图片的 MockProvider，通常配合 With* 使用
func NewMockProvider() *MockProvider {
	return &MockProvider{promptErrors: make(map[string]error)}
}

// NewSuccessProvider 创建总是返回给定图片的 Provider
func NewSuccessProvider(b64 string) *MockProvider {
	m := NewMockProvider()
	m.b64 = b64
	return m
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *MockProvider {
	m := NewMockProvider()
	m.err = err
	return m
}

// WithEmptyResult 返回成功但不含图片的响应
func (m *MockProvider) WithEmptyResult() *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptyResult = true
	return m
}

// WithPromptError 对指定 prompt 返回错误
func (m *MockProvider) WithPromptError(prompt string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptErrors[prompt] = err
	return m
}

// WithDelay 每次调用前等待 d，ctx 取消时提前返回
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Generate(ctx context.Context, req *image.GenerateRequest) (*image.GenerateResponse, error) {
	m.mu.RLock()
	delay := m.delay
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			m.record(MockProviderCall{Request: req, Error: ctx.Err()})
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.err
	if perr, ok := m.promptErrors[req.Prompt]; ok {
		err = perr
	}
	if err != nil {
		m.calls = append(m.calls, MockProviderCall{Request: req, Error: err})
		return nil, err
	}

	resp := &image.GenerateResponse{
		Provider:  "mock",
		Model:     req.Model,
		CreatedAt: time.Now(),
	}
	if !m.emptyResult {
		resp.Images = []image.ImageData{{B64JSON: m.b64, FinishReason: "SUCCESS"}}
	}
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp})
	return resp, nil
}

func (m *MockProvider) record(call MockProviderCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// GetCalls 返回调用记录副本
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall(nil), m.calls...)
}

// GetCallCount 返回调用次数，包括失败与被取消的调用
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}
