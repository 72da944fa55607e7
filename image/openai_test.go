package image

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/imageflow/testutil"
	"github.com/BaSui01/imageflow/types"
)

func TestOpenAIProvider_Generate(t *testing.T) {
	png := testutil.PNGBase64(2, 2)

	var gotBody dalleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-openai", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"created":1700000000,"data":[{"b64_json":"` + png + `","revised_prompt":"a cat, photo"}]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-openai", BaseURL: server.URL})
	resp, err := p.Generate(testutil.TestContext(t), &GenerateRequest{Prompt: "a cat"})
	require.NoError(t, err)

	assert.Equal(t, "dall-e-3", gotBody.Model)
	assert.Equal(t, "1024x1024", gotBody.Size)
	assert.Equal(t, "b64_json", gotBody.ResponseFormat)
	assert.Equal(t, 1, gotBody.N)

	first, ok := resp.First()
	require.True(t, ok)
	assert.Equal(t, png, first.B64JSON)
	assert.Equal(t, "a cat, photo", first.RevisedPrompt)
	assert.Equal(t, int64(1700000000), resp.CreatedAt.Unix())
}

func TestOpenAIProvider_Generate_RequestSizeOverridesConfig(t *testing.T) {
	var gotBody dalleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"created":1700000000,"data":[{"b64_json":"` + testutil.PNGBase64(2, 2) + `"}]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, Width: 1024, Height: 1024})
	_, err := p.Generate(testutil.TestContext(t), &GenerateRequest{Prompt: "a cat", Width: 1792})
	require.NoError(t, err)
	assert.Equal(t, "1792x1024", gotBody.Size)
}

func TestOpenAIProvider_Generate_ErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"content policy violation","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL})
	_, err := p.Generate(testutil.TestContext(t), &GenerateRequest{Prompt: "a cat"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
	assert.Contains(t, err.Error(), "content policy violation")
}
