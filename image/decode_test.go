package image

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/imageflow/config"
	"github.com/BaSui01/imageflow/testutil"
	"github.com/BaSui01/imageflow/types"
)

func TestDecode(t *testing.T) {
	raw := testutil.PNGBytes(3, 2)

	decoded, err := Decode(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, decoded.Data)
	assert.Equal(t, "png", decoded.Format)
	assert.Equal(t, 3, decoded.Width)
	assert.Equal(t, 2, decoded.Height)
}

func TestDecode_DataURI(t *testing.T) {
	raw := testutil.PNGBytes(1, 1)

	decoded, err := Decode("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, decoded.Data)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello world"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidImage))
		})
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.ProviderConfig{Name: "stability"})
	require.NoError(t, err)
	assert.Equal(t, "stability", p.Name())

	p, err = NewProvider(config.ProviderConfig{Name: "OpenAI"})
	require.NoError(t, err)
	assert.Equal(t, "openai-image", p.Name())

	p, err = NewProvider(config.ProviderConfig{})
	require.NoError(t, err)
	assert.IsType(t, &StabilityProvider{}, p)

	_, err = NewProvider(config.ProviderConfig{Name: "midjourney"})
	assert.Error(t, err)
}
