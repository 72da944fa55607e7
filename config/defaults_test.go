package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, ProviderConfig{}, cfg.Provider)
	assert.NotEqual(t, StorageConfig{}, cfg.Storage)
	assert.NotEqual(t, QueueConfig{}, cfg.Queue)
	assert.NotEqual(t, DispatchConfig{}, cfg.Dispatch)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.APIKeys)
	assert.Empty(t, cfg.PublicBaseURL)
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()
	assert.Equal(t, "stability", cfg.Name)
	assert.Equal(t, "stable-diffusion-xl-1024-v1-0", cfg.Model)
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, 1024, cfg.Height)
}

func TestDefaultDispatchAndQueue(t *testing.T) {
	d := DefaultDispatchConfig()
	assert.Equal(t, 5, d.BatchWorkers)
	assert.Equal(t, 255, d.MaxPromptLength)

	q := DefaultQueueConfig()
	assert.Equal(t, "memory", q.Backend)
	assert.Equal(t, 3*time.Minute, q.JobTimeout)
}

func TestDefaultStorageConfig(t *testing.T) {
	cfg := DefaultStorageConfig()
	assert.Equal(t, "media", cfg.MediaRoot)
	assert.Equal(t, "/media/", cfg.MediaURL)
	assert.Equal(t, "generated_images", cfg.UploadDir)
}
