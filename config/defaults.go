// =============================================================================
// 📦 imageflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Provider:  DefaultProviderConfig(),
		Storage:   DefaultStorageConfig(),
		Queue:     DefaultQueueConfig(),
		Dispatch:  DefaultDispatchConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "imageflow",
		Password:        "",
		Name:            "imageflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "imageflow:",
	}
}

// DefaultProviderConfig 返回默认图片生成服务配置
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Name:    "stability",
		BaseURL: "https://api.stability.ai",
		Model:   "stable-diffusion-xl-1024-v1-0",
		Width:   1024,
		Height:  1024,
		Timeout: 2 * time.Minute,
	}
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		MediaRoot: "media",
		MediaURL:  "/media/",
		UploadDir: "generated_images",
	}
}

// DefaultQueueConfig 返回默认异步任务配置
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Backend:    "memory",
		Workers:    10,
		QueueSize:  1000,
		JobTimeout: 3 * time.Minute,
		ResultTTL:  24 * time.Hour,
	}
}

// DefaultDispatchConfig 返回默认分发配置
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BatchWorkers:    5,
		MaxPromptLength: 255,
		WatchInterval:   2 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "imageflow",
		SampleRate:   0.1,
	}
}
