package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/config"
)

// =============================================================================
// 💾 Redis 文档管理器
// =============================================================================

const dialTimeout = 5 * time.Second

var (
	// ErrCacheMiss 键不存在或已过期
	ErrCacheMiss = errors.New("cache miss")

	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("cache manager is closed")
)

// Config 连接参数
type Config struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 后台 Ping 间隔，<= 0 时不启动
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// ConfigFrom 由服务配置生成连接参数
func ConfigFrom(rc config.RedisConfig) Config {
	return Config{
		Addr:                rc.Addr,
		Password:            rc.Password,
		DB:                  rc.DB,
		MaxRetries:          3,
		PoolSize:            rc.PoolSize,
		MinIdleConns:        rc.MinIdleConns,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager 以 JSON 字符串形式在 Redis 中存取文档（任务状态）
type Manager struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	// 连续失败的后台检查次数，只由 healthCheckLoop 读写
	failures int
}

// NewManager 建立连接并 Ping 一次，不可达时直接返回错误
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	m := &Manager{
		client: client,
		config: cfg,
		logger: logger.With(zap.String("component", "redis"), zap.Int("db", cfg.DB)),
		done:   make(chan struct{}),
	}
	if cfg.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("redis connected", zap.String("addr", cfg.Addr))
	return m, nil
}

// open 在读锁下返回客户端，管理器关闭后返回 ErrClosed
func (m *Manager) open() (*redis.Client, func(), error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, nil, ErrClosed
	}
	return m.client, m.mu.RUnlock, nil
}

// =============================================================================
// 🎯 文档读写
// =============================================================================

// SetJSON 序列化 value 写入 key。ttl <= 0 时键不过期，并清除原有过期时间。
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}

	client, unlock, err := m.open()
	if err != nil {
		return err
	}
	defer unlock()

	if err := client.Set(ctx, key, data, ttl).Err(); err != nil {
		m.logger.Error("redis set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// GetJSON 读取 key 并反序列化到 dest，键不存在时返回 ErrCacheMiss
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	client, unlock, err := m.open()
	if err != nil {
		return err
	}
	data, err := client.Get(ctx, key).Bytes()
	unlock()

	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		m.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// TTL 返回 key 的剩余存活时间，不过期的键返回 0
func (m *Manager) TTL(ctx context.Context, key string) (time.Duration, error) {
	client, unlock, err := m.open()
	if err != nil {
		return 0, err
	}
	defer unlock()

	d, err := client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl %s: %w", key, err)
	}
	switch d {
	case -2 * time.Nanosecond:
		return 0, ErrCacheMiss
	case -1 * time.Nanosecond:
		return 0, nil
	}
	return d, nil
}

// Ping 检查连接
func (m *Manager) Ping(ctx context.Context) error {
	client, unlock, err := m.open()
	if err != nil {
		return err
	}
	defer unlock()
	return client.Ping(ctx).Err()
}

// Close 停止后台检查并关闭连接，可重复调用
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)

	m.logger.Info("closing redis connection")
	return m.client.Close()
}

// =============================================================================
// 🏥 后台检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.checkOnce()
		}
	}
}

func (m *Manager) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	err := m.Ping(ctx)
	switch {
	case errors.Is(err, ErrClosed):
		return
	case err != nil:
		m.failures++
		m.logger.Error("redis health check failed",
			zap.Int("consecutive_failures", m.failures),
			zap.Error(err),
		)
	case m.failures > 0:
		m.logger.Info("redis reachable again", zap.Int("after_failures", m.failures))
		m.failures = 0
	}
}
