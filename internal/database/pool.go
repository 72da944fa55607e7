package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/imageflow/config"
	"github.com/BaSui01/imageflow/internal/metrics"
)

// =============================================================================
// 🗄️ 生成记录库的连接池
// =============================================================================

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("database pool is closed")

const pingTimeout = 5 * time.Second

// PoolConfig 连接池参数
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// 后台 Ping 并上报连接数的间隔，<= 0 时不启动
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig 默认连接池参数
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        25,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// PoolConfigFrom 由数据库配置生成连接池参数，未配置的项取默认值。
// sqlite 只允许单写者，固定为单连接且不回收。
func PoolConfigFrom(cfg config.DatabaseConfig) PoolConfig {
	pc := DefaultPoolConfig()
	if strings.EqualFold(cfg.Driver, "sqlite") {
		pc.MaxOpenConns, pc.MaxIdleConns = 1, 1
		pc.ConnMaxLifetime, pc.ConnMaxIdleTime = 0, 0
		return pc
	}
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	return pc
}

// PoolManager 持有 gorm 连接，负责连接池参数、后台探活与连接数指标
type PoolManager struct {
	name    string
	db      *gorm.DB
	sqlDB   *sql.DB
	config  PoolConfig
	metrics *metrics.Collector
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	// 连续失败的后台检查次数，只由 healthCheckLoop 读写
	failures int
}

// NewPoolManager 对 db 应用连接池参数。name 作为指标标签，collector 可为 nil。
func NewPoolManager(name string, db *gorm.DB, cfg PoolConfig, collector *metrics.Collector, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("database pool: nil gorm.DB")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pm := &PoolManager{
		name:    name,
		db:      db,
		sqlDB:   sqlDB,
		config:  cfg,
		metrics: collector,
		logger:  logger.With(zap.String("component", "db_pool"), zap.String("database", name)),
		done:    make(chan struct{}),
	}
	if cfg.HealthCheckInterval > 0 {
		go pm.healthCheckLoop()
	}

	pm.logger.Info("database pool ready",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)
	return pm, nil
}

// DB 返回 gorm 实例
func (pm *PoolManager) DB() *gorm.DB {
	return pm.db
}

// Ping 检查连接，关闭后返回 ErrPoolClosed
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Close 停止后台检查并关闭连接，可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.done)

	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

// PoolStats 连接池快照
type PoolStats struct {
	MaxOpen      int           `json:"max_open"`
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

// Stats 读取连接池快照并写入连接数指标
func (pm *PoolManager) Stats() PoolStats {
	s := pm.sqlDB.Stats()
	stats := PoolStats{
		MaxOpen:      s.MaxOpenConnections,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
	pm.metrics.RecordDBConnections(pm.name, stats.Open, stats.Idle)
	return stats
}

// =============================================================================
// 🏥 后台检查
// =============================================================================

func (pm *PoolManager) healthCheckLoop() {
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.done:
			return
		case <-ticker.C:
			pm.checkOnce()
		}
	}
}

func (pm *PoolManager) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	err := pm.Ping(ctx)
	switch {
	case errors.Is(err, ErrPoolClosed):
		return
	case err != nil:
		pm.failures++
		pm.logger.Error("database health check failed",
			zap.Int("consecutive_failures", pm.failures),
			zap.Error(err),
		)
		return
	case pm.failures > 0:
		pm.logger.Info("database reachable again", zap.Int("after_failures", pm.failures))
		pm.failures = 0
	}

	stats := pm.Stats()
	pm.logger.Debug("database pool stats",
		zap.Int("open", stats.Open),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
	)
}
