package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/config"
)

// =============================================================================
// 🌐 HTTP 服务器生命周期
// =============================================================================

// ErrClosed 管理器关闭后不能再次启动
var ErrClosed = errors.New("server is closed")

const defaultShutdownTimeout = 15 * time.Second

// Config 单个监听端口的参数
type Config struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ConfigFrom 由服务配置生成 port 端口的监听参数。
// 空闲连接保留两倍读超时，请求头限制 1 MB，未配置关闭超时时取 15s。
func ConfigFrom(sc config.ServerConfig, port int) Config {
	if sc.ShutdownTimeout <= 0 {
		sc.ShutdownTimeout = defaultShutdownTimeout
	}
	return Config{
		Addr:            fmt.Sprintf(":%d", port),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
	}
}

// Manager 管理一个 http.Server 的监听、运行与优雅关闭
type Manager struct {
	name   string
	server *http.Server
	config Config
	logger *zap.Logger
	errCh  chan error

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewManager 创建管理器，name 用于日志与错误信息（http、metrics）
func NewManager(name string, handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Manager{
		name: name,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		config: cfg,
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", name)),
		errCh:  make(chan error, 1),
	}
}

// Start 绑定端口并在后台开始服务。端口在返回前已绑定，占用时直接返回错误。
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return ErrClosed
	case m.listener != nil:
		return fmt.Errorf("%s server already started", m.name)
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	m.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	go func() {
		err := m.server.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		m.logger.Error("server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}()
	return nil
}

// ListenAddr 返回实际监听地址，未启动或已关闭时为空
func (m *Manager) ListenAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Shutdown 停止接收新连接并等待进行中的请求，最多等待 ShutdownTimeout。可重复调用。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.listener = nil

	ctx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("graceful shutdown failed", zap.Error(err))
		return fmt.Errorf("%s server shutdown: %w", m.name, err)
	}
	m.logger.Info("server stopped")
	return nil
}

// =============================================================================
// 🛑 等待退出
// =============================================================================

// WaitForShutdown 阻塞到收到 SIGINT/SIGTERM、ctx 结束或任一服务器异常退出。
// 只有服务器异常时返回错误，关闭服务器由调用方负责。
func WaitForShutdown(ctx context.Context, logger *zap.Logger, managers ...*Manager) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := make(chan error, len(managers))
	for _, m := range managers {
		go func() {
			select {
			case err := <-m.errCh:
				failed <- fmt.Errorf("%s server: %w", m.name, err)
			case <-sigCtx.Done():
			}
		}()
	}

	select {
	case err := <-failed:
		logger.Error("server exited unexpectedly", zap.Error(err))
		return err
	case <-sigCtx.Done():
		if ctx.Err() == nil {
			logger.Info("received shutdown signal")
		}
		return nil
	}
}
