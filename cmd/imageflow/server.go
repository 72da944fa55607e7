package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/api/handlers"
	"github.com/BaSui01/imageflow/blob"
	"github.com/BaSui01/imageflow/config"
	"github.com/BaSui01/imageflow/generation"
	"github.com/BaSui01/imageflow/image"
	"github.com/BaSui01/imageflow/internal/cache"
	"github.com/BaSui01/imageflow/internal/database"
	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/internal/server"
	"github.com/BaSui01/imageflow/store"
	"github.com/BaSui01/imageflow/task"
)

const poolReportInterval = 15 * time.Second

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 imageflow 的主服务器，负责组装存储、队列、分发与 HTTP 路由
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// provider 为空时按配置创建；registry 为空时使用默认 Registry
	provider image.Provider
	registry prometheus.Registerer

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	collector *metrics.Collector
	records   store.Store
	dbPool    *database.PoolManager
	blobs     *blob.LocalStorage
	backend   task.Backend
	queue     *task.Queue

	healthHandler *handlers.HealthHandler
	handler       http.Handler

	// 后台 goroutine（限流清理、指标上报）生命周期
	bgCancel context.CancelFunc
	wg       sync.WaitGroup

	shutdownOnce sync.Once
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 组装依赖并启动 HTTP 与 Metrics 服务器
func (s *Server) Start(ctx context.Context) error {
	if err := s.init(ctx); err != nil {
		return err
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("provider", s.cfg.Provider.Name),
		zap.String("database", s.cfg.Database.Driver),
		zap.String("queue_backend", s.cfg.Queue.Backend),
	)
	return nil
}

// init 按依赖顺序创建各组件，失败时释放已创建的资源
func (s *Server) init(ctx context.Context) (err error) {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	s.bgCancel = bgCancel
	defer func() {
		if err != nil {
			s.release(ctx)
		}
	}()

	// 1. 指标收集器
	s.collector = metrics.NewCollector("imageflow", s.registry, s.logger)

	// 2. 生成记录存储
	if err = s.initStore(); err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}

	// 3. 图片文件存储
	s.blobs, err = blob.NewLocalStorage(s.cfg.Storage.MediaRoot, s.cfg.Storage.MediaURL, s.cfg.Storage.UploadDir, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init media storage: %w", err)
	}

	// 4. 图片生成服务
	if s.provider == nil {
		s.provider, err = image.NewProvider(s.cfg.Provider)
		if err != nil {
			return fmt.Errorf("failed to create image provider: %w", err)
		}
	}
	if s.cfg.Provider.APIKey == "" {
		s.logger.Warn("provider API key not configured, generation jobs will fail",
			zap.String("provider", s.provider.Name()))
	}

	// 5. 任务队列
	if err = s.initQueue(); err != nil {
		return fmt.Errorf("failed to init job queue: %w", err)
	}

	runner := generation.NewRunner(s.provider, s.records, s.blobs, s.collector, s.logger)
	s.queue.Register(generation.JobName, runner.Handle)

	// 6. 分发与状态查询
	dispatcher := generation.NewDispatcher(s.records, s.queue, s.cfg.Dispatch.MaxPromptLength, s.collector, s.logger)
	batch := generation.NewBatchCoordinator(dispatcher, s.cfg.Dispatch.BatchWorkers, s.collector, s.logger)
	status := generation.NewStatusReporter(s.queue, s.records, s.blobs)

	// 7. Handlers 与路由
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.records.Ping))
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("job_backend", s.queue.Ping))
	queue := s.queue
	s.healthHandler.RegisterCheck(handlers.NewCapacityCheck("job_queue", func() int {
		return queue.Stats().Queued
	}, s.cfg.Queue.QueueSize))

	mux := s.routes(
		handlers.NewGenerateHandler(batch, s.cfg.Server.PublicBaseURL, s.logger),
		handlers.NewResultHandler(status, s.cfg.Server.PublicBaseURL, s.cfg.Dispatch.WatchInterval, s.logger),
		handlers.NewImagesHandler(s.records, s.blobs, s.cfg.Server.PublicBaseURL, s.logger),
	)
	s.handler = s.middleware(bgCtx, mux)

	s.wg.Add(1)
	go s.reportLoop(bgCtx)

	s.logger.Info("Components initialized")
	return nil
}

// initStore 创建生成记录存储：memory 或 gorm 数据库
func (s *Server) initStore() error {
	if s.cfg.Database.Driver == "memory" {
		s.records = store.NewMemoryStore()
		s.logger.Warn("using in-memory generation records, data is lost on restart")
		return nil
	}

	db, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	s.dbPool, err = database.NewPoolManager("primary", db, database.PoolConfigFrom(s.cfg.Database), s.collector, s.logger)
	if err != nil {
		return err
	}

	gormStore := store.NewGormStore(db, s.logger)
	if err := gormStore.AutoMigrate(); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	s.records = gormStore
	return nil
}

// initQueue 创建任务状态后端与 worker 队列
func (s *Server) initQueue() error {
	qc := s.cfg.Queue
	switch qc.Backend {
	case "redis":
		rc := s.cfg.Redis
		redis, err := cache.NewManager(cache.ConfigFrom(rc), s.logger)
		if err != nil {
			return err
		}
		s.backend = task.NewRedisBackend(redis, rc.KeyPrefix, qc.ResultTTL)
	default:
		s.backend = task.NewMemoryBackend(qc.ResultTTL)
	}

	s.queue = task.NewQueue(s.backend, task.Options{
		Workers:    qc.Workers,
		QueueSize:  qc.QueueSize,
		JobTimeout: qc.JobTimeout,
	}, s.collector, s.logger)
	return nil
}

// =============================================================================
// 🌐 HTTP 路由
// =============================================================================

func (s *Server) routes(gen *handlers.GenerateHandler, result *handlers.ResultHandler, images *handlers.ImagesHandler) *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 生成与查询
	mux.HandleFunc("GET /generate", gen.HandleGenerate)
	mux.HandleFunc("GET /result/{$}", result.HandleResult)
	mux.HandleFunc("GET /result/{id}", result.HandleResult)
	mux.HandleFunc("GET /result/{id}/watch", result.HandleWatch)
	mux.HandleFunc("GET /api/v1/images", images.HandleList)

	// 媒体 URL 为绝对地址时由外部（CDN、对象存储网关）提供文件
	if prefix := s.blobs.MediaURL(); strings.HasPrefix(prefix, "/") {
		mux.Handle("GET "+prefix, images.ServeMedia(prefix))
	}

	return mux
}

// middleware 构建中间件链，第一个位于最外层
func (s *Server) middleware(ctx context.Context, h http.Handler) http.Handler {
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
	}
	if sc := s.cfg.Server; sc.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger))
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		skip := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
		if prefix := s.blobs.MediaURL(); strings.HasPrefix(prefix, "/") {
			skip = append(skip, prefix)
		}
		chain = append(chain, APIKeyAuth(s.cfg.Server.APIKeys, skip, s.logger))
	}
	return Chain(h, chain...)
}

// Handler 返回完整的 HTTP 处理链（包含中间件）
func (s *Server) Handler() http.Handler {
	return s.handler
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	sc := s.cfg.Server
	s.httpManager = server.NewManager("http", s.handler, server.ConfigFrom(sc, sc.HTTPPort), s.logger)
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器，端口为 0 时不启动
func (s *Server) startMetricsServer() error {
	sc := s.cfg.Server
	if sc.MetricsPort == 0 {
		s.logger.Info("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metricsHandler())

	s.metricsManager = server.NewManager("metrics", mux, server.ConfigFrom(sc, sc.MetricsPort), s.logger)
	return s.metricsManager.Start()
}

func (s *Server) metricsHandler() http.Handler {
	if g, ok := s.registry.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// reportLoop 周期上报 worker 池状态
func (s *Server) reportLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(poolReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.queue.Stats()
			s.collector.RecordPool(stats.Workers, stats.Active, stats.Queued)
		}
	}
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞到收到关闭信号、ctx 结束或服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	managers := []*server.Manager{s.httpManager}
	if s.metricsManager != nil {
		managers = append(managers, s.metricsManager)
	}
	return server.WaitForShutdown(ctx, s.logger, managers...)
}

// Shutdown 优雅关闭：先停止接收请求，再排空队列，最后释放存储连接
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		s.logger.Info("Starting graceful shutdown...")

		if s.httpManager != nil {
			if err := s.httpManager.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP server shutdown error", zap.Error(err))
			}
		}

		s.release(ctx)

		if s.metricsManager != nil {
			if err := s.metricsManager.Shutdown(ctx); err != nil {
				s.logger.Error("Metrics server shutdown error", zap.Error(err))
			}
		}

		s.logger.Info("Graceful shutdown completed")
	})
}

// release 关闭队列、状态后端与数据库，可在初始化失败时调用。
// 队列未排空时仍有任务在写状态与记录，状态后端与数据库保持打开。
func (s *Server) release(ctx context.Context) {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.wg.Wait()

	if s.queue != nil {
		qctx, cancel := context.WithTimeout(ctx, server.ConfigFrom(s.cfg.Server, 0).ShutdownTimeout)
		err := s.queue.Close(qctx)
		cancel()
		s.queue = nil
		if err != nil {
			s.logger.Warn("job queue not drained, leaving job backend and database open for running jobs",
				zap.Error(err))
			return
		}
	}

	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("job backend close error", zap.Error(err))
		}
		s.backend = nil
	}

	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("database close error", zap.Error(err))
		}
		s.dbPool = nil
	}
}
