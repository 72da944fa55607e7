package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

var (
	sizeBuckets     = prometheus.ExponentialBuckets(100, 10, 8)
	providerBuckets = []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120}
	jobBuckets      = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}
)

// Collector 指标收集器。所有 Record 方法在 nil 接收者上为空操作。
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	imageRequestsTotal   *prometheus.CounterVec
	imageRequestDuration *prometheus.HistogramVec

	// outcome: submitted, reused, shared, invalid, error
	dispatchTotal *prometheus.CounterVec
	batchSize     prometheus.Histogram
	batchDuration prometheus.Histogram

	jobsSubmitted *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	poolWorkers   prometheus.Gauge
	poolActive    prometheus.Gauge
	poolQueued    prometheus.Gauge

	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
}

// builder 在同一 namespace 下注册指标
type builder struct {
	factory   promauto.Factory
	namespace string
}

func (b builder) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return b.factory.NewCounterVec(prometheus.CounterOpts{Namespace: b.namespace, Name: name, Help: help}, labels)
}

func (b builder) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return b.factory.NewHistogramVec(prometheus.HistogramOpts{Namespace: b.namespace, Name: name, Help: help, Buckets: buckets}, labels)
}

func (b builder) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return b.factory.NewGaugeVec(prometheus.GaugeOpts{Namespace: b.namespace, Name: name, Help: help}, labels)
}

// NewCollector 创建指标收集器，reg 为 nil 时注册到默认 Registry。
// 同一 Registerer 上重复创建会 panic。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	b := builder{factory: promauto.With(reg), namespace: namespace}

	c := &Collector{
		httpRequestsTotal:   b.counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
		httpRequestDuration: b.histogram("http_request_duration_seconds", "HTTP request duration in seconds", prometheus.DefBuckets, "method", "path"),
		httpRequestSize:     b.histogram("http_request_size_bytes", "HTTP request size in bytes", sizeBuckets, "method", "path"),
		httpResponseSize:    b.histogram("http_response_size_bytes", "HTTP response size in bytes", sizeBuckets, "method", "path"),

		imageRequestsTotal:   b.counter("image_requests_total", "Total number of image generation requests sent to the provider", "provider", "model", "status"),
		imageRequestDuration: b.histogram("image_request_duration_seconds", "Image generation request duration in seconds", providerBuckets, "provider", "model"),

		dispatchTotal: b.counter("dispatch_total", "Total number of prompt dispatches by outcome", "outcome"),
		batchSize: b.factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_prompts",
			Help:      "Number of distinct prompts per generate request",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
		}),
		batchDuration: b.factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to dispatch all prompts of one request",
			Buckets:   prometheus.DefBuckets,
		}),

		jobsSubmitted: b.counter("jobs_submitted_total", "Total number of job submissions", "job", "status"),
		jobsFinished:  b.counter("jobs_finished_total", "Total number of finished jobs by terminal state", "job", "state"),
		jobDuration:   b.histogram("job_duration_seconds", "Job execution duration in seconds", jobBuckets, "job"),
		poolWorkers:   b.gauge("worker_pool_workers", "Number of live worker goroutines").WithLabelValues(),
		poolActive:    b.gauge("worker_pool_active", "Number of workers currently running a job").WithLabelValues(),
		poolQueued:    b.gauge("worker_pool_queued", "Number of jobs waiting for a worker").WithLabelValues(),

		dbConnectionsOpen: b.gauge("db_connections_open", "Number of open database connections", "database"),
		dbConnectionsIdle: b.gauge("db_connections_idle", "Number of idle database connections", "database"),
	}

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest 记录一次 HTTP 请求，path 应已归一化
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordImageRequest 记录一次图片生成服务调用
func (c *Collector) RecordImageRequest(provider, model, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.imageRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.imageRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordDispatch 记录单个 prompt 的分发结果
func (c *Collector) RecordDispatch(outcome string) {
	if c == nil {
		return
	}
	c.dispatchTotal.WithLabelValues(outcome).Inc()
}

// RecordBatch 记录一次 /generate 请求的 prompt 数与分发耗时
func (c *Collector) RecordBatch(prompts int, duration time.Duration) {
	if c == nil {
		return
	}
	c.batchSize.Observe(float64(prompts))
	c.batchDuration.Observe(duration.Seconds())
}

// RecordJobSubmit 记录任务入队是否被接受
func (c *Collector) RecordJobSubmit(job string, accepted bool) {
	if c == nil {
		return
	}
	status := "rejected"
	if accepted {
		status = "accepted"
	}
	c.jobsSubmitted.WithLabelValues(job, status).Inc()
}

// RecordJobFinished 记录任务终态与耗时
func (c *Collector) RecordJobFinished(job, state string, duration time.Duration) {
	if c == nil {
		return
	}
	c.jobsFinished.WithLabelValues(job, state).Inc()
	c.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordPool 记录 worker 池快照
func (c *Collector) RecordPool(workers, active, queued int) {
	if c == nil {
		return
	}
	c.poolWorkers.Set(float64(workers))
	c.poolActive.Set(float64(active))
	c.poolQueued.Set(float64(queued))
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// statusCode 把状态码归类为 2xx..5xx，其余为 unknown
func statusCode(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
