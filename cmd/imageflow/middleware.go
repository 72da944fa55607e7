package main

import (
	"context"
	"math"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/imageflow/api/handlers"
	"github.com/BaSui01/imageflow/internal/metrics"
)

// =============================================================================
// 🔗 中间件基础
// =============================================================================

// Middleware 包装 http.Handler
type Middleware func(http.Handler) http.Handler

// Chain 串联中间件，第一个位于最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type requestIDKey struct{}

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// RequestIDFromContext 返回请求 ID，不存在时返回空串
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID 为每个请求分配 ID 并写回 X-Request-ID。
// 客户端提供的 ID 在长度合理时沿用。
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// Recovery 捕获 handler panic 并返回 500。http.ErrAbortHandler 继续向上抛出。
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Stack("stack"),
				)
				handlers.WriteBareError(w, http.StatusInternalServerError, "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger 每个请求结束后记录一条访问日志
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Int64("bytes", rw.BytesWritten),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Content-Security-Policy", "default-src 'self'"},
}

// SecurityHeaders 为所有响应设置安全相关的头
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 📊 指标与追踪
// =============================================================================

// MetricsMiddleware 记录请求耗时、状态码与收发字节数。
// 路径经 normalizePath 归一化，避免任务 ID 成为标签值。
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			collector.RecordHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				rw.StatusCode,
				time.Since(start),
				max(r.ContentLength, 0),
				rw.BytesWritten,
			)
		})
	}
}

// idSegment 匹配 UUID、8 位以上十六进制串或纯数字
var idSegment = regexp.MustCompile(`^[0-9a-fA-F]{8,}(-[0-9a-fA-F]{4,}){0,4}$|^[0-9]+$`)

// normalizePath 把动态路径折叠为路由模板：
//
//	/result/<id>        -> /result/:id
//	/result/<id>/watch  -> /result/:id/watch
//	/media/<any>        -> /media/*
func normalizePath(path string) string {
	switch path {
	case "/health", "/healthz", "/ready", "/readyz", "/version", "/metrics",
		"/generate", "/api/v1/images":
		return path
	}

	if strings.HasPrefix(path, "/media/") {
		return "/media/*"
	}
	if id, ok := strings.CutPrefix(path, "/result/"); ok && id != "" {
		if strings.HasSuffix(id, "/watch") {
			return "/result/:id/watch"
		}
		return "/result/:id"
	}

	segments := strings.Split(path, "/")
	changed := false
	for i, seg := range segments {
		if seg != "" && idSegment.MatchString(seg) {
			segments[i] = ":id"
			changed = true
		}
	}
	if !changed {
		return path
	}
	return strings.Join(segments, "/")
}

// OTelTracing 为每个请求创建 server span，并延续请求头中的 trace 上下文
func OTelTracing() Middleware {
	tracer := otel.Tracer("imageflow/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+normalizePath(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// =============================================================================
// 🔐 认证
// =============================================================================

type apiErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// pathSet 精确路径或以 "/" 结尾的前缀
type pathSet struct {
	exact    map[string]struct{}
	prefixes []string
}

func newPathSet(paths []string) pathSet {
	ps := pathSet{exact: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		if strings.HasSuffix(p, "/") {
			ps.prefixes = append(ps.prefixes, p)
		} else {
			ps.exact[p] = struct{}{}
		}
	}
	return ps
}

func (ps pathSet) contains(path string) bool {
	if _, ok := ps.exact[path]; ok {
		return true
	}
	for _, p := range ps.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// APIKeyAuth 校验 X-API-Key。skipPaths 中以 "/" 结尾的条目按前缀匹配（如 "/media/"）。
// 浏览器的 websocket 握手无法设置请求头，只有升级请求接受 api_key 查询参数。
func APIKeyAuth(validKeys []string, skipPaths []string, logger *zap.Logger) Middleware {
	keys := make(map[string]struct{}, len(validKeys))
	for _, k := range validKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	skip := newPathSet(skipPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip.contains(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" && isWebSocketUpgrade(r) {
				key = r.URL.Query().Get("api_key")
			}
			if _, ok := keys[key]; ok {
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("rejected request without valid API key",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			handlers.WriteJSON(w, http.StatusUnauthorized, apiErrorBody{
				Error:   "unauthorized",
				Message: "invalid or missing API key",
			})
		})
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// =============================================================================
// 🚦 限流
// =============================================================================

const (
	visitorSweepInterval = time.Minute
	visitorIdleTTL       = 3 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters 每个客户端 IP 一个令牌桶
type ipLimiters struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

func (l *ipLimiters) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweep 删除空闲超过 ttl 的客户端
func (l *ipLimiters) sweep(now time.Time, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > ttl {
			delete(l.visitors, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// RateLimiter 按客户端 IP 限流，超限返回 429 与 Retry-After。ctx 结束时停止后台清理。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	limiters := &ipLimiters{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}

	go func() {
		ticker := time.NewTicker(visitorSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				limiters.sweep(now, visitorIdleTTL)
			}
		}
	}()

	retryAfter := "1"
	if rps > 0 && rps < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / rps)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if limiters.get(ip, time.Now()).Allow() {
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("rate limited", zap.String("ip", ip), zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", retryAfter)
			handlers.WriteJSON(w, http.StatusTooManyRequests, apiErrorBody{
				Error:   "rate_limit_exceeded",
				Message: "too many requests",
			})
		})
	}
}
