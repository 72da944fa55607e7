package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/api/handlers"
	"github.com/BaSui01/imageflow/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := serve(SecurityHeaders()(inner), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	handler := Chain(okHandler(), SecurityHeaders(), RequestID())

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	serve(Chain(okHandler(), mark("a"), mark("b"), mark("c")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	t.Run("generated", func(t *testing.T) {
		w := serve(RequestID()(inner), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	})

	t.Run("client supplied", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "req-123")
		w := serve(RequestID()(inner), r)
		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	})

	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestRecovery(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := serve(Recovery(zap.NewNop())(panicky), httptest.NewRequest(http.MethodGet, "/generate", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestAPIKeyAuth(t *testing.T) {
	auth := APIKeyAuth([]string{"secret", ""}, []string{"/health", "/media/"}, zap.NewNop())
	handler := auth(okHandler())

	tests := []struct {
		name    string
		path    string
		header  string
		upgrade bool
		want    int
	}{
		{name: "missing key", path: "/generate", want: http.StatusUnauthorized},
		{name: "wrong key", path: "/generate", header: "nope", want: http.StatusUnauthorized},
		{name: "valid key", path: "/generate", header: "secret", want: http.StatusOK},
		{name: "exact skip", path: "/health", want: http.StatusOK},
		{name: "exact skip is not a prefix", path: "/healthcheck", want: http.StatusUnauthorized},
		{name: "prefix skip", path: "/media/generated_images/cat.png", want: http.StatusOK},
		{name: "query key ignored on plain request", path: "/result/abc?api_key=secret", want: http.StatusUnauthorized},
		{name: "query key on websocket upgrade", path: "/result/abc/watch?api_key=secret", upgrade: true, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			if tt.upgrade {
				r.Header.Set("Connection", "Upgrade")
				r.Header.Set("Upgrade", "websocket")
			}
			w := serve(handler, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), "unauthorized")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())

	request := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/generate", nil)
		r.RemoteAddr = addr
		return serve(handler, r).Code
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, request("10.0.0.1:1235"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1:1236"))

	r := httptest.NewRequest(http.MethodGet, "/generate", nil)
	r.RemoteAddr = "10.0.0.1:1237"
	w := serve(handler, r)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","message":"too many requests"}`, w.Body.String())

	// 其他 IP 不受影响
	assert.Equal(t, http.StatusOK, request("10.0.0.2:1234"))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/health", "/health"},
		{"/generate", "/generate"},
		{"/api/v1/images", "/api/v1/images"},
		{"/result/7c9e6679-7425-40de-944b-e07fc1f90ae7", "/result/:id"},
		{"/result/anything", "/result/:id"},
		{"/result/7c9e6679-7425-40de-944b-e07fc1f90ae7/watch", "/result/:id/watch"},
		{"/result/", "/result/"},
		{"/media/generated_images/a_cat_1a2b3c4d.png", "/media/*"},
		{"/other/12345", "/other/:id"},
		{"/other/name", "/other/name"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.in))
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())

	handler := MetricsMiddleware(collector)(okHandler())
	serve(handler, httptest.NewRequest(http.MethodGet, "/result/7c9e6679-7425-40de-944b-e07fc1f90ae7", nil))
	serve(handler, httptest.NewRequest(http.MethodGet, "/result/0b6f4a2e-1111-2222-3333-444455556666", nil))

	count, err := promtestutil.GatherAndCount(reg, "test_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "dynamic ids should share one series")
}

func TestMiddlewaresShareOneResponseWriter(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("share", reg, zap.NewNop())

	var seen *handlers.ResponseWriter
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = w.(*handlers.ResponseWriter)
		w.WriteHeader(http.StatusNotFound)
	})

	handler := Chain(inner, RequestLogger(zap.NewNop()), MetricsMiddleware(collector), OTelTracing())
	w := serve(handler, httptest.NewRequest(http.MethodGet, "/result/abc", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, http.StatusNotFound, seen.StatusCode)
}

func TestIPLimiters_Sweep(t *testing.T) {
	l := &ipLimiters{rps: 1, burst: 1, visitors: make(map[string]*visitor)}
	now := time.Now()

	l.get("10.0.0.1", now.Add(-5*time.Minute))
	l.get("10.0.0.2", now)
	l.sweep(now, visitorIdleTTL)

	assert.Len(t, l.visitors, 1)
	assert.Contains(t, l.visitors, "10.0.0.2")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(r))

	r.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", clientIP(r))
}

func TestOTelTracing_PassesThrough(t *testing.T) {
	var sawContext bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawContext = r.Context() != nil
		w.WriteHeader(http.StatusAccepted)
	})

	w := serve(OTelTracing()(inner), httptest.NewRequest(http.MethodGet, "/generate", nil))

	assert.True(t, sawContext)
	assert.Equal(t, http.StatusAccepted, w.Code)
}
