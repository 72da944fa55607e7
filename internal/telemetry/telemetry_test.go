package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/imageflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobals snapshots the global OTel providers and propagator
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobals(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	origProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
		otel.SetTextMapPropagator(origProp)
	})
}

func enabledConfig(name string) config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  name,
		SampleRate:   0.5,
	}
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobals(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, "1.2.3", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.False(t, p.Enabled())

	// 禁用时仍注册 W3C 传播器
	carrier := propagation.MapCarrier{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)
	out := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, out)
	assert.Equal(t, carrier["traceparent"], out["traceparent"])
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobals(t)

	p, err := Init(context.Background(), enabledConfig("imageflow-test"), "", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.True(t, p.Enabled())

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestProviders_Shutdown_Noop(t *testing.T) {
	saveAndRestoreGlobals(t)

	p, err := Init(context.Background(), config.TelemetryConfig{}, "dev", nil)
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_Shutdown_Real(t *testing.T) {
	saveAndRestoreGlobals(t)

	p, err := Init(context.Background(), enabledConfig("imageflow-shutdown-test"), "1.0.0", zaptest.NewLogger(t))
	require.NoError(t, err)

	// 没有 collector 时 exporter 可能返回连接错误，只要求按期返回
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NotPanics(t, func() {
		_ = p.Shutdown(ctx)
	})
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制的 build info 版本为 "(devel)"
	assert.Equal(t, "dev", buildVersion())
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1, want: "ParentBased{root:AlwaysOnSampler"},
		{rate: 2, want: "ParentBased{root:AlwaysOnSampler"},
		{rate: 0, want: "ParentBased{root:AlwaysOffSampler"},
		{rate: -1, want: "ParentBased{root:AlwaysOffSampler"},
		{rate: 0.25, want: "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		assert.True(t, strings.HasPrefix(sampler(tt.rate).Description(), tt.want), "rate %v: %s", tt.rate, sampler(tt.rate).Description())
	}
}
