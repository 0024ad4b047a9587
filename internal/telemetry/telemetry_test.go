package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/agent/reasoning"
	"github.com/BaSui01/agentkernel/config"
)

// 恢复全局 provider，避免测试之间串扰
func keepGlobals(t *testing.T) {
	t.Helper()
	tp, mp := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
	})
}

func shutdownQuietly(t *testing.T, p *Providers) {
	t.Cleanup(func() {
		// 没有 collector，导出失败是预期的
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestInit_Disabled(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	p, err := Init(config.TelemetryConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Same(t, before, otel.GetTracerProvider(), "disabled telemetry leaves globals alone")

	_, span := p.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	rec, err := p.KernelRecorder()
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_InstallsGlobals(t *testing.T) {
	keepGlobals(t)
	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentkernel-test",
		SampleRate:   0.5,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	shutdownQuietly(t, p)

	require.True(t, p.Enabled())
	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)
	_, isSDK = otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, isSDK)
}

func TestInit_WithoutGlobal(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	p, err := Init(config.TelemetryConfig{Enabled: true, SampleRate: 1},
		zaptest.NewLogger(t),
		WithSpanExporter(tracetest.NewInMemoryExporter()),
		WithMetricReader(sdkmetric.NewManualReader()),
		WithoutGlobal())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.True(t, p.Enabled())
	assert.Same(t, before, otel.GetTracerProvider())
}

func TestInit_InvalidSampleRate(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.5} {
		_, err := Init(config.TelemetryConfig{Enabled: true, SampleRate: rate}, nil)
		assert.ErrorContains(t, err, "sample rate")
	}
}

func TestProviders_ShutdownNil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestVersion(t *testing.T) {
	// 测试二进制没有模块版本
	assert.Equal(t, "dev", Version())
}

func TestKernelSpans_InMemoryExporter(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p, err := Init(config.TelemetryConfig{Enabled: true, ServiceName: "agentkernel-test", SampleRate: 1},
		zaptest.NewLogger(t),
		WithSpanExporter(exp),
		WithMetricReader(sdkmetric.NewManualReader()),
		WithInstanceID("kernel-1"),
		WithoutGlobal())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	k := kernel.New(kernel.DefaultConfig(), kernel.WithTracer(p.Tracer("kernel-test")))
	ctx := context.Background()
	require.NoError(t, k.AddFact(ctx, "socrates", "human", 1.0))
	_ = k.Query(ctx, "socrates")

	spans := exp.GetSpans()
	require.NotEmpty(t, spans)
	var names []string
	for _, s := range spans {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "kernel.add_fact")
	assert.Contains(t, names, "kernel.query")

	instance, ok := spans[0].Resource.Set().Value("service.instance.id")
	require.True(t, ok, "resource carries the instance id")
	assert.Equal(t, "kernel-1", instance.AsString())
}

// sumOf 累加某个 Int64 计数器的全部数据点
func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestKernelRecorder_Instruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	rec, err := NewKernelRecorder(mp.Meter("test"))
	require.NoError(t, err)

	rec.RecordFactAdded("fact")
	rec.RecordFactAdded("rule")
	rec.RecordInference("forward_chaining", 3, time.Millisecond)
	rec.RecordPlan("astar", true, 12, time.Millisecond)
	rec.RecordPlan("bfs", false, 40, time.Millisecond)
	rec.RecordMemoryStore("episodic")
	rec.RecordMemoryRecall("episodic", 2)
	rec.RecordMemoryEviction("working")
	rec.RecordAction("completed", time.Millisecond)
	rec.RecordCycle(true, false, time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(2), sumOf(t, rm, "kernel.facts.added"))
	assert.Equal(t, int64(1), sumOf(t, rm, "kernel.inference.runs"))
	assert.Equal(t, int64(3), sumOf(t, rm, "kernel.inference.derived"))
	assert.Equal(t, int64(2), sumOf(t, rm, "kernel.plans"))
	assert.Equal(t, int64(3), sumOf(t, rm, "kernel.memory.operations"))
	assert.Equal(t, int64(1), sumOf(t, rm, "kernel.actions"))
	assert.Equal(t, int64(1), sumOf(t, rm, "kernel.cycles"))
}

func TestProviders_KernelRecorderWiredToKernel(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := Init(config.TelemetryConfig{Enabled: true, SampleRate: 1}, nil,
		WithSpanExporter(tracetest.NewInMemoryExporter()),
		WithMetricReader(reader),
		WithoutGlobal())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	rec, err := p.KernelRecorder()
	require.NoError(t, err)
	require.NotNil(t, rec)

	k := kernel.New(kernel.DefaultConfig(), kernel.WithRecorder(rec))
	ctx := context.Background()
	require.NoError(t, k.AddFact(ctx, "socrates", "human", 1.0))
	require.NoError(t, k.AddRule(ctx,
		[]reasoning.Fact{reasoning.F("socrates", "human")}, reasoning.F("socrates", "mortal"), 0.9))
	_, err = k.Infer(ctx)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(2), sumOf(t, rm, "kernel.facts.added"))
	assert.Equal(t, int64(1), sumOf(t, rm, "kernel.inference.runs"))
	assert.GreaterOrEqual(t, sumOf(t, rm, "kernel.inference.derived"), int64(1))
}
