package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/breatheroute/runcoach/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "runcoach-test",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)
	assert.NotNil(t, provider.Engine)

	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)

	// No-op instruments accept recordings.
	provider.Engine.RecordOptimization(ctx, 3, 1, 2)

	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestStartSpan(t *testing.T) {
	ctx, span := telemetry.StartSpan(context.Background(), "optimize")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.NotNil(t, telemetry.Tracer("runcoach-test"))
}

func TestEngineMetrics_NilSafe(t *testing.T) {
	var m *telemetry.EngineMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordFieldRebuild(ctx, "amsterdam", time.Second, 100)
		m.RecordOptimization(ctx, 5, 1, 3)
		m.RecordWindowSearch(ctx, "optimal", 3, true)
	})
}

func TestEngineMetrics_Records(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(ctx) }()

	m, err := telemetry.NewEngineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m.RecordOptimization(ctx, 5, 2, 3)
	m.RecordOptimization(ctx, 4, 0, 1)
	m.RecordWindowSearch(ctx, "weekly", 3, true)
	m.RecordFieldRebuild(ctx, "amsterdam", 250*time.Millisecond, 400)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	sums := map[string]int64{}
	names := map[string]bool{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		names[md.Name] = true
		if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range sum.DataPoints {
				sums[md.Name] += dp.Value
			}
		}
	}

	assert.Equal(t, int64(9), sums["runcoach.optimizer.candidates"])
	assert.Equal(t, int64(2), sums["runcoach.optimizer.candidates.rejected"])
	assert.Equal(t, int64(1), sums["runcoach.timing.searches"])
	assert.Equal(t, int64(1), sums["runcoach.timing.degraded"])
	assert.True(t, names["runcoach.field.rebuild.duration"])
	assert.True(t, names["runcoach.optimizer.front.size"])
}
