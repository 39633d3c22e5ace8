package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics holds the decision engine instruments. A nil *EngineMetrics
// records nothing.
type EngineMetrics struct {
	fieldRebuild  metric.Float64Histogram
	gridPoints    metric.Int64Histogram
	candidates    metric.Int64Counter
	rejected      metric.Int64Counter
	frontSize     metric.Int64Histogram
	windowSearch  metric.Int64Counter
	windowsFound  metric.Int64Histogram
	degradedPlans metric.Int64Counter
}

// NewEngineMetrics creates the engine instruments on meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	var err error

	if m.fieldRebuild, err = meter.Float64Histogram(
		"runcoach.field.rebuild.duration",
		metric.WithDescription("Duration of pollution field rebuilds in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.gridPoints, err = meter.Int64Histogram(
		"runcoach.field.grid.points",
		metric.WithDescription("Number of grid points in a rebuilt pollution field"),
		metric.WithUnit("{point}"),
	); err != nil {
		return nil, err
	}
	if m.candidates, err = meter.Int64Counter(
		"runcoach.optimizer.candidates",
		metric.WithDescription("Candidate routes evaluated by the optimizer"),
		metric.WithUnit("{route}"),
	); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter(
		"runcoach.optimizer.candidates.rejected",
		metric.WithDescription("Candidate routes rejected before evaluation"),
		metric.WithUnit("{route}"),
	); err != nil {
		return nil, err
	}
	if m.frontSize, err = meter.Int64Histogram(
		"runcoach.optimizer.front.size",
		metric.WithDescription("Size of the Pareto front per optimization"),
		metric.WithUnit("{route}"),
	); err != nil {
		return nil, err
	}
	if m.windowSearch, err = meter.Int64Counter(
		"runcoach.timing.searches",
		metric.WithDescription("Time window searches"),
		metric.WithUnit("{search}"),
	); err != nil {
		return nil, err
	}
	if m.windowsFound, err = meter.Int64Histogram(
		"runcoach.timing.windows",
		metric.WithDescription("Windows returned per search"),
		metric.WithUnit("{window}"),
	); err != nil {
		return nil, err
	}
	if m.degradedPlans, err = meter.Int64Counter(
		"runcoach.timing.degraded",
		metric.WithDescription("Window searches served without weather or AQI data"),
		metric.WithUnit("{search}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordFieldRebuild records one pollution field rebuild for a region.
func (m *EngineMetrics) RecordFieldRebuild(ctx context.Context, region string, d time.Duration, points int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("region", region))
	m.fieldRebuild.Record(ctx, d.Seconds(), attrs)
	m.gridPoints.Record(ctx, int64(points), attrs)
}

// RecordOptimization records one route optimization.
func (m *EngineMetrics) RecordOptimization(ctx context.Context, evaluated, rejected, front int) {
	if m == nil {
		return
	}
	m.candidates.Add(ctx, int64(evaluated))
	m.rejected.Add(ctx, int64(rejected))
	m.frontSize.Record(ctx, int64(front))
}

// RecordWindowSearch records one time window search.
func (m *EngineMetrics) RecordWindowSearch(ctx context.Context, kind string, windows int, degraded bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.windowSearch.Add(ctx, 1, attrs)
	m.windowsFound.Record(ctx, int64(windows), attrs)
	if degraded {
		m.degradedPlans.Add(ctx, 1, attrs)
	}
}
