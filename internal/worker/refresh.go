package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/weather"
	"github.com/breatheroute/runcoach/pkg/geo"
)

// Job types accepted by Handle.
const (
	JobFieldRefresh = "field_refresh"
	JobHealthCheck  = "health_check"
)

// ErrUnknownJobType is returned by Handle for messages it cannot process.
var ErrUnknownJobType = errors.New("worker: unknown job type")

// WeatherForecaster is warmed at region centers. *weather.Service satisfies it.
type WeatherForecaster interface {
	GetForecast(ctx context.Context, at geo.Point) (*weather.Forecast, error)
}

// RefreshJob rebuilds the regional pollution fields.
type RefreshJob struct {
	config  RefreshConfig
	logger  zerolog.Logger
	fields  *airquality.Service
	weather WeatherForecaster

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	TotalRuns        int64
	RegionsRefreshed int64
	RegionsFailed    int64
	WeatherRefreshes int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config  RefreshConfig
	Logger  zerolog.Logger
	Fields  *airquality.Service
	Weather WeatherForecaster // optional
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:  cfg.Config.withDefaults(),
		logger:  cfg.Logger,
		fields:  cfg.Fields,
		weather: cfg.Weather,
		metrics: &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Regions    int
	Successful int
	Failed     int
	Errors     []RefreshError
}

// RefreshError records a failed region.
type RefreshError struct {
	Region   string
	Provider string
	Error    string
}

// Run refreshes every configured region with bounded concurrency. A failing
// region never stops the others.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	start := time.Now()
	regions := j.regions()
	result := &RefreshResult{StartTime: start, Regions: len(regions)}

	j.logger.Info().
		Int("regions", len(regions)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting field refresh job")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for _, name := range regions {
		g.Go(func() error {
			errs := j.refreshRegion(gctx, name)
			mu.Lock()
			defer mu.Unlock()
			if len(errs) == 0 {
				result.Successful++
			} else {
				result.Failed++
				result.Errors = append(result.Errors, errs...)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("field refresh job completed")

	return result
}

// RefreshRegion refreshes one tracked region.
func (j *RefreshJob) RefreshRegion(ctx context.Context, name string) error {
	if j.fields == nil {
		return fmt.Errorf("refresh %s: no field service configured", name)
	}
	if _, err := j.fields.Snapshot(name); err != nil {
		return err
	}
	errs := j.refreshRegion(ctx, name)
	j.updateMetrics(&RefreshResult{
		EndTime:    time.Now(),
		Regions:    1,
		Successful: boolToInt(len(errs) == 0),
		Failed:     boolToInt(len(errs) > 0),
	})
	if len(errs) > 0 {
		return fmt.Errorf("refresh %s: %s", name, errs[0].Error)
	}
	return nil
}

// Handle processes a job message. Unknown job types return ErrUnknownJobType.
func (j *RefreshJob) Handle(ctx context.Context, msg RefreshMessage) error {
	switch msg.JobType {
	case JobFieldRefresh:
		if msg.Region != "" {
			return j.RefreshRegion(ctx, msg.Region)
		}
		result := j.Run(ctx)
		// Consider it successful unless most regions failed.
		if result.Failed > result.Successful {
			return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.Regions)
		}
		return nil
	case JobHealthCheck:
		return j.HealthCheck()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
}

// HealthCheck fails when no tracked region has a usable field.
func (j *RefreshJob) HealthCheck() error {
	if j.fields == nil {
		return errors.New("no field service configured")
	}
	statuses := j.fields.Status()
	for _, st := range statuses {
		if st.Field.HasData && !st.IsStale {
			return nil
		}
	}
	return fmt.Errorf("no fresh field among %d regions", len(statuses))
}

func (j *RefreshJob) regions() []string {
	if len(j.config.Regions) > 0 {
		return j.config.Regions
	}
	if j.fields == nil {
		return nil
	}
	if expired := j.fields.ExpireAdHoc(time.Now()); len(expired) > 0 {
		j.logger.Info().Strs("regions", expired).Msg("expired idle ad-hoc regions")
	}
	return j.fields.Regions()
}

func (j *RefreshJob) refreshRegion(ctx context.Context, name string) []RefreshError {
	if j.fields == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	var errs []RefreshError
	status, err := j.fields.Refresh(ctx, name)
	if err != nil {
		j.logger.Warn().Err(err).Str("region", name).Msg("field refresh failed")
		errs = append(errs, RefreshError{Region: name, Provider: "airquality", Error: err.Error()})
	} else {
		j.logger.Debug().
			Str("region", name).
			Int("readings", status.Readings).
			Int("grid_points", status.GridPoints).
			Msg("field refreshed")
	}

	// Weather errors are non-fatal; the timing service degrades to neutral weather.
	if j.config.WarmWeather && j.weather != nil && status.HasData {
		if _, err := j.weather.GetForecast(ctx, status.Region.Center()); err != nil {
			j.logger.Warn().Err(err).Str("region", name).Msg("weather warm-up failed")
		} else {
			j.metrics.mu.Lock()
			j.metrics.WeatherRefreshes++
			j.metrics.mu.Unlock()
		}
	}
	return errs
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.RegionsRefreshed += int64(result.Successful)
	j.metrics.RegionsFailed += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:        j.metrics.TotalRuns,
		RegionsRefreshed: j.metrics.RegionsRefreshed,
		RegionsFailed:    j.metrics.RegionsFailed,
		WeatherRefreshes: j.metrics.WeatherRefreshes,
		LastRunAt:        j.metrics.LastRunAt,
		LastRunDuration:  j.metrics.LastRunDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map for status endpoints.
func (j *RefreshJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"total_runs":        m.TotalRuns,
		"regions_refreshed": m.RegionsRefreshed,
		"regions_failed":    m.RegionsFailed,
		"weather_refreshes": m.WeatherRefreshes,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
