package timing

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/telemetry"
	"github.com/breatheroute/runcoach/internal/weather"
	"github.com/breatheroute/runcoach/pkg/geo"
)

// AQIForecaster supplies an hourly AQI forecast for a location.
type AQIForecaster interface {
	ForecastAQI(ctx context.Context, at geo.Point) ([]airquality.HourlyAQI, error)
}

// WeatherForecaster supplies an hourly weather forecast for a location.
// *weather.Service satisfies it.
type WeatherForecaster interface {
	GetForecast(ctx context.Context, at geo.Point) (*weather.Forecast, error)
}

// ServiceConfig holds configuration for the timing service.
type ServiceConfig struct {
	Planner *Planner
	AQI     AQIForecaster
	Weather WeatherForecaster // optional

	// Defaults fills zero request fields before the built-in defaults apply.
	Defaults Request

	Metrics *telemetry.EngineMetrics
	Logger  zerolog.Logger
}

// Service fetches forecasts and runs the planner on them. Weather failures
// degrade to neutral weather; AQI failures degrade to an empty plan.
type Service struct {
	planner  *Planner
	aqi      AQIForecaster
	weather  WeatherForecaster
	defaults Request
	metrics  *telemetry.EngineMetrics
	logger   zerolog.Logger
}

// NewService creates a timing service.
func NewService(cfg ServiceConfig) *Service {
	planner := cfg.Planner
	if planner == nil {
		planner = NewPlanner(PlannerConfig{Logger: cfg.Logger})
	}
	return &Service{
		planner:  planner,
		aqi:      cfg.AQI,
		weather:  cfg.Weather,
		defaults: cfg.Defaults,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Planner returns the underlying planner.
func (s *Service) Planner() *Planner {
	return s.planner
}

// OptimalWindows returns the best windows to run near at.
func (s *Service) OptimalWindows(ctx context.Context, at geo.Point, profile health.UserProfile, req Request) (Plan, error) {
	if !at.Valid() {
		return Plan{}, ErrInvalidRequest
	}
	series, wx, reasons := s.forecasts(ctx, at)

	plan := s.planner.FindOptimalWindows(series, wx, profile, s.fill(req))
	plan.Reasons = mergeReasons(reasons, plan.Reasons)
	if len(reasons) > 0 {
		plan.Degraded = true
	}
	s.metrics.RecordWindowSearch(ctx, "optimal", len(plan.Windows), plan.Degraded)
	return plan, nil
}

// WeeklySchedule returns a run schedule for the next seven days near at.
func (s *Service) WeeklySchedule(ctx context.Context, at geo.Point, profile health.UserProfile, runsPerWeek int, loc *time.Location) (WeeklySchedule, error) {
	if !at.Valid() {
		return WeeklySchedule{}, ErrInvalidRequest
	}
	series, wx, reasons := s.forecasts(ctx, at)

	schedule := s.planner.SuggestWeeklySchedule(series, wx, profile, runsPerWeek, loc)
	schedule.Reasons = mergeReasons(reasons, schedule.Reasons)
	if len(reasons) > 0 {
		schedule.Degraded = true
	}
	s.metrics.RecordWindowSearch(ctx, "weekly", schedule.RunsPlanned, schedule.Degraded)
	return schedule, nil
}

func (s *Service) forecasts(ctx context.Context, at geo.Point) ([]airquality.HourlyAQI, *weather.Forecast, []string) {
	var reasons []string

	var series []airquality.HourlyAQI
	if s.aqi == nil {
		reasons = append(reasons, "no air quality forecaster configured")
	} else {
		var err error
		series, err = s.aqi.ForecastAQI(ctx, at)
		if err != nil {
			s.logger.Warn().Err(err).
				Float64("lat", at.Lat).
				Float64("lon", at.Lon).
				Msg("air quality forecast unavailable")
			reasons = append(reasons, "air quality forecast unavailable")
			series = nil
		}
	}

	var wx *weather.Forecast
	if s.weather != nil {
		var err error
		wx, err = s.weather.GetForecast(ctx, at)
		if err != nil {
			s.logger.Warn().Err(err).
				Float64("lat", at.Lat).
				Float64("lon", at.Lon).
				Msg("weather forecast unavailable, using neutral weather")
			wx = nil
		}
	}
	return series, wx, reasons
}

func (s *Service) fill(req Request) Request {
	if req.DurationMin <= 0 {
		req.DurationMin = s.defaults.DurationMin
	}
	if req.LookaheadH <= 0 {
		req.LookaheadH = s.defaults.LookaheadH
	}
	if req.MinWindows <= 0 {
		req.MinWindows = s.defaults.MinWindows
	}
	if req.PreferredTime == "" {
		req.PreferredTime = s.defaults.PreferredTime
	}
	return req
}

func mergeReasons(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, r := range slices.Concat(a, b) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
