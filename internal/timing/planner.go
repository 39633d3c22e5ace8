package timing

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/weather"
)

// Factor keys of TimeWindow.Factors.
const (
	FactorAQI       = "aqi_score"
	FactorWeather   = "weather_score"
	FactorTime      = "time_preference"
	FactorCircadian = "circadian_score"
	FactorOverall   = "overall_score"
)

// PlannerConfig holds configuration for the window planner.
type PlannerConfig struct {
	// Risk supplies the personal moderate-activity threshold (default: default tables).
	Risk *health.Model

	Weights ScoreWeights
	Comfort ComfortConfig

	// AQIScale normalises the average AQI of a window (default: 200).
	AQIScale float64

	// Confidence of clean windows (default: 0.8) and backfilled hours (default: 0.6).
	Confidence         float64
	FallbackConfidence float64

	// NeutralWeather is the weather score without forecast data (default: 0.5).
	NeutralWeather float64

	Logger zerolog.Logger
	Now    func() time.Time
}

// DefaultPlannerConfig returns the default planner configuration.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Weights:            ScoreWeights{AQI: 0.4, Weather: 0.3, TimeOfDay: 0.2, Circadian: 0.1},
		Comfort:            DefaultComfortConfig(),
		AQIScale:           200,
		Confidence:         0.8,
		FallbackConfidence: 0.6,
		NeutralWeather:     0.5,
	}
}

// Planner finds running windows in hourly forecasts. It holds no mutable
// state and is safe for concurrent use.
type Planner struct {
	cfg    PlannerConfig
	risk   *health.Model
	logger zerolog.Logger
	now    func() time.Time
}

// NewPlanner creates a planner. Zero fields take their defaults.
func NewPlanner(cfg PlannerConfig) *Planner {
	d := DefaultPlannerConfig()
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = d.Weights
	}
	if cfg.Comfort == (ComfortConfig{}) {
		cfg.Comfort = d.Comfort
	}
	if cfg.AQIScale <= 0 {
		cfg.AQIScale = d.AQIScale
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = d.Confidence
	}
	if cfg.FallbackConfidence <= 0 {
		cfg.FallbackConfidence = d.FallbackConfidence
	}
	if cfg.NeutralWeather <= 0 {
		cfg.NeutralWeather = d.NeutralWeather
	}
	risk := cfg.Risk
	if risk == nil {
		risk = health.NewModel(health.ModelConfig{Logger: cfg.Logger})
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Planner{cfg: cfg, risk: risk, logger: cfg.Logger, now: now}
}

// Threshold returns the AQI below which an hour counts as clean for the profile.
func (p *Planner) Threshold(profile health.UserProfile) float64 {
	return p.risk.PersonalThreshold(profile, health.ActivityModerate)
}

// FindOptimalWindows searches the first req.LookaheadH hours of an hourly
// AQI forecast for the best windows of req.DurationMin minutes. Weather may
// be nil. Missing data never fails the search; it marks the plan degraded.
func (p *Planner) FindOptimalWindows(forecast []airquality.HourlyAQI, wx *weather.Forecast, profile health.UserProfile, req Request) Plan {
	req = req.withDefaults()
	threshold := p.Threshold(profile)
	series := normalize(forecast, req.LookaheadH)

	plan := Plan{
		Threshold:     threshold,
		HoursSearched: len(series),
		GeneratedAt:   p.now().UTC(),
	}
	if len(series) == 0 {
		plan.Degraded = true
		plan.Reasons = append(plan.Reasons, ErrNoData.Error())
		plan.Windows = []TimeWindow{}
		return plan
	}
	if wx == nil || len(wx.Hourly) == 0 {
		plan.Degraded = true
		plan.Reasons = append(plan.Reasons, "weather forecast unavailable, using neutral weather")
	}
	if len(series) < hoursFor(req.DurationMin) {
		plan.Degraded = true
		plan.Reasons = append(plan.Reasons, "forecast shorter than the requested duration")
	}

	plan.Windows = p.findWindows(series, wx, threshold, req)

	p.logger.Debug().
		Int("hours", len(series)).
		Float64("threshold", threshold).
		Int("windows", len(plan.Windows)).
		Bool("degraded", plan.Degraded).
		Msg("time windows planned")

	return plan
}

func hoursFor(durationMin int) int {
	return max(1, int(math.Ceil(float64(durationMin)/60)))
}

// normalize orders the forecast by time and keeps at most limit hours.
func normalize(forecast []airquality.HourlyAQI, limit int) []airquality.HourlyAQI {
	series := slices.Clone(forecast)
	slices.SortStableFunc(series, func(a, b airquality.HourlyAQI) int {
		return a.Time.Compare(b.Time)
	})
	if limit > 0 && len(series) > limit {
		series = series[:limit]
	}
	return series
}

// findWindows implements the search over a normalised series.
func (p *Planner) findWindows(series []airquality.HourlyAQI, wx *weather.Forecast, threshold float64, req Request) []TimeWindow {
	h := hoursFor(req.DurationMin)

	runs := cleanRuns(series, threshold, h)
	spans := runs
	if len(spans) < req.MinWindows {
		spans = splitRuns(runs, h)
	}

	windows := make([]TimeWindow, 0, req.MinWindows)
	covered := make([]bool, len(series))
	for _, s := range spans {
		windows = append(windows, p.cleanWindow(series, wx, s[0], s[1], req))
		for k := s[0]; k < s[1]; k++ {
			covered[k] = true
		}
	}

	if len(windows) < req.MinWindows {
		windows = append(windows, p.backfill(series, covered, req.MinWindows-len(windows))...)
	}

	slices.SortStableFunc(windows, func(a, b TimeWindow) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return a.Start.Compare(b.Start)
	})
	if len(windows) > req.MinWindows {
		windows = windows[:req.MinWindows]
	}
	return windows
}

// cleanRuns returns the maximal runs [first, last) of hours strictly below
// threshold that are at least h hours long.
func cleanRuns(series []airquality.HourlyAQI, threshold float64, h int) [][2]int {
	var runs [][2]int
	i := 0
	for i < len(series) {
		if !(series[i].AQI < threshold) {
			i++
			continue
		}
		j := i
		for j < len(series) && series[j].AQI < threshold {
			j++
		}
		if j-i >= h {
			runs = append(runs, [2]int{i, j})
		}
		i = j
	}
	return runs
}

// splitRuns cuts every run into consecutive h-hour spans. Trailing hours
// shorter than h are left uncovered.
func splitRuns(runs [][2]int, h int) [][2]int {
	var spans [][2]int
	for _, r := range runs {
		for s := r[0]; s+h <= r[1]; s += h {
			spans = append(spans, [2]int{s, s + h})
		}
	}
	return spans
}

func (p *Planner) cleanWindow(series []airquality.HourlyAQI, wx *weather.Forecast, first, last int, req Request) TimeWindow {
	aqis := make([]float64, 0, last-first)
	for k := first; k < last; k++ {
		aqis = append(aqis, series[k].AQI)
	}
	avg := stat.Mean(aqis, nil)

	start := series[first].Time
	hour := localHour(start, req.Location)

	aqiScore := 1 - avg/p.cfg.AQIScale
	weatherScore := p.weatherScore(series[first:last], wx)
	timeScore := TimePreferenceScore(hour, req.PreferredTime)
	circadian := CircadianScore(hour)

	w := p.cfg.Weights
	score := w.AQI*aqiScore + w.Weather*weatherScore + w.TimeOfDay*timeScore + w.Circadian*circadian

	return TimeWindow{
		Start:        start,
		End:          series[last-1].Time.Add(time.Hour),
		AvgAQI:       avg,
		MaxAQI:       floats.Max(aqis),
		WeatherScore: weatherScore,
		Confidence:   p.cfg.Confidence,
		Score:        score,
		Quality:      RateScore(score),
		Kind:         KindClean,
		Factors: map[string]float64{
			FactorAQI:       aqiScore,
			FactorWeather:   weatherScore,
			FactorTime:      timeScore,
			FactorCircadian: circadian,
			FactorOverall:   score,
		},
		first: first,
		last:  last,
	}
}

// backfill returns up to n single uncovered hours with the lowest AQI.
func (p *Planner) backfill(series []airquality.HourlyAQI, covered []bool, n int) []TimeWindow {
	candidates := make([]TimeWindow, 0, len(series))
	for k, hr := range series {
		if covered[k] || math.IsNaN(hr.AQI) {
			continue
		}
		score := (p.cfg.AQIScale - hr.AQI) / p.cfg.AQIScale
		candidates = append(candidates, TimeWindow{
			Start:        hr.Time,
			End:          hr.Time.Add(time.Hour),
			AvgAQI:       hr.AQI,
			MaxAQI:       hr.AQI,
			WeatherScore: p.cfg.NeutralWeather,
			Confidence:   p.cfg.FallbackConfidence,
			Score:        score,
			Quality:      RateScore(score),
			Kind:         KindFallback,
			Factors:      map[string]float64{FactorOverall: score},
			first:        k,
			last:         k + 1,
		})
	}
	slices.SortStableFunc(candidates, func(a, b TimeWindow) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// weatherScore averages the comfort of the hours that have weather data.
func (p *Planner) weatherScore(hours []airquality.HourlyAQI, wx *weather.Forecast) float64 {
	var scores []float64
	for _, hr := range hours {
		if f, ok := wx.At(hr.Time); ok {
			scores = append(scores, p.cfg.Comfort.Comfort(f))
		}
	}
	if len(scores) == 0 {
		return p.cfg.NeutralWeather
	}
	return stat.Mean(scores, nil)
}

func localHour(t time.Time, loc *time.Location) int {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Hour()
}
