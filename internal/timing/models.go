// Package timing searches an hourly forecast for the best times to run.
// Windows are contiguous clean hours scored by air quality, weather comfort,
// the runner's preferred time of day and a circadian performance curve.
package timing

import (
	"errors"
	"time"
)

// Timing errors.
var (
	ErrNoData         = errors.New("timing: no forecast data")
	ErrInvalidRequest = errors.New("timing: invalid request")
)

// Preferred times of day.
const (
	PreferMorning   = "morning"
	PreferAfternoon = "afternoon"
	PreferEvening   = "evening"
	PreferAny       = "any"
)

// Window kinds.
const (
	// KindClean is a run of hours below the personal threshold.
	KindClean = "clean"
	// KindFallback is a single backfilled hour used when clean runs are scarce.
	KindFallback = "fallback"
)

// Request parameterises a window search.
type Request struct {
	DurationMin   int    `json:"duration_minutes"`
	LookaheadH    int    `json:"lookahead_hours"`
	MinWindows    int    `json:"min_windows"`
	PreferredTime string `json:"preferred_time"`

	// Location is used for hour-of-day scoring (default: each hour's own location).
	Location *time.Location `json:"-"`
}

// DefaultRequest returns the default search request.
func DefaultRequest() Request {
	return Request{
		DurationMin:   45,
		LookaheadH:    24,
		MinWindows:    3,
		PreferredTime: PreferMorning,
	}
}

func (r Request) withDefaults() Request {
	d := DefaultRequest()
	if r.DurationMin <= 0 {
		r.DurationMin = d.DurationMin
	}
	if r.LookaheadH <= 0 {
		r.LookaheadH = d.LookaheadH
	}
	if r.MinWindows <= 0 {
		r.MinWindows = d.MinWindows
	}
	if r.PreferredTime == "" {
		r.PreferredTime = d.PreferredTime
	}
	return r
}

// Quality is a coarse rating of a window score.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// RateScore maps an overall score in [0,1] to a quality rating.
func RateScore(score float64) Quality {
	switch {
	case score >= 0.8:
		return QualityExcellent
	case score >= 0.6:
		return QualityGood
	case score >= 0.4:
		return QualityFair
	default:
		return QualityPoor
	}
}

// TimeWindow is a recommended period to run. End is exclusive.
type TimeWindow struct {
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	AvgAQI       float64            `json:"avg_aqi"`
	MaxAQI       float64            `json:"max_aqi"`
	WeatherScore float64            `json:"weather_score"`
	Confidence   float64            `json:"confidence"`
	Score        float64            `json:"score"`
	Quality      Quality            `json:"quality"`
	Kind         string             `json:"kind"`
	Factors      map[string]float64 `json:"factors"`

	first, last int // forecast hour indices, last exclusive
}

// Hours returns the window length in hours.
func (w TimeWindow) Hours() int {
	return int(w.End.Sub(w.Start) / time.Hour)
}

// Overlaps reports whether two windows share any time.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Plan is the result of a window search.
type Plan struct {
	Windows       []TimeWindow `json:"windows"`
	Threshold     float64      `json:"threshold"`
	HoursSearched int          `json:"hours_searched"`
	Degraded      bool         `json:"degraded"`
	Reasons       []string     `json:"reasons,omitempty"`
	GeneratedAt   time.Time    `json:"generated_at"`
}

// DaySchedule is one day of a weekly schedule.
type DaySchedule struct {
	Date        time.Time   `json:"date"`
	Day         string      `json:"day"`
	Recommended bool        `json:"recommended"`
	Window      *TimeWindow `json:"best_time,omitempty"`
	BestScore   float64     `json:"best_score"`
	HasForecast bool        `json:"has_forecast"`
}

// WeeklySchedule spreads a number of runs over the next seven days.
type WeeklySchedule struct {
	Days        []DaySchedule `json:"days"`
	RunsPerWeek int           `json:"runs_per_week"`
	RunsPlanned int           `json:"runs_planned"`
	Threshold   float64       `json:"threshold"`
	Degraded    bool          `json:"degraded"`
	Reasons     []string      `json:"reasons,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}
