package timing_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/timing"
	"github.com/breatheroute/runcoach/internal/weather"
)

// base is a Monday.
var base = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func series(aqis ...float64) []airquality.HourlyAQI {
	out := make([]airquality.HourlyAQI, len(aqis))
	for i, a := range aqis {
		out[i] = airquality.HourlyAQI{Time: base.Add(time.Duration(i) * time.Hour), AQI: a}
	}
	return out
}

func hour(i int) time.Time {
	return base.Add(time.Duration(i) * time.Hour)
}

func newPlanner() *timing.Planner {
	return timing.NewPlanner(timing.PlannerConfig{Now: func() time.Time { return base }})
}

func TestFindOptimalWindows_ScenarioD(t *testing.T) {
	p := newPlanner()
	profile := health.NewUserProfile("u")
	require.InDelta(t, 75, p.Threshold(profile), 1e-9)

	plan := p.FindOptimalWindows(series(30, 30, 30, 120, 120, 30, 30, 30), nil, profile,
		timing.Request{DurationMin: 60, MinWindows: 2, PreferredTime: timing.PreferMorning})

	require.Len(t, plan.Windows, 2)
	// Hour 5 is inside the preferred morning, so that window ranks first.
	assert.Equal(t, hour(5), plan.Windows[0].Start)
	assert.Equal(t, hour(8), plan.Windows[0].End)
	assert.Equal(t, hour(0), plan.Windows[1].Start)
	assert.Equal(t, hour(3), plan.Windows[1].End)

	for _, w := range plan.Windows {
		assert.Equal(t, timing.KindClean, w.Kind)
		assert.InDelta(t, 30, w.AvgAQI, 1e-9)
		assert.InDelta(t, 0.8, w.Confidence, 1e-9)
		assert.InDelta(t, 0.5, w.WeatherScore, 1e-9)
		assert.False(t, w.Overlaps(timing.TimeWindow{Start: hour(3), End: hour(5)}), "polluted hours are excluded")
	}

	w := plan.Windows[0]
	// 0.4*(1-30/200) + 0.3*0.5 + 0.2*1.0 + 0.1*0.5
	assert.InDelta(t, 0.74, w.Score, 1e-9)
	assert.InDelta(t, w.Score, w.Factors[timing.FactorOverall], 1e-9)
	assert.Equal(t, timing.QualityGood, w.Quality)
	assert.True(t, plan.Degraded, "no weather forecast was supplied")
}

func TestFindOptimalWindows_SplitsRunsWhenShort(t *testing.T) {
	plan := newPlanner().FindOptimalWindows(series(30, 30, 30, 120, 120, 30, 30, 30), nil, health.NewUserProfile("u"),
		timing.Request{DurationMin: 60, MinWindows: 3, PreferredTime: timing.PreferMorning})

	require.Len(t, plan.Windows, 3)
	starts := []time.Time{plan.Windows[0].Start, plan.Windows[1].Start, plan.Windows[2].Start}
	assert.Equal(t, []time.Time{hour(6), hour(7), hour(5)}, starts)
	for _, w := range plan.Windows {
		assert.Equal(t, 1, w.Hours())
		assert.Equal(t, timing.KindClean, w.Kind)
	}
}

func TestFindOptimalWindows_Backfill(t *testing.T) {
	plan := newPlanner().FindOptimalWindows(series(120, 120, 50, 120, 130), nil, health.NewUserProfile("u"),
		timing.Request{DurationMin: 30, MinWindows: 3, PreferredTime: timing.PreferMorning})

	require.Len(t, plan.Windows, 3)

	clean := plan.Windows[0]
	assert.Equal(t, timing.KindClean, clean.Kind)
	assert.Equal(t, hour(2), clean.Start)

	for i, want := range []int{0, 1} {
		fb := plan.Windows[i+1]
		assert.Equal(t, timing.KindFallback, fb.Kind)
		assert.Equal(t, hour(want), fb.Start)
		assert.InDelta(t, (200-120)/200.0, fb.Score, 1e-9)
		assert.InDelta(t, 0.6, fb.Confidence, 1e-9)
		assert.InDelta(t, 0.5, fb.WeatherScore, 1e-9)
	}
}

func TestFindOptimalWindows_MultiHourDuration(t *testing.T) {
	plan := newPlanner().FindOptimalWindows(series(30, 30, 120, 30, 30, 30, 120, 30), nil, health.NewUserProfile("u"),
		timing.Request{DurationMin: 90, MinWindows: 2, PreferredTime: timing.PreferAny})

	require.Len(t, plan.Windows, 2)
	got := map[time.Time]time.Time{}
	for _, w := range plan.Windows {
		got[w.Start] = w.End
	}
	assert.Equal(t, map[time.Time]time.Time{hour(0): hour(2), hour(3): hour(6)}, got)
}

func TestFindOptimalWindows_NeverOverlaps(t *testing.T) {
	p := newPlanner()
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 300; round++ {
		n := 1 + rng.Intn(48)
		aqis := make([]float64, n)
		for i := range aqis {
			aqis[i] = float64(10 + rng.Intn(140))
		}
		req := timing.Request{
			DurationMin:   15 + rng.Intn(180),
			MinWindows:    1 + rng.Intn(6),
			LookaheadH:    48,
			PreferredTime: timing.PreferEvening,
		}

		plan := p.FindOptimalWindows(series(aqis...), nil, health.NewUserProfile("u"), req)
		assert.LessOrEqual(t, len(plan.Windows), req.MinWindows)

		for i := range plan.Windows {
			assert.True(t, plan.Windows[i].End.After(plan.Windows[i].Start))
			if i > 0 {
				assert.GreaterOrEqual(t, plan.Windows[i-1].Score, plan.Windows[i].Score, "sorted by score")
			}
			for j := i + 1; j < len(plan.Windows); j++ {
				if plan.Windows[i].Overlaps(plan.Windows[j]) {
					t.Fatalf("round %d: windows %d and %d overlap: %+v %+v", round, i, j, plan.Windows[i], plan.Windows[j])
				}
			}
		}
	}
}

func TestFindOptimalWindows_NoData(t *testing.T) {
	plan := newPlanner().FindOptimalWindows(nil, nil, health.NewUserProfile("u"), timing.Request{})

	assert.True(t, plan.Degraded)
	assert.Empty(t, plan.Windows)
	assert.NotNil(t, plan.Windows)
	assert.Contains(t, plan.Reasons, timing.ErrNoData.Error())
}

func TestFindOptimalWindows_Lookahead(t *testing.T) {
	aqis := make([]float64, 48)
	for i := range aqis {
		aqis[i] = 100
	}
	aqis[30] = 10 // beyond the lookahead

	plan := newPlanner().FindOptimalWindows(series(aqis...), nil, health.NewUserProfile("u"),
		timing.Request{DurationMin: 60, LookaheadH: 24, MinWindows: 1})

	assert.Equal(t, 24, plan.HoursSearched)
	require.Len(t, plan.Windows, 1)
	assert.Equal(t, timing.KindFallback, plan.Windows[0].Kind)
	assert.True(t, plan.Windows[0].Start.Before(hour(24)))
}

func TestFindOptimalWindows_UnsortedInput(t *testing.T) {
	s := series(30, 120, 30)
	s[0], s[2] = s[2], s[0]
	s[2].AQI = 120
	s[1].AQI = 30
	// Hours are now given as [2:30, 1:30, 0:120].

	plan := newPlanner().FindOptimalWindows(s, nil, health.NewUserProfile("u"),
		timing.Request{DurationMin: 60, MinWindows: 1})

	require.Len(t, plan.Windows, 1)
	assert.Equal(t, hour(1), plan.Windows[0].Start)
	assert.Equal(t, hour(3), plan.Windows[0].End)
}

func TestFindOptimalWindows_SensitiveProfile(t *testing.T) {
	profile := health.NewUserProfile("u")
	profile.Conditions = []health.Condition{health.ConditionAsthma}

	p := newPlanner()
	threshold := p.Threshold(profile)
	require.LessOrEqual(t, threshold, 60.0)

	// 60 is clean for a healthy runner but not below an asthmatic's threshold.
	plan := p.FindOptimalWindows(series(60, 60, 60), nil, profile, timing.Request{DurationMin: 60, MinWindows: 1})
	require.Len(t, plan.Windows, 1)
	assert.Equal(t, timing.KindFallback, plan.Windows[0].Kind)

	healthy := p.FindOptimalWindows(series(60, 60, 60), nil, health.NewUserProfile("u"), timing.Request{DurationMin: 60, MinWindows: 1})
	require.Len(t, healthy.Windows, 1)
	assert.Equal(t, timing.KindClean, healthy.Windows[0].Kind)
}

func TestFindOptimalWindows_WeatherScore(t *testing.T) {
	ideal := weather.HourlyForecast{Temperature: 15, Humidity: 50}
	hot := weather.HourlyForecast{Temperature: 25, Humidity: 50}

	wx := &weather.Forecast{}
	for i := 0; i < 3; i++ {
		h := ideal
		if i == 1 {
			h = hot
		}
		h.Time = hour(i)
		wx.Hourly = append(wx.Hourly, h)
	}

	plan := newPlanner().FindOptimalWindows(series(20, 20, 20), wx, health.NewUserProfile("u"),
		timing.Request{DurationMin: 60, MinWindows: 1})

	require.Len(t, plan.Windows, 1)
	// (1 + 0.5 + 1) / 3
	assert.InDelta(t, 2.5/3, plan.Windows[0].WeatherScore, 1e-9)
	assert.False(t, plan.Degraded)
}

func TestRateScore(t *testing.T) {
	tests := []struct {
		score float64
		want  timing.Quality
	}{
		{0.95, timing.QualityExcellent},
		{0.8, timing.QualityExcellent},
		{0.7, timing.QualityGood},
		{0.4, timing.QualityFair},
		{0.39, timing.QualityPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, timing.RateScore(tt.score), "score %v", tt.score)
	}
}
