package timing

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/weather"
)

// Weekly schedule parameters.
const (
	WeeklyRunMinutes     = 45
	WeeklyWindowsPerDay  = 2
	DefaultRunsPerWeek   = 3
	scheduleDays         = 7
	hoursPerScheduledDay = 24
)

// SuggestWeeklySchedule spreads runsPerWeek runs over the seven days
// covered by forecast, hours [24d, 24d+24) forming day d. Days are ranked
// by their best window and picked greedily with at least one rest day in
// between; when that leaves too few runs the next best days are added even
// if adjacent. Days without forecast data are rest days.
func (p *Planner) SuggestWeeklySchedule(forecast []airquality.HourlyAQI, wx *weather.Forecast, profile health.UserProfile, runsPerWeek int, loc *time.Location) WeeklySchedule {
	if runsPerWeek <= 0 {
		runsPerWeek = DefaultRunsPerWeek
	}
	runsPerWeek = min(runsPerWeek, scheduleDays)

	threshold := p.Threshold(profile)
	series := normalize(forecast, scheduleDays*hoursPerScheduledDay)

	schedule := WeeklySchedule{
		RunsPerWeek: runsPerWeek,
		Threshold:   threshold,
		GeneratedAt: p.now().UTC(),
		Days:        make([]DaySchedule, scheduleDays),
	}

	origin := p.now()
	if len(series) > 0 {
		origin = series[0].Time
	}
	if loc != nil {
		origin = origin.In(loc)
	}

	req := Request{
		DurationMin:   WeeklyRunMinutes,
		LookaheadH:    hoursPerScheduledDay,
		MinWindows:    WeeklyWindowsPerDay,
		PreferredTime: PreferAny,
		Location:      loc,
	}

	var ranked []int
	for d := 0; d < scheduleDays; d++ {
		date := origin.AddDate(0, 0, d)
		day := DaySchedule{
			Date:      time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()),
			Day:       date.Weekday().String(),
			BestScore: math.Inf(-1),
		}

		lo, hi := d*hoursPerScheduledDay, (d+1)*hoursPerScheduledDay
		if lo < len(series) {
			hours := series[lo:min(hi, len(series))]
			windows := p.findWindows(hours, wx, threshold, req)
			day.HasForecast = true
			if len(windows) > 0 {
				best := windows[0]
				day.Window = &best
				day.BestScore = best.Score
				ranked = append(ranked, d)
			}
		}
		schedule.Days[d] = day
	}

	slices.SortStableFunc(ranked, func(a, b int) int {
		return cmp.Compare(schedule.Days[b].BestScore, schedule.Days[a].BestScore)
	})

	selected := make(map[int]bool, runsPerWeek)
	for _, d := range ranked {
		if len(selected) >= runsPerWeek {
			break
		}
		if !selected[d-1] && !selected[d+1] {
			selected[d] = true
		}
	}
	for _, d := range ranked {
		if len(selected) >= runsPerWeek {
			break
		}
		selected[d] = true
	}

	for d := range schedule.Days {
		day := &schedule.Days[d]
		if selected[d] {
			day.Recommended = true
			schedule.RunsPlanned++
			continue
		}
		day.Window = nil
		if math.IsInf(day.BestScore, -1) {
			day.BestScore = 0
		}
	}

	covered := 0
	for _, day := range schedule.Days {
		if day.HasForecast {
			covered++
		}
	}
	if covered < scheduleDays {
		schedule.Degraded = true
		schedule.Reasons = append(schedule.Reasons, "forecast covers fewer than seven days")
	}
	if wx == nil || len(wx.Hourly) == 0 {
		schedule.Degraded = true
		schedule.Reasons = append(schedule.Reasons, "weather forecast unavailable, using neutral weather")
	}
	if schedule.RunsPlanned < runsPerWeek {
		schedule.Reasons = append(schedule.Reasons, "not enough forecast days for the requested runs")
	}

	p.logger.Debug().
		Int("runs_per_week", runsPerWeek).
		Int("runs_planned", schedule.RunsPlanned).
		Int("days_with_forecast", covered).
		Msg("weekly schedule planned")

	return schedule
}
