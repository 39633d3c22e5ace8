package routing

import (
	"math"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/pkg/geo"
)

// ObjectiveConfig holds the constants of the exposure and penalty objectives.
type ObjectiveConfig struct {
	// PM25Weight and AQIWeight blend the two pollutants per segment.
	PM25Weight float64
	AQIWeight  float64
	// VentilationFactor scales inhaled dose while running.
	VentilationFactor float64
	// ElevationScale divides excess elevation gain in meters.
	ElevationScale float64
}

// DefaultObjectiveConfig returns the default objective constants.
func DefaultObjectiveConfig() ObjectiveConfig {
	return ObjectiveConfig{
		PM25Weight:        0.7,
		AQIWeight:         0.3,
		VentilationFactor: 2.5,
		ElevationScale:    100,
	}
}

func (c ObjectiveConfig) withDefaults() ObjectiveConfig {
	d := DefaultObjectiveConfig()
	if c.PM25Weight == 0 && c.AQIWeight == 0 {
		c.PM25Weight, c.AQIWeight = d.PM25Weight, d.AQIWeight
	}
	if c.VentilationFactor == 0 {
		c.VentilationFactor = d.VentilationFactor
	}
	if c.ElevationScale == 0 {
		c.ElevationScale = d.ElevationScale
	}
	return c
}

// CalculateObjectives computes the objective vector of a candidate. The
// profile does not change the objectives themselves; it only affects ranking.
func CalculateObjectives(field Field, c Candidate, _ health.UserProfile, prefs health.RunningPreferences, cfg ObjectiveConfig) Objectives {
	cfg = cfg.withDefaults()

	distErr := 0.0
	if prefs.PreferredDistanceM > 0 {
		distErr = math.Abs(c.DistanceM-prefs.PreferredDistanceM) / prefs.PreferredDistanceM
	}

	return Objectives{
		Exposure:         exposureRate(field, c, cfg),
		DistanceError:    distErr,
		ElevationPenalty: math.Max(0, c.ElevationGainM-prefs.MaxElevationGainM) / cfg.ElevationScale,
		GreenSpace:       -c.GreenCoverage,
		Safety:           -c.Safety(),
	}
}

// exposureRate is the time-weighted mean of the blended pollutant dose over
// the route's segments. Each segment is sampled at its midpoint and gets an
// equal share of the duration, so the result is a rate independent of how
// densely the same path is sampled.
func exposureRate(field Field, c Candidate, cfg ObjectiveConfig) float64 {
	n := len(c.Waypoints) - 1
	if n < 1 || c.DurationS <= 0 || field == nil {
		return 0
	}

	segDuration := c.DurationS / float64(n)
	total := 0.0
	for i := 0; i < n; i++ {
		mid := geo.Midpoint(c.Waypoints[i], c.Waypoints[i+1])
		pm25 := field.Query(airquality.PollutantPM25, mid)
		aqi := field.Query(airquality.PollutantAQI, mid)
		total += (pm25*cfg.PM25Weight + aqi*cfg.AQIWeight) * segDuration * cfg.VentilationFactor
	}
	return total / c.DurationS
}
