package routing

import (
	"math"

	"github.com/breatheroute/runcoach/internal/health"
)

// Weights are the per-objective preference weights used on the Pareto front.
type Weights struct {
	Exposure  float64 `json:"exposure"`
	Distance  float64 `json:"distance"`
	Elevation float64 `json:"elevation"`
	Green     float64 `json:"green"`
	Safety    float64 `json:"safety"`
}

// WeightConfig holds base weights and their personalised overrides.
type WeightConfig struct {
	Base Weights

	RespiratoryExposure float64 // asthma or COPD
	AllergyGreen        float64
	ParksGreen          float64 // overrides AllergyGreen
	TrafficSafety       float64
}

// DefaultWeightConfig returns the default preference weights.
func DefaultWeightConfig() WeightConfig {
	return WeightConfig{
		Base: Weights{
			Exposure:  1.0,
			Distance:  0.5,
			Elevation: 0.3,
			Green:     0.4,
			Safety:    0.5,
		},
		RespiratoryExposure: 2.0,
		AllergyGreen:        0.8,
		ParksGreen:          0.9,
		TrafficSafety:       0.8,
	}
}

// WeightsFor personalises the weights for a profile and preferences.
func (c WeightConfig) WeightsFor(profile health.UserProfile, prefs health.RunningPreferences) Weights {
	w := c.Base
	if profile.HasRespiratoryCondition() {
		w.Exposure = c.RespiratoryExposure
	}
	if profile.HasAllergies() {
		w.Green = c.AllergyGreen
	}
	if prefs.PrioritizeParks {
		w.Green = c.ParksGreen
	}
	if prefs.AvoidTraffic {
		w.Safety = c.TrafficSafety
	}
	return w
}

// Score is the weighted magnitude of an objective vector. Lower is better.
func (w Weights) Score(o Objectives) float64 {
	return w.Exposure*math.Abs(o.Exposure) +
		w.Distance*math.Abs(o.DistanceError) +
		w.Elevation*math.Abs(o.ElevationPenalty) +
		w.Green*math.Abs(o.GreenSpace) +
		w.Safety*math.Abs(o.Safety)
}

// RankByPreference returns the index into front of the lowest scoring
// vector and its score. Ties keep the earliest entry.
func RankByPreference(front []Objectives, w Weights) (int, float64, error) {
	if len(front) == 0 {
		return -1, 0, ErrNoCandidates
	}
	best, bestScore := 0, w.Score(front[0])
	for i := 1; i < len(front); i++ {
		if s := w.Score(front[i]); s < bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore, nil
}
