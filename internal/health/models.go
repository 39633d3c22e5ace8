// Package health models a runner's personal sensitivity to air pollution:
// AQI thresholds per activity level, a rolling exposure budget and
// activity advice for current and forecast conditions.
package health

import (
	"errors"
	"slices"
	"time"
)

// Health errors.
var (
	ErrUserIDRequired = errors.New("health: user id is required")
	ErrInvalidScore   = errors.New("health: exposure score must be a finite non-negative number")
)

// Condition is a health condition that lowers pollution tolerance.
type Condition string

const (
	ConditionAsthma       Condition = "asthma"
	ConditionCOPD         Condition = "copd"
	ConditionHeartDisease Condition = "heart_disease"
	ConditionAllergies    Condition = "allergies"
	ConditionPregnancy    Condition = "pregnancy"
	ConditionDiabetes     Condition = "diabetes"
	ConditionHypertension Condition = "hypertension"
)

// ActivityLevel is the intensity of an activity.
type ActivityLevel string

const (
	ActivityRest     ActivityLevel = "rest"
	ActivityLight    ActivityLevel = "light"
	ActivityModerate ActivityLevel = "moderate"
	ActivityVigorous ActivityLevel = "vigorous"
)

// ActivityLevels lists every level from least to most intense.
var ActivityLevels = []ActivityLevel{ActivityRest, ActivityLight, ActivityModerate, ActivityVigorous}

const (
	DefaultAgeGroup     = "25-34"
	DefaultFitnessLevel = "intermediate"
)

// UserProfile is a runner's health and fitness profile. Biometrics are
// optional; a nil or non-positive value is treated as unknown.
type UserProfile struct {
	UserID       string      `json:"user_id"`
	Conditions   []Condition `json:"health_conditions,omitempty"`
	AgeGroup     string      `json:"age_group"`
	FitnessLevel string      `json:"fitness_level"`
	RestingHR    *float64    `json:"resting_hr,omitempty"`
	AvgHRV       *float64    `json:"avg_hrv,omitempty"`
	VO2Max       *float64    `json:"vo2max,omitempty"`
}

// NewUserProfile returns a profile with default age group and fitness level.
func NewUserProfile(userID string) UserProfile {
	return UserProfile{
		UserID:       userID,
		AgeGroup:     DefaultAgeGroup,
		FitnessLevel: DefaultFitnessLevel,
	}
}

// WithDefaults fills an empty age group and fitness level.
func (p UserProfile) WithDefaults() UserProfile {
	if p.AgeGroup == "" {
		p.AgeGroup = DefaultAgeGroup
	}
	if p.FitnessLevel == "" {
		p.FitnessLevel = DefaultFitnessLevel
	}
	return p
}

// HasCondition reports whether the profile lists c.
func (p UserProfile) HasCondition(c Condition) bool {
	return slices.Contains(p.Conditions, c)
}

func (p UserProfile) HasAsthma() bool    { return p.HasCondition(ConditionAsthma) }
func (p UserProfile) HasCOPD() bool      { return p.HasCondition(ConditionCOPD) }
func (p UserProfile) HasAllergies() bool { return p.HasCondition(ConditionAllergies) }

// HasRespiratoryCondition reports asthma or COPD.
func (p UserProfile) HasRespiratoryCondition() bool {
	return p.HasAsthma() || p.HasCOPD()
}

// RunningPreferences are a runner's route and timing preferences.
type RunningPreferences struct {
	PreferredDistanceM float64 `json:"preferred_distance_m"`
	MaxElevationGainM  float64 `json:"max_elevation_gain_m"`
	AvoidTraffic       bool    `json:"avoid_traffic"`
	PrioritizeParks    bool    `json:"prioritize_parks"`
	MaxDurationMin     int     `json:"max_duration_min"`
	PreferredTime      string  `json:"preferred_time"`
}

// DefaultRunningPreferences returns the default preferences.
func DefaultRunningPreferences() RunningPreferences {
	return RunningPreferences{
		PreferredDistanceM: 5000,
		MaxElevationGainM:  100,
		AvoidTraffic:       true,
		PrioritizeParks:    true,
		MaxDurationMin:     60,
		PreferredTime:      "morning",
	}
}

// ExposureBudget is a user's rolling exposure allowance.
type ExposureBudget struct {
	DailyLimit      float64 `json:"daily_limit"`
	WeeklyLimit     float64 `json:"weekly_limit"`
	CurrentUsage    float64 `json:"current_usage"`
	RemainingBudget float64 `json:"remaining_budget"`
	UsagePercentage float64 `json:"usage_percentage"`
}

// ExposureEntry is the accumulated exposure of one user on one day.
type ExposureEntry struct {
	UserID string    `json:"user_id"`
	Day    time.Time `json:"day"`
	Score  float64   `json:"score"`
}

// DayOf returns midnight UTC of t's calendar day in t's own location.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
