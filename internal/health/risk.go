package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Tables holds the tunable constants of the risk model.
//
// Two choices differ from the model these tables were first calibrated on.
// An age group missing from AgeMultipliers, the empty group included, is
// neutral (1.0) rather than 0.9, so a profile that omits its age is scored
// like the default "25-34" runner. The VO2max bands of fitnessMultiplier
// test the highest band first, so an estimate above 60 earns 1.25 instead of
// stopping at the 1.15 of the above-50 band.
type Tables struct {
	// BaseThresholds is the AQI ceiling per activity level.
	BaseThresholds map[ActivityLevel]float64

	// ConditionMultipliers scale the threshold; the most restrictive applies.
	ConditionMultipliers map[Condition]float64

	// AgeMultipliers scale the threshold per age group. Unknown groups use 1.0.
	AgeMultipliers map[string]float64

	// DailyBudget and WeeklyBudget are exposure allowances for a reference
	// runner whose moderate threshold equals BudgetReference.
	DailyBudget     float64
	WeeklyBudget    float64
	BudgetReference float64
}

// DefaultTables returns the standard risk tables.
func DefaultTables() Tables {
	return Tables{
		BaseThresholds: map[ActivityLevel]float64{
			ActivityRest:     150,
			ActivityLight:    100,
			ActivityModerate: 75,
			ActivityVigorous: 50,
		},
		ConditionMultipliers: map[Condition]float64{
			ConditionAsthma:       0.6,
			ConditionCOPD:         0.5,
			ConditionHeartDisease: 0.65,
			ConditionAllergies:    0.8,
			ConditionPregnancy:    0.7,
			ConditionDiabetes:     0.85,
			ConditionHypertension: 0.8,
		},
		AgeMultipliers: map[string]float64{
			"0-12":  0.6,
			"13-17": 0.8,
			"18-24": 1.0,
			"25-34": 1.0,
			"35-44": 0.95,
			"45-54": 0.9,
			"55-64": 0.8,
			"65+":   0.7,
		},
		DailyBudget:     1000,
		WeeklyBudget:    5000,
		BudgetReference: 75,
	}
}

// ModelConfig holds configuration for the risk model.
type ModelConfig struct {
	// Tables overrides the default tables. Nil maps and zero budgets fall
	// back to DefaultTables.
	Tables Tables

	// Repository stores exposure history (default: in-memory).
	Repository Repository

	// Logger for model operations.
	Logger zerolog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Model is the personal risk model.
type Model struct {
	tables Tables
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewModel creates a risk model.
func NewModel(cfg ModelConfig) *Model {
	def := DefaultTables()
	t := cfg.Tables
	if t.BaseThresholds == nil {
		t.BaseThresholds = def.BaseThresholds
	}
	if t.ConditionMultipliers == nil {
		t.ConditionMultipliers = def.ConditionMultipliers
	}
	if t.AgeMultipliers == nil {
		t.AgeMultipliers = def.AgeMultipliers
	}
	if t.DailyBudget <= 0 {
		t.DailyBudget = def.DailyBudget
	}
	if t.WeeklyBudget <= 0 {
		t.WeeklyBudget = def.WeeklyBudget
	}
	if t.BudgetReference <= 0 {
		t.BudgetReference = def.BudgetReference
	}

	repo := cfg.Repository
	if repo == nil {
		repo = NewInMemoryRepository()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Model{tables: t, repo: repo, logger: cfg.Logger, now: now}
}

// ThresholdBreakdown is a personal threshold with the factors behind it.
type ThresholdBreakdown struct {
	Activity  ActivityLevel `json:"activity"`
	Base      float64       `json:"base"`
	Condition float64       `json:"condition"`
	Age       float64       `json:"age"`
	Fitness   float64       `json:"fitness"`
	HRV       float64       `json:"hrv"`
	Threshold float64       `json:"threshold"`
}

// PersonalThreshold returns the highest AQI at which activity is considered
// safe for the profile. Unknown activity levels use moderate.
func (m *Model) PersonalThreshold(profile UserProfile, activity ActivityLevel) float64 {
	return m.ThresholdBreakdown(profile, activity).Threshold
}

// ThresholdBreakdown computes the personal threshold and its factors.
func (m *Model) ThresholdBreakdown(profile UserProfile, activity ActivityLevel) ThresholdBreakdown {
	base, ok := m.tables.BaseThresholds[activity]
	if !ok {
		activity = ActivityModerate
		base = m.tables.BaseThresholds[ActivityModerate]
	}

	b := ThresholdBreakdown{
		Activity:  activity,
		Base:      base,
		Condition: m.conditionMultiplier(profile),
		Age:       m.ageMultiplier(profile),
		Fitness:   fitnessMultiplier(profile),
		HRV:       hrvMultiplier(profile),
	}
	b.Threshold = b.Base * b.Condition * b.Age * b.Fitness * b.HRV

	m.logger.Debug().
		Str("user_id", profile.UserID).
		Str("activity", string(activity)).
		Float64("threshold", b.Threshold).
		Float64("conditions", b.Condition).
		Float64("age", b.Age).
		Float64("fitness", b.Fitness).
		Float64("hrv", b.HRV).
		Msg("personal threshold")

	return b
}

func (m *Model) conditionMultiplier(p UserProfile) float64 {
	mult := 1.0
	for _, c := range p.Conditions {
		if v, ok := m.tables.ConditionMultipliers[c]; ok {
			mult = math.Min(mult, v)
		}
	}
	return mult
}

func (m *Model) ageMultiplier(p UserProfile) float64 {
	if v, ok := m.tables.AgeMultipliers[p.AgeGroup]; ok {
		return v
	}
	return 1.0
}

func known(v *float64) (float64, bool) {
	if v == nil || *v <= 0 || math.IsNaN(*v) {
		return 0, false
	}
	return *v, true
}

// fitnessMultiplier rewards high VO2max and low resting heart rate, clamped
// to [0.8, 1.3].
func fitnessMultiplier(p UserProfile) float64 {
	mult := 1.0

	if vo2, ok := known(p.VO2Max); ok {
		switch {
		case vo2 < 35:
			mult *= 0.85
		case vo2 > 60:
			mult *= 1.25
		case vo2 > 50:
			mult *= 1.15
		}
	}

	if hr, ok := known(p.RestingHR); ok {
		switch {
		case hr > 80:
			mult *= 0.9
		case hr < 45:
			mult *= 1.2
		case hr < 55:
			mult *= 1.1
		}
	}

	return math.Min(math.Max(mult, 0.8), 1.3)
}

// hrvMultiplier reflects recovery status.
func hrvMultiplier(p UserProfile) float64 {
	hrv, ok := known(p.AvgHRV)
	if !ok {
		return 1.0
	}
	switch {
	case hrv < 30:
		return 0.85
	case hrv < 50:
		return 0.95
	case hrv > 70:
		return 1.1
	default:
		return 1.0
	}
}

// ExposureBudget computes the user's exposure allowance over the trailing
// windowDays days, today included. Limits scale with the moderate threshold.
func (m *Model) ExposureBudget(ctx context.Context, profile UserProfile, windowDays int) (ExposureBudget, error) {
	if profile.UserID == "" {
		return ExposureBudget{}, ErrUserIDRequired
	}
	if windowDays <= 0 {
		windowDays = 7
	}

	risk := m.PersonalThreshold(profile, ActivityModerate) / m.tables.BudgetReference
	daily := m.tables.DailyBudget * risk
	weekly := m.tables.WeeklyBudget * risk

	since := DayOf(m.now()).AddDate(0, 0, -(windowDays - 1))
	usage, err := m.repo.SumExposure(ctx, profile.UserID, since)
	if err != nil {
		return ExposureBudget{}, fmt.Errorf("sum exposure: %w", err)
	}

	budget := ExposureBudget{
		DailyLimit:      daily,
		WeeklyLimit:     weekly,
		CurrentUsage:    usage,
		RemainingBudget: math.Max(0, weekly-usage),
	}
	if weekly > 0 {
		budget.UsagePercentage = usage / weekly * 100
	}
	return budget, nil
}

// UpdateExposureHistory adds score to the user's total for date's calendar
// day. A zero date means now.
func (m *Model) UpdateExposureHistory(ctx context.Context, userID string, score float64, date time.Time) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		return ErrInvalidScore
	}
	if date.IsZero() {
		date = m.now()
	}

	if err := m.repo.AddExposure(ctx, userID, DayOf(date), score); err != nil {
		return fmt.Errorf("add exposure: %w", err)
	}

	m.logger.Debug().
		Str("user_id", userID).
		Float64("score", score).
		Time("day", DayOf(date)).
		Msg("exposure recorded")
	return nil
}

// ExposureHistory returns the user's daily entries since the given day.
func (m *Model) ExposureHistory(ctx context.Context, userID string, since time.Time) ([]ExposureEntry, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	return m.repo.History(ctx, userID, DayOf(since))
}
