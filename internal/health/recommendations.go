package health

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Status rates current conditions against the personal threshold.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusModerate  Status = "moderate"
	StatusPoor      Status = "poor"
	StatusHazardous Status = "hazardous"
)

// RiskLevel rates an AQI relative to a threshold.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// Verdict answers "should I do this activity now".
type Verdict string

const (
	VerdictYes     Verdict = "yes"
	VerdictLimited Verdict = "limited"
	VerdictNo      Verdict = "no"
)

// AssessRiskLevel buckets aqi/threshold at 0.5, 0.75, 1.0 and 1.5.
func AssessRiskLevel(aqi, threshold float64) RiskLevel {
	if threshold <= 0 {
		return RiskVeryHigh
	}
	switch ratio := aqi / threshold; {
	case ratio < 0.5:
		return RiskVeryLow
	case ratio < 0.75:
		return RiskLow
	case ratio < 1.0:
		return RiskModerate
	case ratio < 1.5:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// CurrentConditions rates the current AQI.
type CurrentConditions struct {
	Status    Status  `json:"status"`
	Advice    string  `json:"advice"`
	AQI       float64 `json:"aqi"`
	Threshold float64 `json:"threshold"`
}

// ForecastWindow is a run of forecast hours below the threshold. Hours are
// offsets into the forecast; EndHour is exclusive.
type ForecastWindow struct {
	StartHour     int     `json:"start_hour"`
	EndHour       int     `json:"end_hour"`
	DurationHours int     `json:"duration_hours"`
	AvgAQI        float64 `json:"avg_aqi"`
	Quality       string  `json:"quality"`
}

// ActivityAdvice is the guidance for one activity type.
type ActivityAdvice struct {
	Verdict   Verdict `json:"verdict"`
	Intensity string  `json:"intensity,omitempty"`
	Duration  string  `json:"duration,omitempty"`
	Notes     string  `json:"notes"`
}

// Activities groups advice per activity type.
type Activities struct {
	Running       ActivityAdvice `json:"running"`
	Cycling       ActivityAdvice `json:"cycling"`
	Walking       ActivityAdvice `json:"walking"`
	OutdoorSports ActivityAdvice `json:"outdoor_sports"`
}

// Recommendations is the activity advice for a profile.
type Recommendations struct {
	Current         CurrentConditions `json:"current"`
	ForecastWindows []ForecastWindow  `json:"forecast_windows"`
	Activities      Activities        `json:"activities"`
}

// ActivityRecommendations advises on outdoor activity given the current AQI
// and an hourly AQI forecast starting now.
func (m *Model) ActivityRecommendations(profile UserProfile, currentAQI float64, forecast []float64) Recommendations {
	threshold := m.PersonalThreshold(profile, ActivityModerate)

	return Recommendations{
		Current:         currentConditions(currentAQI, threshold),
		ForecastWindows: forecastWindows(forecast, threshold, 1),
		Activities: Activities{
			Running:       runningAdvice(currentAQI, threshold),
			Cycling:       cyclingAdvice(currentAQI, threshold),
			Walking:       walkingAdvice(currentAQI, threshold),
			OutdoorSports: sportsAdvice(currentAQI, threshold),
		},
	}
}

func currentConditions(aqi, threshold float64) CurrentConditions {
	c := CurrentConditions{AQI: aqi, Threshold: threshold}
	switch {
	case aqi < threshold*0.5:
		c.Status, c.Advice = StatusExcellent, "Perfect conditions for outdoor exercise"
	case aqi < threshold*0.75:
		c.Status, c.Advice = StatusGood, "Good conditions for outdoor activities"
	case aqi < threshold:
		c.Status, c.Advice = StatusModerate, "Consider shorter duration or reduced intensity"
	case aqi < threshold*1.5:
		c.Status, c.Advice = StatusPoor, "Limit outdoor activity, consider indoor alternatives"
	default:
		c.Status, c.Advice = StatusHazardous, "Avoid outdoor exercise, stay indoors"
	}
	return c
}

// forecastWindows returns the maximal runs of hours below threshold lasting
// at least minHours.
func forecastWindows(forecast []float64, threshold float64, minHours int) []ForecastWindow {
	windows := []ForecastWindow{}
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minHours {
			avg := stat.Mean(forecast[start:end], nil)
			quality := "moderate"
			if avg < threshold*0.75 {
				quality = "good"
			}
			windows = append(windows, ForecastWindow{
				StartHour:     start,
				EndHour:       end,
				DurationHours: end - start,
				AvgAQI:        avg,
				Quality:       quality,
			})
		}
		start = -1
	}

	for i, aqi := range forecast {
		if aqi < threshold {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(forecast))
	return windows
}

func runningAdvice(aqi, threshold float64) ActivityAdvice {
	switch {
	case aqi < threshold*0.5:
		return ActivityAdvice{Verdict: VerdictYes, Intensity: "normal", Duration: "normal", Notes: "Excellent conditions for running"}
	case aqi < threshold*0.75:
		return ActivityAdvice{Verdict: VerdictYes, Intensity: "moderate", Duration: "normal", Notes: "Good conditions, stay hydrated"}
	case aqi < threshold:
		return ActivityAdvice{Verdict: VerdictYes, Intensity: "easy", Duration: "reduced", Notes: "Run at easy pace, consider shorter route"}
	default:
		return ActivityAdvice{Verdict: VerdictNo, Notes: "Consider indoor treadmill or postpone"}
	}
}

// cyclingAdvice uses a lower threshold for the higher ventilation rate.
func cyclingAdvice(aqi, threshold float64) ActivityAdvice {
	adjusted := threshold * 0.85
	switch {
	case aqi < adjusted*0.5:
		return ActivityAdvice{Verdict: VerdictYes, Intensity: "normal", Notes: "Great conditions for cycling"}
	case aqi < adjusted:
		return ActivityAdvice{Verdict: VerdictYes, Intensity: "moderate", Notes: "Moderate pace recommended, avoid high-traffic areas"}
	default:
		return ActivityAdvice{Verdict: VerdictNo, Notes: "Indoor cycling recommended"}
	}
}

func walkingAdvice(aqi, threshold float64) ActivityAdvice {
	if aqi < threshold*1.3 {
		return ActivityAdvice{Verdict: VerdictYes, Duration: "normal", Notes: "Walking is fine, choose parks if available"}
	}
	return ActivityAdvice{Verdict: VerdictNo, Notes: "Limit time outdoors"}
}

func sportsAdvice(aqi, threshold float64) ActivityAdvice {
	switch {
	case aqi < threshold*0.6:
		return ActivityAdvice{Verdict: VerdictYes, Notes: "Good conditions for outdoor sports"}
	case aqi < threshold:
		return ActivityAdvice{Verdict: VerdictLimited, Notes: "Light activities only, frequent breaks"}
	default:
		return ActivityAdvice{Verdict: VerdictNo, Notes: "Move activities indoors"}
	}
}

// Assessment is a full health-risk assessment for one profile.
type Assessment struct {
	PersonalThreshold float64                   `json:"personal_threshold"`
	Breakdown         ThresholdBreakdown        `json:"breakdown"`
	Thresholds        map[ActivityLevel]float64 `json:"thresholds"`
	RiskLevel         RiskLevel                 `json:"current_risk_level"`
	Budget            ExposureBudget            `json:"exposure_budget"`
	Recommendations   Recommendations           `json:"recommendations"`
}

// Assess combines thresholds for every activity level, the risk level of the
// current AQI at the requested activity, the exposure budget and advice.
func (m *Model) Assess(ctx context.Context, profile UserProfile, activity ActivityLevel, currentAQI float64, forecast []float64) (*Assessment, error) {
	profile = profile.WithDefaults()

	breakdown := m.ThresholdBreakdown(profile, activity)
	thresholds := make(map[ActivityLevel]float64, len(ActivityLevels))
	for _, level := range ActivityLevels {
		thresholds[level] = m.PersonalThreshold(profile, level)
	}

	budget, err := m.ExposureBudget(ctx, profile, 7)
	if err != nil {
		return nil, fmt.Errorf("exposure budget: %w", err)
	}

	return &Assessment{
		PersonalThreshold: breakdown.Threshold,
		Breakdown:         breakdown,
		Thresholds:        thresholds,
		RiskLevel:         AssessRiskLevel(currentAQI, breakdown.Threshold),
		Budget:            budget,
		Recommendations:   m.ActivityRecommendations(profile, currentAQI, forecast),
	}, nil
}
