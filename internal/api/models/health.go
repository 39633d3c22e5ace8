package models

import (
	"math"
	"time"

	"github.com/breatheroute/runcoach/internal/health"
)

// DefaultCurrentAQI is assumed when an assessment has neither an AQI nor a
// location to look one up.
const DefaultCurrentAQI = 50

// AQI sources of an assessment.
const (
	AQISourceRequest = "request"
	AQISourceField   = "field"
	AQISourceDefault = "default"
)

// AssessmentRequest is the request body of POST /v1/health/assessment.
type AssessmentRequest struct {
	UserProfile  *ProfileInput `json:"user_profile,omitempty"`
	ActivityType string        `json:"activity_type,omitempty"`
	CurrentAQI   *float64      `json:"current_aqi,omitempty"`
	Location     *Point        `json:"location,omitempty"`
	ForecastAQI  []float64     `json:"forecast_aqi,omitempty"`
}

// Validate returns the field errors of the request.
func (r *AssessmentRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Location != nil {
		errs = append(errs, validatePoint("location", r.Location)...)
	}
	if r.CurrentAQI != nil && (math.IsNaN(*r.CurrentAQI) || *r.CurrentAQI < 0) {
		errs = append(errs, FieldError{Field: "current_aqi", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	if _, ok := r.Activity(); !ok {
		errs = append(errs, FieldError{Field: "activity_type", Message: "must be one of rest, light, moderate, vigorous", Code: "INVALID_ENUM"})
	}
	return errs
}

// Activity returns the requested activity level, moderate when omitted.
func (r *AssessmentRequest) Activity() (health.ActivityLevel, bool) {
	if r.ActivityType == "" {
		return health.ActivityModerate, true
	}
	for _, level := range health.ActivityLevels {
		if string(level) == r.ActivityType {
			return level, true
		}
	}
	return "", false
}

// AssessmentResponse is the response of POST /v1/health/assessment.
type AssessmentResponse struct {
	*health.Assessment
	CurrentAQI float64 `json:"current_aqi"`
	AQISource  string  `json:"aqi_source"`
	Region     string  `json:"region,omitempty"`
}

// RecordExposureRequest is the request body of POST /v1/me/exposure.
type RecordExposureRequest struct {
	ExposureScore float64    `json:"exposure_score"`
	Date          *time.Time `json:"date,omitempty"`
	RouteID       string     `json:"route_id,omitempty"`
}

// Validate returns the field errors of the request.
func (r *RecordExposureRequest) Validate() []FieldError {
	s := r.ExposureScore
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return []FieldError{{Field: "exposure_score", Message: "must be a finite non-negative number", Code: "OUT_OF_RANGE"}}
	}
	return nil
}

// ExposureBudgetResponse is the response of GET /v1/me/exposure/budget and
// POST /v1/me/exposure.
type ExposureBudgetResponse struct {
	UserID     string                 `json:"user_id"`
	WindowDays int                    `json:"window_days"`
	Budget     health.ExposureBudget  `json:"budget"`
	History    []health.ExposureEntry `json:"history"`
}
