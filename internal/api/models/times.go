package models

import (
	"github.com/breatheroute/runcoach/internal/timing"
)

// OptimalTimesRequest is the request body of POST /v1/times/optimal.
type OptimalTimesRequest struct {
	Location        *Point        `json:"location"`
	UserProfile     *ProfileInput `json:"user_profile,omitempty"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
	LookaheadHours  int           `json:"lookahead_hours,omitempty"`
	MinWindows      int           `json:"min_windows,omitempty"`
	PreferredTime   string        `json:"preferred_time,omitempty"`
	TimeZone        string        `json:"time_zone,omitempty"`
}

// Validate returns the field errors of the request.
func (r *OptimalTimesRequest) Validate() []FieldError {
	errs := validatePoint("location", r.Location)
	if r.DurationMinutes < 0 || r.DurationMinutes > 240 {
		errs = append(errs, FieldError{Field: "duration_minutes", Message: "must be between 1 and 240", Code: "OUT_OF_RANGE"})
	}
	if r.LookaheadHours < 0 || r.LookaheadHours > 168 {
		errs = append(errs, FieldError{Field: "lookahead_hours", Message: "must be between 1 and 168", Code: "OUT_OF_RANGE"})
	}
	if r.MinWindows < 0 || r.MinWindows > 24 {
		errs = append(errs, FieldError{Field: "min_windows", Message: "must be between 1 and 24", Code: "OUT_OF_RANGE"})
	}
	if !validPreferredTime(r.PreferredTime) {
		errs = append(errs, FieldError{Field: "preferred_time", Message: "must be one of morning, afternoon, evening, any", Code: "INVALID_ENUM"})
	}
	return append(errs, validateTimeZone("time_zone", r.TimeZone)...)
}

// TimingRequest converts the body to an engine request; zero values take
// the engine defaults.
func (r *OptimalTimesRequest) TimingRequest() timing.Request {
	return timing.Request{
		DurationMin:   r.DurationMinutes,
		LookaheadH:    r.LookaheadHours,
		MinWindows:    r.MinWindows,
		PreferredTime: r.PreferredTime,
		Location:      Location(r.TimeZone),
	}
}

// WeeklyScheduleRequest is the request body of POST /v1/times/weekly.
type WeeklyScheduleRequest struct {
	Location    *Point        `json:"location"`
	UserProfile *ProfileInput `json:"user_profile,omitempty"`
	RunsPerWeek int           `json:"runs_per_week,omitempty"`
	TimeZone    string        `json:"time_zone,omitempty"`
}

// Validate returns the field errors of the request.
func (r *WeeklyScheduleRequest) Validate() []FieldError {
	errs := validatePoint("location", r.Location)
	if r.RunsPerWeek < 0 {
		errs = append(errs, FieldError{Field: "runs_per_week", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	return append(errs, validateTimeZone("time_zone", r.TimeZone)...)
}
