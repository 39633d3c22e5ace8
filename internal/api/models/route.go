package models

import (
	"strconv"

	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/routing"
	"github.com/breatheroute/runcoach/internal/timing"
)

// MaxCandidates caps client-supplied and generated candidates per request.
const MaxCandidates = 20

// RecommendRouteRequest is the request body of POST /v1/routes/recommend.
// Candidates are optional; without them round trips are generated around
// the location.
type RecommendRouteRequest struct {
	Location       *Point              `json:"location"`
	UserProfile    *ProfileInput       `json:"user_profile,omitempty"`
	Preferences    *PreferencesInput   `json:"preferences,omitempty"`
	Candidates     []routing.Candidate `json:"candidates,omitempty"`
	CandidateCount int                 `json:"candidate_count,omitempty"`
}

// Validate returns the field errors of the request.
func (r *RecommendRouteRequest) Validate() []FieldError {
	errs := validatePoint("location", r.Location)
	errs = append(errs, r.Preferences.validate()...)
	if len(r.Candidates) > MaxCandidates {
		errs = append(errs, FieldError{Field: "candidates", Message: "at most " + strconv.Itoa(MaxCandidates) + " candidates", Code: "TOO_MANY"})
	}
	if r.CandidateCount < 0 || r.CandidateCount > MaxCandidates {
		errs = append(errs, FieldError{Field: "candidate_count", Message: "must be between 1 and " + strconv.Itoa(MaxCandidates), Code: "OUT_OF_RANGE"})
	}
	return errs
}

// RecommendRouteResponse is the response of POST /v1/routes/recommend.
// TimeWindows are the best upcoming windows to run the route, and
// HealthRecommendation the activity advice for current conditions at the start.
type RecommendRouteResponse struct {
	Route                *routing.Recommendation `json:"route"`
	Region               string                  `json:"region"`
	PersonalThreshold    float64                 `json:"personal_threshold"`
	PaceThreshold        float64                 `json:"pace_threshold"`
	CandidateSource      string                  `json:"candidate_source"`
	TimeWindows          []timing.TimeWindow     `json:"time_windows,omitempty"`
	HealthRecommendation *health.Recommendations `json:"health_recommendation,omitempty"`
	Warnings             []Warning               `json:"warnings,omitempty"`
}

// CandidateResponse is the response of POST /v1/routes/candidates/gpx.
type CandidateResponse struct {
	Candidate routing.Candidate `json:"candidate"`
}
