// Package routing selects running routes among candidate geometries by
// balancing pollution exposure against distance, elevation, green space
// and safety. Candidates are compared by Pareto dominance first and only
// the non-dominated front is ranked by personal preference weights.
package routing

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/pkg/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrNoCandidates indicates that no valid candidate route was supplied.
	ErrNoCandidates = errors.New("routing: no candidate routes")
	// ErrInvalidCandidate indicates a candidate with unusable geometry or metrics.
	ErrInvalidCandidate = errors.New("routing: invalid candidate route")
	// ErrProviderUnavailable indicates the candidate provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing: candidate provider unavailable")
	// ErrNoRouteFound indicates the provider could not build a route around the start point.
	ErrNoRouteFound = errors.New("routing: no route found")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("routing: rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("routing: invalid coordinates")
)

// DefaultSafetyScore is used for candidates whose safety is unknown.
const DefaultSafetyScore = 0.5

// Field answers point queries against a pollution surface.
// *airquality.Snapshot and *airquality.Field satisfy it.
type Field interface {
	Query(p airquality.Pollutant, at geo.Point) float64
}

// Candidate is a route geometry produced by a candidate source or imported
// from a GPX track. It is read-only to the optimizer.
type Candidate struct {
	ID             string      `json:"id,omitempty"`
	Source         string      `json:"source,omitempty"`
	Waypoints      []geo.Point `json:"waypoints"`
	Elevations     []float64   `json:"elevations,omitempty"`
	Polyline       string      `json:"polyline,omitempty"`
	DistanceM      float64     `json:"distance_m"`
	DurationS      float64     `json:"duration_s"`
	ElevationGainM float64     `json:"elevation_gain_m"`
	GreenCoverage  float64     `json:"green_coverage"`
	SafetyScore    *float64    `json:"safety_score,omitempty"`
}

// Safety returns the safety score, or DefaultSafetyScore when unknown.
func (c Candidate) Safety() float64 {
	if c.SafetyScore == nil || math.IsNaN(*c.SafetyScore) {
		return DefaultSafetyScore
	}
	return *c.SafetyScore
}

// Validate reports why a candidate cannot be optimized, if at all.
func (c Candidate) Validate() error {
	switch {
	case len(c.Waypoints) < 2:
		return &Error{Code: "TOO_FEW_POINTS", Message: "candidate needs at least 2 waypoints", Err: ErrInvalidCandidate}
	case !finite(c.DistanceM) || c.DistanceM < 0:
		return &Error{Code: "BAD_DISTANCE", Message: "candidate distance must be a finite non-negative number", Err: ErrInvalidCandidate}
	case !finite(c.DurationS) || c.DurationS <= 0:
		// Exposure is a rate over the duration; zero would score as perfectly clean air.
		return &Error{Code: "BAD_DURATION", Message: "candidate duration must be a positive number", Err: ErrInvalidCandidate}
	case !finite(c.ElevationGainM) || c.ElevationGainM < 0:
		return &Error{Code: "BAD_ELEVATION", Message: "candidate elevation gain must be a finite non-negative number", Err: ErrInvalidCandidate}
	case !unit(c.GreenCoverage):
		return &Error{Code: "BAD_GREEN_COVERAGE", Message: "candidate green coverage must be between 0 and 1", Err: ErrInvalidCandidate}
	case c.SafetyScore != nil && !unit(*c.SafetyScore):
		return &Error{Code: "BAD_SAFETY_SCORE", Message: "candidate safety score must be between 0 and 1", Err: ErrInvalidCandidate}
	}
	for _, p := range c.Waypoints {
		if !p.Valid() {
			return &Error{Code: "BAD_WAYPOINT", Message: "candidate waypoint out of range", Err: ErrInvalidCoordinates}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

// Objectives is the five-objective vector of a candidate. Every objective
// is minimised; green space and safety are negated so that more is better.
type Objectives struct {
	Exposure         float64 `json:"exposure"`
	DistanceError    float64 `json:"distance_error"`
	ElevationPenalty float64 `json:"elevation_penalty"`
	GreenSpace       float64 `json:"green_space"`
	Safety           float64 `json:"safety"`
}

// Vector returns the objectives in a fixed order.
func (o Objectives) Vector() [5]float64 {
	return [5]float64{o.Exposure, o.DistanceError, o.ElevationPenalty, o.GreenSpace, o.Safety}
}

// Pace is the recommended running pace for a segment.
type Pace string

const (
	PaceWalk     Pace = "walk"
	PaceEasy     Pace = "easy"
	PaceModerate Pace = "moderate"
)

// Segment is one leg of a recommended route.
type Segment struct {
	Start           geo.Point `json:"start"`
	End             geo.Point `json:"end"`
	DistanceM       float64   `json:"distance_m"`
	AQI             float64   `json:"aqi"`
	PM25            float64   `json:"pm25"`
	RecommendedPace Pace      `json:"recommended_pace"`
	SurfaceType     string    `json:"surface_type"`
	ElevationChange float64   `json:"elevation_change"`
}

// Alternative summarises another member of the Pareto front.
type Alternative struct {
	CandidateID string     `json:"candidate_id,omitempty"`
	Score       float64    `json:"score"`
	DistanceM   float64    `json:"distance_m"`
	Objectives  Objectives `json:"objectives"`
}

// Recommendation is the result of one optimization call.
type Recommendation struct {
	ID            string        `json:"id"`
	CandidateID   string        `json:"candidate_id,omitempty"`
	Geometry      []geo.Point   `json:"geometry"`
	Polyline      string        `json:"polyline"`
	Segments      []Segment     `json:"segments"`
	DistanceM     float64       `json:"distance_m"`
	DurationS     float64       `json:"duration_s"`
	AvgAQI        float64       `json:"avg_aqi"`
	MaxAQI        float64       `json:"max_aqi"`
	ExposureScore float64       `json:"exposure_score"`
	GreenCoverage float64       `json:"green_coverage"`
	SafetyScore   float64       `json:"safety_score"`
	Objectives    Objectives    `json:"objectives"`
	Score         float64       `json:"score"`
	Evaluated     int           `json:"candidates_evaluated"`
	Rejected      int           `json:"candidates_rejected"`
	Alternatives  []Alternative `json:"alternatives,omitempty"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// CandidateRequest asks a source for round-trip candidates around a start point.
type CandidateRequest struct {
	Start     geo.Point
	DistanceM float64
	Count     int
	Profile   Profile
}

// Profile is a routing profile of a candidate source.
type Profile string

const (
	ProfileRun  Profile = "foot-walking"
	ProfileHike Profile = "foot-hiking"
)

// CandidateSource produces candidate route geometries.
type CandidateSource interface {
	RoundTrips(ctx context.Context, req CandidateRequest) ([]Candidate, error)
	Name() string
}

// Error provides detailed error information for routing failures.
type Error struct {
	Provider string // Provider that generated the error, empty for local validation
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
