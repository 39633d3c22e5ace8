// Package models provides request and response models for the Run Coach API.
// Engine results are returned as-is; this package adds the request shapes,
// their validation and the envelopes around engine types.
package models

import (
	"math"
	"strings"
	"time"

	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/pkg/geo"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Geo converts the point to the engine type.
func (p Point) Geo() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// validatePoint reports a missing or out-of-range point under field.
func validatePoint(field string, p *Point) []FieldError {
	if p == nil {
		return []FieldError{{Field: field, Message: "required", Code: "REQUIRED"}}
	}
	var errs []FieldError
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		errs = append(errs, FieldError{Field: field + ".lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"})
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		errs = append(errs, FieldError{Field: field + ".lon", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"})
	}
	return errs
}

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Warning represents a non-fatal issue in the response.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProfileInput is the health profile sent with engine requests. Omitted
// fields take the engine defaults.
type ProfileInput struct {
	UserID           string   `json:"user_id,omitempty"`
	HealthConditions []string `json:"health_conditions,omitempty"`
	AgeGroup         string   `json:"age_group,omitempty"`
	FitnessLevel     string   `json:"fitness_level,omitempty"`
	RestingHR        *float64 `json:"resting_hr,omitempty"`
	AvgHRV           *float64 `json:"avg_hrv,omitempty"`
	VO2Max           *float64 `json:"vo2max,omitempty"`
}

// Profile converts the input to an engine profile. userID, when set, wins
// over the body's user_id so authenticated callers cannot act for others.
func (in *ProfileInput) Profile(userID string) health.UserProfile {
	if in == nil {
		return health.NewUserProfile(userID)
	}
	if userID == "" {
		userID = in.UserID
	}
	p := health.UserProfile{
		UserID:       userID,
		AgeGroup:     in.AgeGroup,
		FitnessLevel: in.FitnessLevel,
		RestingHR:    in.RestingHR,
		AvgHRV:       in.AvgHRV,
		VO2Max:       in.VO2Max,
	}
	for _, c := range in.HealthConditions {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			p.Conditions = append(p.Conditions, health.Condition(c))
		}
	}
	return p.WithDefaults()
}

// PreferencesInput overrides individual running preferences.
type PreferencesInput struct {
	PreferredDistanceM *float64 `json:"preferred_distance_m,omitempty"`
	MaxElevationGainM  *float64 `json:"max_elevation_gain_m,omitempty"`
	AvoidTraffic       *bool    `json:"avoid_traffic,omitempty"`
	PrioritizeParks    *bool    `json:"prioritize_parks,omitempty"`
	MaxDurationMin     *int     `json:"max_duration_min,omitempty"`
	PreferredTime      *string  `json:"preferred_time,omitempty"`
}

// Preferences merges the overrides into the default preferences.
func (in *PreferencesInput) Preferences() health.RunningPreferences {
	prefs := health.DefaultRunningPreferences()
	if in == nil {
		return prefs
	}
	if in.PreferredDistanceM != nil {
		prefs.PreferredDistanceM = *in.PreferredDistanceM
	}
	if in.MaxElevationGainM != nil {
		prefs.MaxElevationGainM = *in.MaxElevationGainM
	}
	if in.AvoidTraffic != nil {
		prefs.AvoidTraffic = *in.AvoidTraffic
	}
	if in.PrioritizeParks != nil {
		prefs.PrioritizeParks = *in.PrioritizeParks
	}
	if in.MaxDurationMin != nil {
		prefs.MaxDurationMin = *in.MaxDurationMin
	}
	if in.PreferredTime != nil {
		prefs.PreferredTime = *in.PreferredTime
	}
	return prefs
}

func (in *PreferencesInput) validate() []FieldError {
	if in == nil {
		return nil
	}
	var errs []FieldError
	if d := in.PreferredDistanceM; d != nil && (math.IsNaN(*d) || *d < 500 || *d > 50000) {
		errs = append(errs, FieldError{Field: "preferences.preferred_distance_m", Message: "must be between 500 and 50000", Code: "OUT_OF_RANGE"})
	}
	if e := in.MaxElevationGainM; e != nil && (math.IsNaN(*e) || *e < 0) {
		errs = append(errs, FieldError{Field: "preferences.max_elevation_gain_m", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	if in.PreferredTime != nil && !validPreferredTime(*in.PreferredTime) {
		errs = append(errs, FieldError{Field: "preferences.preferred_time", Message: "must be one of morning, afternoon, evening, any", Code: "INVALID_ENUM"})
	}
	return errs
}

func validPreferredTime(s string) bool {
	switch s {
	case "", "morning", "afternoon", "evening", "any":
		return true
	}
	return false
}

// validateTimeZone reports an unknown IANA zone name.
func validateTimeZone(field, name string) []FieldError {
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return []FieldError{{Field: field, Message: "unknown IANA time zone", Code: "INVALID_TIME_ZONE"}}
	}
	return nil
}

// Location resolves an IANA zone name. Empty or unknown names return nil,
// leaving hours in the forecast's own zone.
func Location(name string) *time.Location {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil
	}
	return loc
}
