package routing

import (
	"fmt"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// DefaultRunningSpeedMps is used to estimate the duration of tracks without
// timestamps (6:00 min/km).
const DefaultRunningSpeedMps = 1000.0 / 360.0

// GPXOptions configures GPX import.
type GPXOptions struct {
	// SpeedMps estimates duration when the track has no usable timestamps.
	SpeedMps float64
	// GreenCoverage and SafetyScore are attached as-is; GPX carries neither.
	GreenCoverage float64
	SafetyScore   *float64
}

// CandidateFromGPX converts the first track (or route, when there are no
// tracks) of a GPX document into a candidate.
func CandidateFromGPX(data []byte, opts GPXOptions) (Candidate, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return Candidate{}, &Error{Code: "BAD_GPX", Message: "failed to parse gpx document", Err: fmt.Errorf("%w: %w", ErrInvalidCandidate, err)}
	}

	var points []gpx.GPXPoint
	name := ""
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			points = append(points, segment.Points...)
		}
		if len(points) > 0 {
			name = track.Name
			break
		}
	}
	if len(points) == 0 {
		for _, route := range doc.Routes {
			if len(route.Points) > 0 {
				points = route.Points
				name = route.Name
				break
			}
		}
	}
	if len(points) < 2 {
		return Candidate{}, &Error{Code: "TOO_FEW_POINTS", Message: "gpx document has fewer than 2 points", Err: ErrInvalidCandidate}
	}

	waypoints := make([]geo.Point, len(points))
	elevations := make([]float64, len(points))
	hasElevation := true
	for i := range points {
		waypoints[i] = geo.Point{Lat: points[i].Latitude, Lon: points[i].Longitude}
		if points[i].Elevation.NotNull() {
			elevations[i] = points[i].Elevation.Value()
		} else {
			hasElevation = false
		}
	}
	if !hasElevation {
		elevations = nil
	}

	distance := geo.PathLength(waypoints)

	duration := 0.0
	first, last := points[0].Timestamp, points[len(points)-1].Timestamp
	if !first.IsZero() && last.After(first) {
		duration = last.Sub(first).Seconds()
	} else {
		speed := opts.SpeedMps
		if speed <= 0 {
			speed = DefaultRunningSpeedMps
		}
		duration = distance / speed
	}

	c := Candidate{
		ID:             name,
		Source:         "gpx",
		Waypoints:      waypoints,
		Elevations:     elevations,
		Polyline:       geo.EncodePolyline(waypoints),
		DistanceM:      distance,
		DurationS:      duration,
		ElevationGainM: geo.ElevationGain(elevations),
		GreenCoverage:  opts.GreenCoverage,
		SafetyScore:    opts.SafetyScore,
	}
	if err := c.Validate(); err != nil {
		return Candidate{}, err
	}
	return c, nil
}
