package routing

import (
	"math"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// Sources of fallback candidates.
const (
	SourceSynthesized = "synthesized"
	SourceUnranked    = "unranked"
)

// DefaultLoopDistanceM sizes a synthesized loop when no distance is preferred.
const DefaultLoopDistanceM = 5000.0

const loopPoints = 8

// LoopCandidate synthesizes a closed octagonal loop centered on start whose
// perimeter approximates distanceM.
func LoopCandidate(start geo.Point, distanceM float64) Candidate {
	if !(distanceM > 0) {
		distanceM = DefaultLoopDistanceM
	}
	radius := distanceM / (2 * math.Pi)

	waypoints := make([]geo.Point, 0, loopPoints+1)
	for i := 0; i < loopPoints; i++ {
		angle := float64(i) / loopPoints * 2 * math.Pi
		waypoints = append(waypoints, geo.Point{
			Lat: start.Lat + radius*math.Cos(angle)/geo.MetersPerDegreeLat,
			Lon: start.Lon + radius*math.Sin(angle)/geo.MetersPerDegreeLon(start.Lat),
		})
	}
	waypoints = append(waypoints, waypoints[0])

	distance := geo.PathLength(waypoints)
	return Candidate{
		ID:        "loop",
		Source:    SourceSynthesized,
		Waypoints: waypoints,
		Polyline:  geo.EncodePolyline(waypoints),
		DistanceM: distance,
		DurationS: distance / DefaultRunningSpeedMps,
	}
}

// FallbackCandidate picks the route served when no candidate can be ranked:
// the first candidate with usable geometry, its metrics rebuilt from the
// waypoints, or else a loop around start.
func FallbackCandidate(candidates []Candidate, start geo.Point, distanceM float64) Candidate {
	for _, c := range candidates {
		if !usableGeometry(c.Waypoints) {
			continue
		}
		distance := geo.PathLength(c.Waypoints)
		if distance <= 0 {
			continue
		}

		out := Candidate{
			ID:        c.ID,
			Source:    SourceUnranked,
			Waypoints: c.Waypoints,
			Polyline:  geo.EncodePolyline(c.Waypoints),
			DistanceM: distance,
			DurationS: distance / DefaultRunningSpeedMps,
		}
		if len(c.Elevations) == len(c.Waypoints) {
			out.Elevations = c.Elevations
			out.ElevationGainM = geo.ElevationGain(c.Elevations)
		}
		if unit(c.GreenCoverage) {
			out.GreenCoverage = c.GreenCoverage
		}
		if c.SafetyScore != nil && unit(*c.SafetyScore) {
			out.SafetyScore = c.SafetyScore
		}
		return out
	}
	return LoopCandidate(start, distanceM)
}

func usableGeometry(waypoints []geo.Point) bool {
	if len(waypoints) < 2 {
		return false
	}
	for _, p := range waypoints {
		if !p.Valid() {
			return false
		}
	}
	return true
}
