package routing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/runcoach/internal/routing"
	"github.com/breatheroute/runcoach/pkg/geo"
)

func TestLoopCandidate(t *testing.T) {
	start := geo.Point{Lat: 52.37, Lon: 4.89}

	tests := []struct {
		name      string
		distanceM float64
		want      float64
	}{
		{name: "requested distance", distanceM: 3000, want: 3000},
		{name: "long run", distanceM: 12000, want: 12000},
		{name: "zero falls back to default", distanceM: 0, want: routing.DefaultLoopDistanceM},
		{name: "negative falls back to default", distanceM: -10, want: routing.DefaultLoopDistanceM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := routing.LoopCandidate(start, tt.distanceM)

			require.NoError(t, c.Validate())
			assert.Equal(t, routing.SourceSynthesized, c.Source)
			require.Len(t, c.Waypoints, 9)
			assert.Equal(t, c.Waypoints[0], c.Waypoints[len(c.Waypoints)-1])
			assert.InDelta(t, tt.want, c.DistanceM, tt.want*0.05)
			assert.InDelta(t, c.DistanceM/routing.DefaultRunningSpeedMps, c.DurationS, 1e-9)

			assert.Len(t, geo.DecodePolyline(c.Polyline), len(c.Waypoints))

			var lat, lon float64
			for _, p := range c.Waypoints[:8] {
				lat += p.Lat
				lon += p.Lon
			}
			assert.InDelta(t, start.Lat, lat/8, 1e-9)
			assert.InDelta(t, start.Lon, lon/8, 1e-9)
		})
	}
}

func TestFallbackCandidate(t *testing.T) {
	start := geo.Point{Lat: 52.37, Lon: 4.89}
	track := []geo.Point{
		start,
		{Lat: 52.375, Lon: 4.89},
		{Lat: 52.375, Lon: 4.90},
		start,
	}
	safety := 0.8
	badSafety := 3.0

	tests := []struct {
		name       string
		candidates []routing.Candidate
		wantID     string
		wantSource string
		green      float64
		safety     *float64
	}{
		{
			name:       "no candidates",
			wantID:     "loop",
			wantSource: routing.SourceSynthesized,
		},
		{
			name: "only unusable geometry",
			candidates: []routing.Candidate{
				{ID: "dot", Waypoints: []geo.Point{start}},
				{ID: "off-planet", Waypoints: []geo.Point{start, {Lat: 95, Lon: 4.89}}},
				{ID: "stuck", Waypoints: []geo.Point{start, start}},
			},
			wantID:     "loop",
			wantSource: routing.SourceSynthesized,
		},
		{
			name: "first usable candidate wins",
			candidates: []routing.Candidate{
				{ID: "dot", Waypoints: []geo.Point{start}},
				{ID: "stalled", Waypoints: track, DurationS: 0, GreenCoverage: 0.4, SafetyScore: &safety},
				{ID: "later", Waypoints: track, DurationS: 900},
			},
			wantID:     "stalled",
			wantSource: routing.SourceUnranked,
			green:      0.4,
			safety:     &safety,
		},
		{
			name: "out of range attributes are dropped",
			candidates: []routing.Candidate{
				{ID: "noisy", Waypoints: track, DistanceM: -1, GreenCoverage: 7, SafetyScore: &badSafety},
			},
			wantID:     "noisy",
			wantSource: routing.SourceUnranked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := routing.FallbackCandidate(tt.candidates, start, 4000)

			require.NoError(t, c.Validate())
			assert.Equal(t, tt.wantID, c.ID)
			assert.Equal(t, tt.wantSource, c.Source)
			assert.Equal(t, tt.green, c.GreenCoverage)
			assert.Equal(t, tt.safety, c.SafetyScore)
			assert.InDelta(t, geo.PathLength(c.Waypoints), c.DistanceM, 1e-9)
			assert.Positive(t, c.DurationS)
		})
	}
}
