package airquality

import (
	"math"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// grid is a regular lat/lon lattice. Points are stored row-major: all
// longitudes of the first latitude, then the next latitude.
type grid struct {
	region     Region
	lats       []float64
	lons       []float64
	resolution float64
}

// newGrid lays a lattice over region whose spacing approximates resolution
// meters. Each axis has at least two points and the total never exceeds
// maxPoints (when maxPoints >= 4).
func newGrid(region Region, resolution float64, maxPoints int) grid {
	midLat := (region.MinLat + region.MaxLat) / 2

	nLat := int((region.MaxLat - region.MinLat) * geo.MetersPerDegreeLat / resolution)
	nLon := int((region.MaxLon - region.MinLon) * geo.MetersPerDegreeLon(midLat) / resolution)
	nLat, nLon = max(nLat, 2), max(nLon, 2)

	if maxPoints >= 4 && nLat*nLon > maxPoints {
		scale := math.Sqrt(float64(maxPoints) / float64(nLat*nLon))
		nLat = max(int(float64(nLat)*scale), 2)
		nLon = max(int(float64(nLon)*scale), 2)
	}

	return grid{
		region:     region,
		lats:       linspace(region.MinLat, region.MaxLat, nLat),
		lons:       linspace(region.MinLon, region.MaxLon, nLon),
		resolution: resolution,
	}
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

func (g grid) size() int {
	return len(g.lats) * len(g.lons)
}

func (g grid) index(i, j int) int {
	return i*len(g.lons) + j
}

func (g grid) point(k int) geo.Point {
	return geo.Point{Lat: g.lats[k/len(g.lons)], Lon: g.lons[k%len(g.lons)]}
}

// nearest returns the index of the grid point closest to p in lat/lon space.
// On a regular lattice the Euclidean nearest point is the per-axis nearest
// coordinate, so no scan is needed.
func (g grid) nearest(p geo.Point) int {
	return g.index(axisIndex(g.lats, p.Lat), axisIndex(g.lons, p.Lon))
}

func axisIndex(axis []float64, v float64) int {
	n := len(axis)
	step := axis[1] - axis[0]
	if step <= 0 {
		return 0
	}
	i := int(math.Round((v - axis[0]) / step))
	return min(max(i, 0), n-1)
}

// cellAreaM2 is the nominal area represented by one grid point.
func (g grid) cellAreaM2() float64 {
	return g.resolution * g.resolution
}
