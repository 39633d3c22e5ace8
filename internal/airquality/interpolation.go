package airquality

import (
	"math"

	"github.com/fogleman/delaunay"
	"gonum.org/v1/gonum/stat"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// sample is one valid (location, value) pair of a channel.
type sample struct {
	at     geo.Point
	value  float64
	weight float64
}

// channel is a fitted pollutant surface aligned 1:1 with its grid.
type channel struct {
	values      []float64
	uncertainty float64
	mean        float64
	samples     int
	degenerate  bool
}

// samplesFor extracts the valid samples of p, dropping NaN, infinite and
// negative values.
func samplesFor(readings []Reading, p Pollutant) []sample {
	out := make([]sample, 0, len(readings))
	for _, r := range readings {
		v := r.Value(p)
		if !validValue(v) || !r.Location.Valid() {
			continue
		}
		out = append(out, sample{at: r.Location, value: v, weight: r.Weight()})
	}
	return out
}

// fitChannel interpolates samples over g. Inside the convex hull of the sample
// locations the surface is linear per Delaunay triangle; outside it falls back
// to the confidence-weighted mean. Fewer than three distinct, non-collinear
// locations make the fit degenerate and every point takes the value of its
// nearest sample. Each sample finally pins the grid point it snaps to.
func fitChannel(g grid, samples []sample) *channel {
	values := make([]float64, len(samples))
	weights := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.value
		weights[i] = s.weight
	}

	ch := &channel{
		values:      make([]float64, g.size()),
		mean:        stat.Mean(values, weights),
		uncertainty: popStdDev(values),
		samples:     len(samples),
	}

	sites := mergeColocated(samples)
	pts := make([]delaunay.Point, len(sites))
	siteValues := make([]float64, len(sites))
	for i, s := range sites {
		pts[i] = delaunay.Point{X: s.at.Lon, Y: s.at.Lat}
		siteValues[i] = s.value
	}

	tri, ok := triangulate(pts)
	ch.degenerate = !ok

	for k := range ch.values {
		at := g.point(k)
		if !ok {
			ch.values[k] = nearestSample(sites, at).value
			continue
		}
		if v, inside := tri.interpolate(delaunay.Point{X: at.Lon, Y: at.Lat}, siteValues); inside {
			ch.values[k] = v
		} else {
			ch.values[k] = ch.mean
		}
	}

	pin(g, ch.values, sites)
	return ch
}

// mergeColocated collapses samples at identical locations into their
// confidence-weighted mean so the triangulation sees distinct sites.
func mergeColocated(samples []sample) []sample {
	type acc struct {
		sum, weight float64
		order       int
	}
	byPoint := make(map[geo.Point]*acc, len(samples))
	order := make([]geo.Point, 0, len(samples))

	for _, s := range samples {
		a, ok := byPoint[s.at]
		if !ok {
			a = &acc{order: len(order)}
			byPoint[s.at] = a
			order = append(order, s.at)
		}
		a.sum += s.value * s.weight
		a.weight += s.weight
	}

	out := make([]sample, len(order))
	for i, p := range order {
		a := byPoint[p]
		out[i] = sample{at: p, value: a.sum / a.weight, weight: a.weight}
	}
	return out
}

// pin overwrites the grid point nearest to each site with the weighted mean of
// the sites snapping to it, so the surface is exact at sensor locations.
func pin(g grid, values []float64, sites []sample) {
	type acc struct{ sum, weight float64 }
	pinned := make(map[int]*acc, len(sites))

	for _, s := range sites {
		k := g.nearest(s.at)
		a, ok := pinned[k]
		if !ok {
			a = &acc{}
			pinned[k] = a
		}
		a.sum += s.value * s.weight
		a.weight += s.weight
	}
	for k, a := range pinned {
		values[k] = a.sum / a.weight
	}
}

func nearestSample(sites []sample, at geo.Point) sample {
	best, bestDist := sites[0], math.Inf(1)
	for _, s := range sites {
		dLat, dLon := s.at.Lat-at.Lat, s.at.Lon-at.Lon
		if d := dLat*dLat + dLon*dLon; d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

// popStdDev is the population standard deviation; zero for fewer than two values.
func popStdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	_, variance := stat.MeanVariance(values, nil)
	if variance <= 0 || math.IsNaN(variance) {
		return 0
	}
	return math.Sqrt(variance * float64(n-1) / float64(n))
}
