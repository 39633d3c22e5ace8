package airquality

import (
	"math"

	"github.com/fogleman/delaunay"
)

// triangulation is a Delaunay triangulation over a set of distinct sites.
// Coordinates are planar: X is longitude and Y is latitude in degrees,
// shifted so the first site sits at the origin.
type triangulation struct {
	origin delaunay.Point
	pts    []delaunay.Point
	tris   []int // three site indices per triangle
}

// collinearTolerance is the relative cross-product magnitude under which a set
// of points is treated as lying on a line.
const collinearTolerance = 1e-12

// triangulate builds a Delaunay triangulation whose triangles exactly cover
// the convex hull of pts. It returns false when fewer than three points are
// given or all of them are collinear.
func triangulate(pts []delaunay.Point) (*triangulation, bool) {
	if len(pts) < 3 || collinear(pts) {
		return nil, false
	}

	origin := pts[0]
	local := make([]delaunay.Point, len(pts))
	for i, p := range pts {
		local[i] = delaunay.Point{X: p.X - origin.X, Y: p.Y - origin.Y}
	}

	d, err := delaunay.Triangulate(local)
	if err != nil || len(d.Triangles) == 0 {
		return nil, false
	}
	return &triangulation{origin: origin, pts: local, tris: d.Triangles}, true
}

// barycentricTolerance lets points on shared edges and vertices count as inside.
const barycentricTolerance = 1e-9

// interpolate evaluates the piecewise-linear surface defined by values at p.
// ok is false when p lies outside the convex hull.
func (t *triangulation) interpolate(p delaunay.Point, values []float64) (float64, bool) {
	p = delaunay.Point{X: p.X - t.origin.X, Y: p.Y - t.origin.Y}

	for i := 0; i+2 < len(t.tris); i += 3 {
		ia, ib, ic := t.tris[i], t.tris[i+1], t.tris[i+2]
		a, b, c := t.pts[ia], t.pts[ib], t.pts[ic]

		det := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
		if det == 0 {
			continue
		}
		l1 := ((b.Y-c.Y)*(p.X-c.X) + (c.X-b.X)*(p.Y-c.Y)) / det
		l2 := ((c.Y-a.Y)*(p.X-c.X) + (a.X-c.X)*(p.Y-c.Y)) / det
		l3 := 1 - l1 - l2

		if l1 >= -barycentricTolerance && l2 >= -barycentricTolerance && l3 >= -barycentricTolerance {
			return l1*values[ia] + l2*values[ib] + l3*values[ic], true
		}
	}
	return 0, false
}

func collinear(pts []delaunay.Point) bool {
	a := pts[0]
	var (
		b     delaunay.Point
		found bool
	)
	for _, p := range pts[1:] {
		if p != a {
			b, found = p, true
			break
		}
	}
	if !found {
		return true
	}

	scale := math.Hypot(b.X-a.X, b.Y-a.Y)
	for _, p := range pts {
		cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
		if math.Abs(cross) > collinearTolerance*scale*math.Max(scale, math.Hypot(p.X-a.X, p.Y-a.Y)) {
			return false
		}
	}
	return true
}
