// Package geo provides small geographic helpers shared by the pollution field and
// the route optimizer: points, great-circle distances, degree/meter conversion and
// Google's encoded polyline format.
package geo

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used for haversine distances.
	EarthRadiusMeters = 6371000

	// MetersPerDegreeLat is the length of one degree of latitude.
	MetersPerDegreeLat = 111320.0
)

// Point is a WGS84 location.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is a finite, in-range coordinate.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// MetersPerDegreeLon returns the length of one degree of longitude at the given latitude.
func MetersPerDegreeLon(lat float64) float64 {
	return MetersPerDegreeLat * math.Cos(lat*math.Pi/180)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Lerp returns the point a fraction t of the way from a to b in degree space.
func Lerp(a, b Point, t float64) Point {
	return Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
}

// Midpoint returns the degree-space midpoint of a and b.
func Midpoint(a, b Point) Point {
	return Lerp(a, b, 0.5)
}

// PathLength returns the summed haversine length of a path in meters.
func PathLength(path []Point) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

// Densify inserts factor-1 evenly spaced points between every pair of consecutive
// points. The physical path is unchanged; only its sampling density grows.
func Densify(path []Point, factor int) []Point {
	if factor <= 1 || len(path) < 2 {
		return path
	}

	out := make([]Point, 0, (len(path)-1)*factor+1)
	for i := 1; i < len(path); i++ {
		for k := 0; k < factor; k++ {
			out = append(out, Lerp(path[i-1], path[i], float64(k)/float64(factor)))
		}
	}
	return append(out, path[len(path)-1])
}

// Sample returns points spaced approximately intervalMeters apart along the path,
// always keeping the first and last point.
func Sample(path []Point, intervalMeters float64) []Point {
	if len(path) == 0 {
		return nil
	}
	if intervalMeters <= 0 {
		return path
	}

	sampled := []Point{path[0]}
	accumulated := 0.0

	for i := 1; i < len(path); i++ {
		segment := Distance(path[i-1], path[i])
		start := path[i-1]

		for accumulated+segment >= intervalMeters && segment > 0 {
			remaining := intervalMeters - accumulated
			next := Lerp(start, path[i], remaining/segment)
			sampled = append(sampled, next)

			segment -= remaining
			start = next
			accumulated = 0
		}
		accumulated += segment
	}

	if last := path[len(path)-1]; sampled[len(sampled)-1] != last {
		sampled = append(sampled, last)
	}
	return sampled
}
