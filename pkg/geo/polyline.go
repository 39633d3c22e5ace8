package geo

import "math"

// Precision factors of the encoded polyline format used by Google and OpenRouteService.
const (
	coordFactor     = 1e5
	elevationFactor = 1e2
)

// DecodePolyline decodes a 2D encoded polyline.
func DecodePolyline(encoded string) []Point {
	if encoded == "" {
		return nil
	}

	var (
		points   []Point
		lat, lon int
		index    int
	)
	for index < len(encoded) {
		var d int
		d, index = decodeValue(encoded, index)
		lat += d
		d, index = decodeValue(encoded, index)
		lon += d

		points = append(points, Point{Lat: float64(lat) / coordFactor, Lon: float64(lon) / coordFactor})
	}
	return points
}

// DecodePolylineElevation decodes an OpenRouteService 3D polyline where every vertex
// carries an elevation in meters as its third value.
func DecodePolylineElevation(encoded string) ([]Point, []float64) {
	if encoded == "" {
		return nil, nil
	}

	var (
		points        []Point
		elevations    []float64
		lat, lon, ele int
		index         int
	)
	for index < len(encoded) {
		var d int
		d, index = decodeValue(encoded, index)
		lat += d
		d, index = decodeValue(encoded, index)
		lon += d
		d, index = decodeValue(encoded, index)
		ele += d

		points = append(points, Point{Lat: float64(lat) / coordFactor, Lon: float64(lon) / coordFactor})
		elevations = append(elevations, float64(ele)/elevationFactor)
	}
	return points, elevations
}

func decodeValue(encoded string, index int) (int, int) {
	shift := 0
	result := 0

	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index
	}
	return result >> 1, index
}

// EncodePolyline encodes points with 5 decimal places of precision.
func EncodePolyline(points []Point) string {
	if len(points) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(points)*4)
	var prevLat, prevLon int
	for _, p := range points {
		lat := int(math.Round(p.Lat * coordFactor))
		lon := int(math.Round(p.Lon * coordFactor))

		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return string(buf)
}

// EncodePolylineElevation encodes points and their elevations in the
// OpenRouteService 3D format. elevations must be as long as points.
func EncodePolylineElevation(points []Point, elevations []float64) string {
	if len(points) == 0 || len(elevations) != len(points) {
		return EncodePolyline(points)
	}

	buf := make([]byte, 0, len(points)*6)
	var prevLat, prevLon, prevEle int
	for i, p := range points {
		lat := int(math.Round(p.Lat * coordFactor))
		lon := int(math.Round(p.Lon * coordFactor))
		ele := int(math.Round(elevations[i] * elevationFactor))

		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lon-prevLon)
		buf = encodeValue(buf, ele-prevEle)
		prevLat, prevLon, prevEle = lat, lon, ele
	}
	return string(buf)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// ElevationGain sums the positive steps of an elevation profile.
func ElevationGain(elevations []float64) float64 {
	var gain float64
	for i := 1; i < len(elevations); i++ {
		if d := elevations[i] - elevations[i-1]; d > 0 {
			gain += d
		}
	}
	return gain
}
