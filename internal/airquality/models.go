// Package airquality turns scattered pollutant sensor readings into a queryable
// spatial pollution field and keeps one field per monitored region fresh.
package airquality

import (
	"errors"
	"math"
	"time"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// Field and provider errors.
var (
	ErrNoReadings           = errors.New("airquality: no readings supplied")
	ErrNoData               = errors.New("airquality: no data for pollutant")
	ErrInsufficientReadings = errors.New("airquality: not enough readings to build a field")
	ErrUnknownRegion        = errors.New("airquality: unknown region")
	ErrRegionLimit          = errors.New("airquality: region limit reached")
	ErrProviderUnavailable  = errors.New("air quality provider unavailable")
)

// Pollutant identifies a reading channel.
type Pollutant string

const (
	PollutantAQI  Pollutant = "aqi"
	PollutantPM25 Pollutant = "pm25"
	PollutantPM10 Pollutant = "pm10"
	PollutantO3   Pollutant = "o3"
	PollutantNO2  Pollutant = "no2"
	PollutantCO   Pollutant = "co"
	PollutantSO2  Pollutant = "so2"
)

// FieldPollutants are the channels interpolated by a Field.
var FieldPollutants = []Pollutant{PollutantAQI, PollutantPM25, PollutantPM10, PollutantO3, PollutantNO2}

// ParsePollutant maps a channel name to a Pollutant.
func ParsePollutant(s string) (Pollutant, bool) {
	switch Pollutant(s) {
	case PollutantAQI, PollutantPM25, PollutantPM10, PollutantO3, PollutantNO2, PollutantCO, PollutantSO2:
		return Pollutant(s), true
	case "pm2_5", "pm2.5":
		return PollutantPM25, true
	}
	return "", false
}

// Reading is a single geolocated measurement as delivered by a provider.
// Concentrations are in µg/m³; AQI is on the US EPA scale.
type Reading struct {
	Location   geo.Point `json:"location"`
	Timestamp  time.Time `json:"timestamp"`
	AQI        float64   `json:"aqi"`
	PM25       float64   `json:"pm25"`
	PM10       float64   `json:"pm10"`
	O3         float64   `json:"o3"`
	NO2        float64   `json:"no2"`
	CO         float64   `json:"co"`
	SO2        float64   `json:"so2"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
}

// Value returns the reading's value for a channel. Unknown channels yield NaN.
func (r Reading) Value(p Pollutant) float64 {
	switch p {
	case PollutantAQI:
		return r.AQI
	case PollutantPM25:
		return r.PM25
	case PollutantPM10:
		return r.PM10
	case PollutantO3:
		return r.O3
	case PollutantNO2:
		return r.NO2
	case PollutantCO:
		return r.CO
	case PollutantSO2:
		return r.SO2
	default:
		return math.NaN()
	}
}

// Weight is the confidence used for interpolation and aggregation. An unset or
// non-finite confidence counts as 1.0; anything else is clamped to [0, 1].
func (r Reading) Weight() float64 {
	c := r.Confidence
	if c <= 0 || math.IsNaN(c) {
		return 1.0
	}
	return math.Min(c, 1.0)
}

// validValue reports whether a channel value can be fitted.
func validValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Region is a lat/lon bounding box.
type Region struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// RegionAround returns the box of radiusMeters around center.
func RegionAround(center geo.Point, radiusMeters float64) Region {
	dLat := radiusMeters / geo.MetersPerDegreeLat
	dLon := radiusMeters / geo.MetersPerDegreeLon(center.Lat)
	return Region{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLon: center.Lon - dLon,
		MaxLon: center.Lon + dLon,
	}
}

// Valid reports whether the region is a finite, non-inverted box.
func (r Region) Valid() bool {
	for _, v := range []float64{r.MinLat, r.MaxLat, r.MinLon, r.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.MinLat <= r.MaxLat && r.MinLon <= r.MaxLon
}

// Contains reports whether p lies inside the region, edges included.
func (r Region) Contains(p geo.Point) bool {
	return p.Lat >= r.MinLat && p.Lat <= r.MaxLat && p.Lon >= r.MinLon && p.Lon <= r.MaxLon
}

// Center returns the midpoint of the region.
func (r Region) Center() geo.Point {
	return geo.Point{Lat: (r.MinLat + r.MaxLat) / 2, Lon: (r.MinLon + r.MaxLon) / 2}
}

// boundsOf computes the extent of the readings padded by padding (a fraction of
// the range) on each side. Zero-extent axes get minPad degrees instead.
func boundsOf(readings []Reading, padding, minPadLat, minPadLon float64) Region {
	r := Region{
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
		MinLon: math.Inf(1), MaxLon: math.Inf(-1),
	}
	for _, rd := range readings {
		r.MinLat = math.Min(r.MinLat, rd.Location.Lat)
		r.MaxLat = math.Max(r.MaxLat, rd.Location.Lat)
		r.MinLon = math.Min(r.MinLon, rd.Location.Lon)
		r.MaxLon = math.Max(r.MaxLon, rd.Location.Lon)
	}

	padLat := math.Max((r.MaxLat-r.MinLat)*padding, 0)
	if r.MaxLat == r.MinLat {
		padLat = minPadLat
	}
	padLon := math.Max((r.MaxLon-r.MinLon)*padding, 0)
	if r.MaxLon == r.MinLon {
		padLon = minPadLon
	}

	r.MinLat -= padLat
	r.MaxLat += padLat
	r.MinLon -= padLon
	r.MaxLon += padLon
	return r
}

// HourlyAQI is one hour of an air quality forecast.
type HourlyAQI struct {
	Time time.Time `json:"time"`
	AQI  float64   `json:"aqi"`
	PM25 float64   `json:"pm25"`
}
