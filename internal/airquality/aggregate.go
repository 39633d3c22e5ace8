package airquality

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// AggregateMethod selects how Aggregate combines readings.
type AggregateMethod string

const (
	AggregateWeightedAverage AggregateMethod = "weighted_average"
	AggregateMedian          AggregateMethod = "median"
	AggregateWorstCase       AggregateMethod = "worst_case"
)

// AggregateSource is the source tag of aggregated readings.
const AggregateSource = "aggregated"

// Aggregate combines several readings into one located at their centroid.
// Weighted averages use each reading's confidence.
func Aggregate(readings []Reading, method AggregateMethod) (Reading, error) {
	if len(readings) == 0 {
		return Reading{}, ErrNoReadings
	}
	if len(readings) == 1 {
		return readings[0], nil
	}

	var combine func(values, weights []float64) float64
	switch method {
	case AggregateWeightedAverage, "":
		combine = stat.Mean
	case AggregateMedian:
		combine = func(values, _ []float64) float64 { return median(values) }
	case AggregateWorstCase:
		combine = func(values, _ []float64) float64 { return floats.Max(values) }
	default:
		return Reading{}, fmt.Errorf("airquality: unknown aggregation method %q", method)
	}

	n := len(readings)
	weights := make([]float64, n)
	lats := make([]float64, n)
	lons := make([]float64, n)
	for i, r := range readings {
		weights[i] = r.Weight()
		lats[i] = r.Location.Lat
		lons[i] = r.Location.Lon
	}

	channel := func(p Pollutant) float64 {
		values := make([]float64, n)
		for i, r := range readings {
			values[i] = r.Value(p)
		}
		return combine(values, weights)
	}

	return Reading{
		Location:   geo.Point{Lat: stat.Mean(lats, nil), Lon: stat.Mean(lons, nil)},
		Timestamp:  time.Now(),
		AQI:        channel(PollutantAQI),
		PM25:       channel(PollutantPM25),
		PM10:       channel(PollutantPM10),
		O3:         channel(PollutantO3),
		NO2:        channel(PollutantNO2),
		CO:         channel(PollutantCO),
		SO2:        channel(PollutantSO2),
		Source:     AggregateSource,
		Confidence: stat.Mean(weights, nil),
	}, nil
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
