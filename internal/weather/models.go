// Package weather provides cached hourly weather forecasts used to score
// outdoor activity windows.
package weather

import (
	"errors"
	"time"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
)

// Condition represents the general weather condition.
type Condition string

const (
	ConditionClear        Condition = "CLEAR"
	ConditionClouds       Condition = "CLOUDS"
	ConditionRain         Condition = "RAIN"
	ConditionDrizzle      Condition = "DRIZZLE"
	ConditionThunderstorm Condition = "THUNDERSTORM"
	ConditionSnow         Condition = "SNOW"
	ConditionMist         Condition = "MIST"
	ConditionFog          Condition = "FOG"
	ConditionHaze         Condition = "HAZE"
	ConditionUnknown      Condition = "UNKNOWN"
)

// Forecast is an hourly forecast for one location.
type Forecast struct {
	Location  geo.Point
	Hourly    []HourlyForecast
	FetchedAt time.Time
}

// HourlyForecast is the forecast for the hour starting at Time.
type HourlyForecast struct {
	Time         time.Time
	Temperature  float64 // °C
	Humidity     float64 // %
	WindSpeedKmh float64
	PrecipProb   float64 // 0-1
	UVIndex      float64
	Condition    Condition
	Description  string
}

// At returns the forecast for the hour containing t.
func (f *Forecast) At(t time.Time) (HourlyForecast, bool) {
	if f == nil {
		return HourlyForecast{}, false
	}
	hour := t.Truncate(time.Hour)
	for _, h := range f.Hourly {
		if h.Time.Truncate(time.Hour).Equal(hour) {
			return h, true
		}
	}
	return HourlyForecast{}, false
}
