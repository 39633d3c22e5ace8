package timing

import (
	"math"

	"github.com/breatheroute/runcoach/internal/weather"
)

// ScoreWeights blend the factors of a window score.
type ScoreWeights struct {
	AQI       float64
	Weather   float64
	TimeOfDay float64
	Circadian float64
}

// ComfortConfig describes ideal running weather.
type ComfortConfig struct {
	MinTempC, MaxTempC       float64
	MinHumidity, MaxHumidity float64
	MaxWindKmh               float64
	HighWindScore            float64
	PrecipThreshold          float64
	MaxUVIndex               float64
	HighUVFactor             float64
}

// DefaultComfortConfig returns the default comfort ranges.
func DefaultComfortConfig() ComfortConfig {
	return ComfortConfig{
		MinTempC:        10,
		MaxTempC:        20,
		MinHumidity:     40,
		MaxHumidity:     60,
		MaxWindKmh:      15,
		HighWindScore:   0.3,
		PrecipThreshold: 0.2,
		MaxUVIndex:      5,
		HighUVFactor:    0.7,
	}
}

// Comfort scores one forecast hour in [0,1] as the product of temperature,
// humidity and wind factors, reduced further by likely rain and high UV.
func (c ComfortConfig) Comfort(h weather.HourlyForecast) float64 {
	score := 1.0

	switch {
	case h.Temperature < c.MinTempC:
		score *= math.Max(0, 1-(c.MinTempC-h.Temperature)/10)
	case h.Temperature > c.MaxTempC:
		score *= math.Max(0, 1-(h.Temperature-c.MaxTempC)/10)
	}

	if h.Humidity < c.MinHumidity || h.Humidity > c.MaxHumidity {
		score *= math.Max(0, 1-math.Abs(h.Humidity-50)/50)
	}

	if h.WindSpeedKmh <= c.MaxWindKmh {
		score *= 1 - h.WindSpeedKmh/30
	} else {
		score *= c.HighWindScore
	}

	if h.PrecipProb > c.PrecipThreshold {
		score *= 1 - h.PrecipProb
	}
	if h.UVIndex > c.MaxUVIndex {
		score *= c.HighUVFactor
	}
	return score
}

// TimePreferenceScore scores a start hour against the preferred time of
// day. Unknown preferences count as "any".
func TimePreferenceScore(hour int, preferred string) float64 {
	switch preferred {
	case PreferMorning:
		switch {
		case hour >= 5 && hour <= 9:
			return 1.0
		case hour > 9 && hour <= 11:
			return 0.7
		}
	case PreferEvening:
		switch {
		case hour >= 17 && hour <= 20:
			return 1.0
		case hour >= 15 && hour < 17:
			return 0.7
		}
	case PreferAfternoon:
		switch {
		case hour >= 12 && hour <= 16:
			return 1.0
		case hour >= 10 && hour < 12, hour > 16 && hour <= 18:
			return 0.7
		}
	default:
		return 0.8
	}
	return 0.3
}

// CircadianScore scores a start hour by typical exercise performance.
func CircadianScore(hour int) float64 {
	switch {
	case hour >= 6 && hour <= 8:
		return 0.9
	case hour >= 16 && hour <= 19:
		return 1.0
	case hour >= 9 && hour <= 11:
		return 0.8
	case hour >= 14 && hour < 16:
		return 0.7
	case hour == 5, hour == 20:
		return 0.5
	default:
		return 0.2
	}
}
