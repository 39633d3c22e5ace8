package airquality

import "math"

type breakpoint struct {
	cLow, cHigh float64
	iLow, iHigh float64
}

// US EPA PM2.5 (24h, µg/m³) breakpoints.
var pm25Breakpoints = []breakpoint{
	{0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 500.4, 301, 500},
}

// US EPA PM10 (24h, µg/m³) breakpoints.
var pm10Breakpoints = []breakpoint{
	{0, 54, 0, 50},
	{55, 154, 51, 100},
	{155, 254, 101, 150},
	{255, 354, 151, 200},
	{355, 424, 201, 300},
	{425, 604, 301, 500},
}

// MaxAQI caps every computed index.
const MaxAQI = 500.0

// AQIFromPM25 converts a PM2.5 concentration into an AQI sub-index.
func AQIFromPM25(pm25 float64) float64 {
	return subIndex(pm25, pm25Breakpoints)
}

// AQIFromPM10 converts a PM10 concentration into an AQI sub-index.
func AQIFromPM10(pm10 float64) float64 {
	return subIndex(pm10, pm10Breakpoints)
}

// AQIFromComponents returns the index for a set of concentrations, preferring
// PM2.5 and falling back to PM10. Without either it returns NaN so the value is
// dropped from the AQI channel.
func AQIFromComponents(pm25, pm10 float64) float64 {
	switch {
	case validValue(pm25) && pm25 > 0:
		return AQIFromPM25(pm25)
	case validValue(pm10) && pm10 > 0:
		return AQIFromPM10(pm10)
	case pm25 == 0:
		return 0
	default:
		return math.NaN()
	}
}

func subIndex(c float64, table []breakpoint) float64 {
	if !validValue(c) {
		return math.NaN()
	}
	for _, bp := range table {
		if c <= bp.cHigh {
			return math.Min((bp.iHigh-bp.iLow)/(bp.cHigh-bp.cLow)*(c-bp.cLow)+bp.iLow, MaxAQI)
		}
	}
	last := table[len(table)-1]
	return math.Min((last.iHigh-last.iLow)/(last.cHigh-last.cLow)*(c-last.cLow)+last.iLow, MaxAQI)
}
