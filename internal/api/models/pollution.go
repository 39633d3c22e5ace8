package models

import (
	"time"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/health"
)

// HeatmapResponse is the response of GET /v1/pollution/heatmap.
type HeatmapResponse struct {
	Region string `json:"region"`
	*airquality.Heatmap
}

// CleanZonesResponse is the response of GET /v1/pollution/clean-zones.
type CleanZonesResponse struct {
	Region    string                 `json:"region"`
	Threshold float64                `json:"threshold"`
	MinAreaM2 float64                `json:"min_area_m2"`
	Zones     []airquality.CleanZone `json:"zones"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// PointResponse is the response of GET /v1/pollution/point.
type PointResponse struct {
	Region    string              `json:"region"`
	Location  Point               `json:"location"`
	AQI       float64             `json:"aqi"`
	RiskLevel health.RiskLevel    `json:"risk_level"`
	Threshold float64             `json:"threshold"`
	Samples   []airquality.Sample `json:"samples"`
	UpdatedAt time.Time           `json:"updated_at"`
}
