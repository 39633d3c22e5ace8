// Package luchtmeetnet reads Dutch national monitoring network stations and
// turns their latest measurements into air quality readings.
package luchtmeetnet

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/provider/resilience"
	"github.com/breatheroute/runcoach/pkg/geo"
)

const (
	// DefaultBaseURL is the base URL for the Luchtmeetnet API.
	DefaultBaseURL = "https://api.luchtmeetnet.nl/open_api"

	// ProviderName identifies this provider.
	ProviderName = "luchtmeetnet"

	// stationConfidence is the reading confidence of a reference-grade station.
	stationConfidence = 1.0
)

// ClientConfig holds configuration for the Luchtmeetnet client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient resilience.Doer

	// Registry receives the default client's health when HTTPClient is nil.
	Registry *resilience.Registry

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration
}

// Client is a Luchtmeetnet API client. It implements airquality.Provider.
type Client struct {
	baseURL    string
	httpClient resilience.Doer
}

var _ airquality.Provider = (*Client)(nil)

// NewClient creates a new Luchtmeetnet client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.InitialInterval = 200 * time.Millisecond
		rc.Registry = cfg.Registry
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Station is a monitoring station.
type Station struct {
	ID         string
	Name       string
	Location   geo.Point
	Pollutants []airquality.Pollutant
}

// Measurement is one station measurement in µg/m³.
type Measurement struct {
	StationID  string
	Pollutant  airquality.Pollutant
	Value      float64
	MeasuredAt time.Time
}

type stationsResponse struct {
	Pagination paginationInfo `json:"pagination"`
	Data       []stationData  `json:"data"`
}

type stationData struct {
	Number      string       `json:"number"`
	Location    string       `json:"location"`
	Coordinates locationData `json:"geometry.coordinates"`
	Components  []string     `json:"components"`
}

type locationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type paginationInfo struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

type measurementsResponse struct {
	Pagination paginationInfo    `json:"pagination"`
	Data       []measurementData `json:"data"`
}

type measurementData struct {
	StationNumber     string  `json:"station_number"`
	Formula           string  `json:"formula"`
	Value             float64 `json:"value"`
	TimestampMeasured string  `json:"timestamp_measured"`
}

// FetchStations retrieves all monitoring stations.
func (c *Client) FetchStations(ctx context.Context) ([]Station, error) {
	var stations []Station
	for page := 1; ; page++ {
		var resp stationsResponse
		if err := resilience.GetJSON(ctx, c.httpClient, fmt.Sprintf("%s/stations?page=%d", c.baseURL, page), &resp); err != nil {
			return nil, fmt.Errorf("fetch stations page %d: %w", page, err)
		}
		for i := range resp.Data {
			stations = append(stations, toStation(&resp.Data[i]))
		}
		if page >= resp.Pagination.LastPage {
			return stations, nil
		}
	}
}

// FetchLatestMeasurements retrieves the latest measurements for all stations.
// Unsupported formulas are skipped.
func (c *Client) FetchLatestMeasurements(ctx context.Context) ([]Measurement, error) {
	var measurements []Measurement
	for page := 1; ; page++ {
		var resp measurementsResponse
		if err := resilience.GetJSON(ctx, c.httpClient, fmt.Sprintf("%s/measurements?page=%d", c.baseURL, page), &resp); err != nil {
			return nil, fmt.Errorf("fetch measurements page %d: %w", page, err)
		}
		for i := range resp.Data {
			if m, ok := toMeasurement(&resp.Data[i]); ok {
				measurements = append(measurements, m)
			}
		}
		if page >= resp.Pagination.LastPage {
			return measurements, nil
		}
	}
}

// FetchReadings returns one reading per station inside region, built from the
// station's most recent measurement of each pollutant. AQI is derived from
// PM2.5 and PM10 when the station measures either.
func (c *Client) FetchReadings(ctx context.Context, region airquality.Region) ([]airquality.Reading, error) {
	stations, err := c.FetchStations(ctx)
	if err != nil {
		return nil, err
	}

	inRegion := make(map[string]Station)
	for _, s := range stations {
		if region.Contains(s.Location) {
			inRegion[s.ID] = s
		}
	}
	if len(inRegion) == 0 {
		return nil, nil
	}

	measurements, err := c.FetchLatestMeasurements(ctx)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]map[airquality.Pollutant]Measurement)
	for _, m := range measurements {
		if _, ok := inRegion[m.StationID]; !ok {
			continue
		}
		byPollutant, ok := latest[m.StationID]
		if !ok {
			byPollutant = make(map[airquality.Pollutant]Measurement)
			latest[m.StationID] = byPollutant
		}
		if prev, ok := byPollutant[m.Pollutant]; !ok || m.MeasuredAt.After(prev.MeasuredAt) {
			byPollutant[m.Pollutant] = m
		}
	}

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	readings := make([]airquality.Reading, 0, len(ids))
	for _, id := range ids {
		readings = append(readings, toReading(inRegion[id], latest[id]))
	}
	return readings, nil
}

func toReading(s Station, byPollutant map[airquality.Pollutant]Measurement) airquality.Reading {
	r := airquality.Reading{
		Location:   s.Location,
		Source:     ProviderName,
		Confidence: stationConfidence,
		PM25:       math.NaN(),
		PM10:       math.NaN(),
		O3:         math.NaN(),
		NO2:        math.NaN(),
		CO:         math.NaN(),
		SO2:        math.NaN(),
	}
	for p, m := range byPollutant {
		switch p {
		case airquality.PollutantPM25:
			r.PM25 = m.Value
		case airquality.PollutantPM10:
			r.PM10 = m.Value
		case airquality.PollutantO3:
			r.O3 = m.Value
		case airquality.PollutantNO2:
			r.NO2 = m.Value
		}
		if m.MeasuredAt.After(r.Timestamp) {
			r.Timestamp = m.MeasuredAt
		}
	}
	r.AQI = airquality.AQIFromComponents(r.PM25, r.PM10)
	return r
}

func toStation(s *stationData) Station {
	pollutants := make([]airquality.Pollutant, 0, len(s.Components))
	for _, comp := range s.Components {
		if p, ok := toPollutant(comp); ok {
			pollutants = append(pollutants, p)
		}
	}

	return Station{
		ID:         s.Number,
		Name:       s.Location,
		Location:   geo.Point{Lat: s.Coordinates.Latitude, Lon: s.Coordinates.Longitude},
		Pollutants: pollutants,
	}
}

func toMeasurement(m *measurementData) (Measurement, bool) {
	pollutant, ok := toPollutant(m.Formula)
	if !ok {
		return Measurement{}, false
	}
	measuredAt, _ := time.Parse(time.RFC3339, m.TimestampMeasured)

	return Measurement{
		StationID:  m.StationNumber,
		Pollutant:  pollutant,
		Value:      m.Value,
		MeasuredAt: measuredAt,
	}, true
}

// toPollutant maps a Luchtmeetnet formula to a pollutant channel.
func toPollutant(formula string) (airquality.Pollutant, bool) {
	switch strings.ToUpper(formula) {
	case "NO2":
		return airquality.PollutantNO2, true
	case "PM25":
		return airquality.PollutantPM25, true
	case "PM10":
		return airquality.PollutantPM10, true
	case "O3":
		return airquality.PollutantO3, true
	default:
		return "", false
	}
}
