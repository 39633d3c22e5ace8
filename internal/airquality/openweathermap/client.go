// Package openweathermap reads modelled air pollution from the OpenWeatherMap
// Air Pollution API, both as current readings and as an hourly forecast.
package openweathermap

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/provider/resilience"
	"github.com/breatheroute/runcoach/pkg/geo"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the Air Pollution API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/air_pollution"

	// modelConfidence is the confidence of modelled (not measured) values.
	modelConfidence = 0.7
)

// ClientConfig holds configuration for the air pollution client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL is the API base URL (optional).
	BaseURL string

	// SamplesPerAxis is the side of the sample lattice laid over a region (default: 3).
	SamplesPerAxis int

	// Concurrency bounds parallel point requests (default: 4).
	Concurrency int

	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient resilience.Doer

	// Registry receives the default client's health when HTTPClient is nil.
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap air pollution client. It implements
// airquality.Provider and serves hourly AQI forecasts.
type Client struct {
	apiKey         string
	baseURL        string
	samplesPerAxis int
	concurrency    int
	httpClient     resilience.Doer
	logger         zerolog.Logger
}

var _ airquality.Provider = (*Client)(nil)

// NewClient creates a new air pollution client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	samples := cfg.SamplesPerAxis
	if samples <= 0 {
		samples = 3
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName + "-air")
		rc.Registry = cfg.Registry
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        baseURL,
		samplesPerAxis: samples,
		concurrency:    concurrency,
		httpClient:     httpClient,
		logger:         cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchReadings samples current air pollution on a lattice over region. A
// region with zero extent is sampled once at its center.
func (c *Client) FetchReadings(ctx context.Context, region airquality.Region) ([]airquality.Reading, error) {
	points := c.lattice(region)
	readings := make([]airquality.Reading, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, p := range points {
		g.Go(func() error {
			var resp pollutionResponse
			if err := resilience.GetJSON(gctx, c.httpClient, c.url("", p), &resp); err != nil {
				return fmt.Errorf("fetch air pollution at %.4f,%.4f: %w", p.Lat, p.Lon, err)
			}
			if len(resp.List) == 0 {
				return fmt.Errorf("empty air pollution response at %.4f,%.4f", p.Lat, p.Lon)
			}
			readings[i] = toReading(p, resp.List[0])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug().Int("readings", len(readings)).Msg("fetched modelled air pollution")
	return readings, nil
}

// ForecastAQI returns the hourly AQI forecast at a location, sorted by time.
func (c *Client) ForecastAQI(ctx context.Context, at geo.Point) ([]airquality.HourlyAQI, error) {
	var resp pollutionResponse
	if err := resilience.GetJSON(ctx, c.httpClient, c.url("/forecast", at), &resp); err != nil {
		return nil, fmt.Errorf("fetch air pollution forecast: %w", err)
	}

	out := make([]airquality.HourlyAQI, 0, len(resp.List))
	for _, e := range resp.List {
		aqi := airquality.AQIFromComponents(e.Components.PM25, e.Components.PM10)
		if math.IsNaN(aqi) {
			continue
		}
		out = append(out, airquality.HourlyAQI{
			Time: time.Unix(e.Dt, 0).UTC(),
			AQI:  aqi,
			PM25: e.Components.PM25,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (c *Client) url(suffix string, p geo.Point) string {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", p.Lat))
	q.Set("lon", fmt.Sprintf("%.6f", p.Lon))
	q.Set("appid", c.apiKey)
	return c.baseURL + suffix + "?" + q.Encode()
}

func (c *Client) lattice(region airquality.Region) []geo.Point {
	n := c.samplesPerAxis
	if n == 1 || (region.MaxLat == region.MinLat && region.MaxLon == region.MinLon) {
		return []geo.Point{region.Center()}
	}
	points := make([]geo.Point, 0, n*n)
	for i := 0; i < n; i++ {
		lat := region.MinLat + (region.MaxLat-region.MinLat)*float64(i)/float64(n-1)
		for j := 0; j < n; j++ {
			lon := region.MinLon + (region.MaxLon-region.MinLon)*float64(j)/float64(n-1)
			points = append(points, geo.Point{Lat: lat, Lon: lon})
		}
	}
	return points
}

func toReading(at geo.Point, e pollutionEntry) airquality.Reading {
	return airquality.Reading{
		Location:   at,
		Timestamp:  time.Unix(e.Dt, 0).UTC(),
		AQI:        airquality.AQIFromComponents(e.Components.PM25, e.Components.PM10),
		PM25:       e.Components.PM25,
		PM10:       e.Components.PM10,
		O3:         e.Components.O3,
		NO2:        e.Components.NO2,
		CO:         e.Components.CO,
		SO2:        e.Components.SO2,
		Source:     ProviderName,
		Confidence: modelConfidence,
	}
}

type pollutionResponse struct {
	List []pollutionEntry `json:"list"`
}

type pollutionEntry struct {
	Dt         int64 `json:"dt"`
	Components struct {
		CO   float64 `json:"co"`
		NO2  float64 `json:"no2"`
		O3   float64 `json:"o3"`
		SO2  float64 `json:"so2"`
		PM25 float64 `json:"pm2_5"`
		PM10 float64 `json:"pm10"`
	} `json:"components"`
}
