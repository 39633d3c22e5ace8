// Package openweathermap fetches hourly weather forecasts from the
// OpenWeatherMap One Call API.
package openweathermap

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/provider/resilience"
	"github.com/breatheroute/runcoach/internal/weather"
	"github.com/breatheroute/runcoach/pkg/geo"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultOneCallURL is the OpenWeatherMap One Call API 3.0 base URL.
	DefaultOneCallURL = "https://api.openweathermap.org/data/3.0/onecall"

	msToKmh = 3.6
)

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// OneCallURL is the One Call API URL (optional, defaults to One Call 3.0).
	OneCallURL string

	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient resilience.Doer

	// Registry receives the default client's health when HTTPClient is nil.
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap forecast client. It implements weather.Provider.
type Client struct {
	apiKey     string
	oneCallURL string
	httpClient resilience.Doer
	logger     zerolog.Logger
}

var _ weather.Provider = (*Client)(nil)

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	oneCallURL := cfg.OneCallURL
	if oneCallURL == "" {
		oneCallURL = DefaultOneCallURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName + "-weather")
		rc.Registry = cfg.Registry
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		oneCallURL: oneCallURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetForecast fetches the hourly forecast for a location. Wind speed is
// converted to km/h.
func (c *Client) GetForecast(ctx context.Context, at geo.Point) (*weather.Forecast, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", at.Lat))
	q.Set("lon", fmt.Sprintf("%.6f", at.Lon))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	q.Set("exclude", "current,minutely,daily,alerts")

	var resp oneCallResponse
	if err := resilience.GetJSON(ctx, c.httpClient, c.oneCallURL+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}

	c.logger.Debug().Int("hours", len(resp.Hourly)).Msg("fetched weather forecast")
	return toForecast(&resp), nil
}

func toForecast(resp *oneCallResponse) *weather.Forecast {
	forecast := &weather.Forecast{
		Location:  geo.Point{Lat: resp.Lat, Lon: resp.Lon},
		Hourly:    make([]weather.HourlyForecast, 0, len(resp.Hourly)),
		FetchedAt: time.Now(),
	}

	for _, h := range resp.Hourly {
		hourly := weather.HourlyForecast{
			Time:         time.Unix(h.Dt, 0).UTC(),
			Temperature:  h.Temp,
			Humidity:     h.Humidity,
			WindSpeedKmh: h.WindSpeed * msToKmh,
			PrecipProb:   h.Pop,
			UVIndex:      h.UVI,
			Condition:    weather.ConditionUnknown,
		}
		if len(h.Weather) > 0 {
			hourly.Condition = mapCondition(h.Weather[0].Main)
			hourly.Description = h.Weather[0].Description
		}
		forecast.Hourly = append(forecast.Hourly, hourly)
	}

	return forecast
}

// mapCondition maps an OpenWeatherMap condition group to a Condition.
func mapCondition(owmCondition string) weather.Condition {
	switch owmCondition {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionClouds
	case "Rain":
		return weather.ConditionRain
	case "Drizzle":
		return weather.ConditionDrizzle
	case "Thunderstorm":
		return weather.ConditionThunderstorm
	case "Snow":
		return weather.ConditionSnow
	case "Mist":
		return weather.ConditionMist
	case "Fog":
		return weather.ConditionFog
	case "Haze", "Dust", "Sand", "Ash", "Squall", "Tornado":
		return weather.ConditionHaze
	default:
		return weather.ConditionUnknown
	}
}

type oneCallResponse struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Hourly []struct {
		Dt        int64   `json:"dt"`
		Temp      float64 `json:"temp"`
		Humidity  float64 `json:"humidity"`
		WindSpeed float64 `json:"wind_speed"`
		UVI       float64 `json:"uvi"`
		Pop       float64 `json:"pop"`
		Weather   []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"hourly"`
}
