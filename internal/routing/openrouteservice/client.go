// Package openrouteservice generates round-trip running routes with the
// OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/runcoach/internal/provider/resilience"
	"github.com/breatheroute/runcoach/internal/routing"
	"github.com/breatheroute/runcoach/pkg/geo"
)

const (
	// ProviderName identifies this candidate source.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient resilience.Doer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// RoundTripPoints controls how many turning points ORS uses per loop (default: 3).
	RoundTripPoints int

	// Concurrency bounds parallel round trip requests (default: 3).
	Concurrency int

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey      string
	baseURL     string
	points      int
	concurrency int
	httpClient  resilience.Doer
	logger      zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	points := cfg.RoundTripPoints
	if points <= 0 {
		points = 3
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		points:      points,
		concurrency: concurrency,
		httpClient:  httpClient,
		logger:      cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// RoundTrips requests req.Count loops of roughly req.DistanceM starting and
// ending at req.Start, one per seed. Failed seeds are skipped; an error is
// returned only when every seed fails.
func (c *Client) RoundTrips(ctx context.Context, req routing.CandidateRequest) ([]routing.Candidate, error) {
	if !req.Start.Valid() {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_START",
			Message:  "invalid start coordinates",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	count := req.Count
	if count <= 0 {
		count = 3
	}
	profile := req.Profile
	if profile == "" {
		profile = routing.ProfileRun
	}

	results := make([]*routing.Candidate, count)
	errs := make([]error, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for seed := 0; seed < count; seed++ {
		g.Go(func() error {
			cand, err := c.roundTrip(gctx, req.Start, req.DistanceM, profile, seed)
			if err != nil {
				c.logger.Warn().Err(err).Int("seed", seed).Msg("round trip request failed")
				errs[seed] = err
				return nil
			}
			results[seed] = cand
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]routing.Candidate, 0, count)
	for _, cand := range results {
		if cand != nil {
			candidates = append(candidates, *cand)
		}
	}
	if len(candidates) == 0 {
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		return nil, &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: "no round trips returned", Err: routing.ErrNoRouteFound}
	}

	c.logger.Debug().
		Int("requested", count).
		Int("received", len(candidates)).
		Msg("received round trips from ORS")

	return candidates, nil
}

func (c *Client) roundTrip(ctx context.Context, start geo.Point, length float64, profile routing.Profile, seed int) (*routing.Candidate, error) {
	orsReq := orsRequest{
		// ORS uses [lon, lat] order (GeoJSON)
		Coordinates: [][]float64{{start.Lon, start.Lat}},
		Options: &orsOptions{
			RoundTrip: &roundTripOpts{Length: length, Points: c.points, Seed: seed},
		},
		Elevation:    true,
		ExtraInfo:    []string{extraGreen, extraNoise},
		Instructions: false,
		Geometry:     true,
		Units:        "m",
	}

	body, err := json.Marshal(orsReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, respBody)
	}

	var orsResp orsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(orsResp.Routes) == 0 {
		return nil, &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: "empty route list", Err: routing.ErrNoRouteFound}
	}

	cand := toCandidate(&orsResp.Routes[0], seed)
	return &cand, nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	if err := json.Unmarshal(body, &orsErr); err != nil {
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("routing provider returned status %d", statusCode),
			Err:      routing.ErrProviderUnavailable,
		}
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case http.StatusForbidden:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied - check API key configuration",
			Err:      routing.ErrProviderUnavailable,
		}
	case http.StatusNotFound:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no round trip found around the start point",
			Err:      routing.ErrNoRouteFound,
		}
	case http.StatusBadRequest:
		if orsErr.Error.Code == orsErrorCodeNotFound {
			return &routing.Error{
				Provider: ProviderName,
				Code:     "NO_ROUTE",
				Message:  orsErr.Error.Message,
				Err:      routing.ErrNoRouteFound,
			}
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  orsErr.Error.Message,
			Err:      routing.ErrInvalidCoordinates,
		}
	default:
		if statusCode >= 500 {
			return &routing.Error{
				Provider: ProviderName,
				Code:     fmt.Sprintf("SERVER_%d", statusCode),
				Message:  "routing provider is temporarily unavailable",
				Err:      routing.ErrProviderUnavailable,
			}
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  orsErr.Error.Message,
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

// toCandidate converts an ORS route to a candidate. The geometry is a 3D
// polyline because elevation is requested.
func toCandidate(r *orsRoute, seed int) routing.Candidate {
	points, elevations := geo.DecodePolylineElevation(r.Geometry)

	gain := r.Summary.Ascent
	if gain == 0 {
		gain = geo.ElevationGain(elevations)
	}

	cand := routing.Candidate{
		ID:             fmt.Sprintf("%s-%d", ProviderName, seed),
		Source:         ProviderName,
		Waypoints:      points,
		Elevations:     elevations,
		Polyline:       geo.EncodePolyline(points),
		DistanceM:      r.Summary.Distance,
		DurationS:      r.Summary.Duration,
		ElevationGainM: gain,
	}
	if green, ok := r.Extras[extraGreen]; ok {
		cand.GreenCoverage = weightedIndex(green.Summary)
	}
	if noise, ok := r.Extras[extraNoise]; ok && len(noise.Summary) > 0 {
		safety := 1 - weightedIndex(noise.Summary)
		cand.SafetyScore = &safety
	}
	return cand
}

// weightedIndex is the route-share weighted mean of a 0-10 index, scaled to [0,1].
func weightedIndex(summaries []summary) float64 {
	total, share := 0.0, 0.0
	for _, s := range summaries {
		total += s.Amount * s.Value / extraScale
		share += s.Amount
	}
	if share <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, total/share))
}
