package openrouteservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/routing"
	"github.com/breatheroute/runcoach/pkg/geo"
)

var start = geo.Point{Lat: 52.3676, Lon: 4.9041}

// loopResponse builds an ORS response with a small square loop whose size
// depends on the seed.
func loopResponse(seed int) []byte {
	d := 0.002 * float64(seed+1)
	points := []geo.Point{
		start,
		{Lat: start.Lat + d, Lon: start.Lon},
		{Lat: start.Lat + d, Lon: start.Lon + d},
		{Lat: start.Lat, Lon: start.Lon + d},
		start,
	}
	elevations := []float64{2, 5, 4, 8, 2}

	resp := map[string]any{
		"routes": []map[string]any{{
			"summary": map[string]any{
				"distance": 1000 * float64(seed+1),
				"duration": 360 * float64(seed+1),
				"ascent":   7,
				"descent":  7,
			},
			"geometry": geo.EncodePolylineElevation(points, elevations),
			"extras": map[string]any{
				"green": map[string]any{
					"values":  [][]float64{{0, 2, 10}, {2, 4, 4}},
					"summary": []map[string]any{{"value": 10, "distance": 500, "amount": 50}, {"value": 4, "distance": 500, "amount": 50}},
				},
				"noise": map[string]any{
					"values":  [][]float64{{0, 4, 2}},
					"summary": []map[string]any{{"value": 2, "distance": 1000, "amount": 100}},
				},
			},
		}},
	}
	b, _ := json.Marshal(resp)
	return b
}

func TestClient_RoundTrips_Success(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "mock123" {
			t.Errorf("expected Authorization header 'mock123', got '%s'", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/v2/directions/foot-walking" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req orsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		if len(req.Coordinates) != 1 || req.Coordinates[0][0] != start.Lon || req.Coordinates[0][1] != start.Lat {
			t.Errorf("expected single [lon, lat] coordinate, got %v", req.Coordinates)
		}
		if req.Options == nil || req.Options.RoundTrip == nil {
			t.Errorf("expected round_trip options")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Options.RoundTrip.Length != 5000 {
			t.Errorf("expected length 5000, got %f", req.Options.RoundTrip.Length)
		}
		if !req.Elevation {
			t.Error("expected elevation to be requested")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(loopResponse(req.Options.RoundTrip.Seed))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})

	got, err := client.RoundTrips(context.Background(), routing.CandidateRequest{Start: start, DistanceM: 5000, Count: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 requests (one per seed), got %d", calls.Load())
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}

	for i, c := range got {
		if c.ID != fmt.Sprintf("openrouteservice-%d", i) {
			t.Errorf("candidate %d: unexpected id %s", i, c.ID)
		}
		if c.DistanceM != 1000*float64(i+1) {
			t.Errorf("candidate %d: expected distance %f, got %f", i, 1000*float64(i+1), c.DistanceM)
		}
		if len(c.Waypoints) != 5 || len(c.Elevations) != 5 {
			t.Errorf("candidate %d: expected 5 waypoints with elevation, got %d/%d", i, len(c.Waypoints), len(c.Elevations))
		}
		if c.ElevationGainM != 7 {
			t.Errorf("candidate %d: expected ascent 7, got %f", i, c.ElevationGainM)
		}
		// (50*1.0 + 50*0.4) / 100
		if math.Abs(c.GreenCoverage-0.7) > 1e-9 {
			t.Errorf("candidate %d: expected green 0.7, got %f", i, c.GreenCoverage)
		}
		if c.SafetyScore == nil || math.Abs(*c.SafetyScore-0.8) > 1e-9 {
			t.Errorf("candidate %d: expected safety 0.8, got %v", i, c.SafetyScore)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("candidate %d: %v", i, err)
		}
	}
}

func TestClient_RoundTrips_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req orsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Options.RoundTrip.Seed == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":2099,"message":"boom"}}`))
			return
		}
		_, _ = w.Write(loopResponse(req.Options.RoundTrip.Seed))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})

	got, err := client.RoundTrips(context.Background(), routing.CandidateRequest{Start: start, DistanceM: 5000, Count: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "openrouteservice-0" || got[1].ID != "openrouteservice-2" {
		t.Errorf("expected seeds 0 and 2 in order, got %s and %s", got[0].ID, got[1].ID)
	}
}

func TestClient_RoundTrips_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		code    string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":0,"message":"quota"}}`, routing.ErrRateLimitExceeded, "RATE_LIMIT"},
		{"forbidden", http.StatusForbidden, `{"error":{"code":0,"message":"key"}}`, routing.ErrProviderUnavailable, "FORBIDDEN"},
		{"not found", http.StatusNotFound, `{"error":{"code":0,"message":"none"}}`, routing.ErrNoRouteFound, "NO_ROUTE"},
		{"ors route not found", http.StatusBadRequest, `{"error":{"code":2009,"message":"Route could not be found"}}`, routing.ErrNoRouteFound, "NO_ROUTE"},
		{"bad request", http.StatusBadRequest, `{"error":{"code":2003,"message":"bad param"}}`, routing.ErrInvalidCoordinates, "BAD_REQUEST"},
		{"server error", http.StatusBadGateway, `{"error":{"code":0,"message":"x"}}`, routing.ErrProviderUnavailable, "SERVER_502"},
		{"unparseable body", http.StatusTeapot, `nope`, routing.ErrProviderUnavailable, "HTTP_418"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
			_, err := client.RoundTrips(context.Background(), routing.CandidateRequest{Start: start, DistanceM: 5000, Count: 1})

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var routingErr *routing.Error
			if !errors.As(err, &routingErr) {
				t.Fatalf("expected routing.Error, got %T", err)
			}
			if routingErr.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, routingErr.Code)
			}
			if routingErr.Provider != ProviderName {
				t.Errorf("expected provider %s, got %s", ProviderName, routingErr.Provider)
			}
		})
	}
}

func TestClient_RoundTrips_InvalidStart(t *testing.T) {
	client := NewClient(ClientConfig{HTTPClient: &mockFailingClient{}})

	_, err := client.RoundTrips(context.Background(), routing.CandidateRequest{Start: geo.Point{Lat: 91, Lon: 0}, DistanceM: 5000})
	if !errors.Is(err, routing.ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

// mockFailingClient simulates network errors.
type mockFailingClient struct{}

func (m *mockFailingClient) Do(req *http.Request) (*http.Response, error) {
	return nil, errors.New("network error")
}

func TestClient_RoundTrips_NetworkError(t *testing.T) {
	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		HTTPClient: &mockFailingClient{},
		Logger:     zerolog.Nop(),
	})

	_, err := client.RoundTrips(context.Background(), routing.CandidateRequest{Start: start, DistanceM: 5000, Count: 2})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var routingErr *routing.Error
	if !errors.As(err, &routingErr) {
		t.Fatalf("expected routing.Error, got %T", err)
	}
	if !routingErr.IsRetryable() {
		t.Error("expected network failure to be retryable")
	}
}

func TestClient_Name(t *testing.T) {
	if name := NewClient(ClientConfig{}).Name(); name != ProviderName {
		t.Errorf("expected %s, got %s", ProviderName, name)
	}
}

func TestWeightedIndex(t *testing.T) {
	tests := []struct {
		name      string
		summaries []summary
		want      float64
	}{
		{"empty", nil, 0},
		{"all greenest", []summary{{Value: 10, Amount: 100}}, 1},
		{"mixed", []summary{{Value: 10, Amount: 25}, {Value: 0, Amount: 75}}, 0.25},
		{"amounts not summing to 100", []summary{{Value: 6, Amount: 40}}, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := weightedIndex(tt.summaries); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      *routing.Error
		expected bool
	}{
		{"provider unavailable is retryable", &routing.Error{Err: routing.ErrProviderUnavailable}, true},
		{"rate limit is retryable", &routing.Error{Err: routing.ErrRateLimitExceeded}, true},
		{"no route found is not retryable", &routing.Error{Err: routing.ErrNoRouteFound}, false},
		{"invalid coordinates is not retryable", &routing.Error{Err: routing.ErrInvalidCoordinates}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.IsRetryable() != tt.expected {
				t.Errorf("IsRetryable() = %v, expected %v", tt.err.IsRetryable(), tt.expected)
			}
		})
	}
}
