package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// mockSource is a mock candidate source for testing.
type mockSource struct {
	name       string
	mu         sync.Mutex
	candidates []Candidate
	err        error
	callCount  atomic.Int32
	delay      time.Duration
}

func (m *mockSource) RoundTrips(ctx context.Context, req CandidateRequest) ([]Candidate, error) {
	m.callCount.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

func (m *mockSource) Name() string {
	return m.name
}

func (m *mockSource) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func loopCandidate(id string, distance float64) Candidate {
	return Candidate{
		ID: id,
		Waypoints: []geo.Point{
			{Lat: 52.3676, Lon: 4.9041},
			{Lat: 52.3700, Lon: 4.9100},
			{Lat: 52.3676, Lon: 4.9041},
		},
		DistanceM: distance,
		DurationS: distance / DefaultRunningSpeedMps,
	}
}

var amsterdam = geo.Point{Lat: 52.3676, Lon: 4.9041}

func TestService_Candidates_CacheMiss(t *testing.T) {
	source := &mockSource{
		name:       "test-source",
		candidates: []Candidate{loopCandidate("a", 5000)},
	}

	service := NewService(ServiceConfig{Source: source, CacheTTL: 5 * time.Minute})

	got, err := service.Candidates(context.Background(), CandidateRequest{Start: amsterdam, DistanceM: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.callCount.Load() != 1 {
		t.Errorf("expected 1 source call, got %d", source.callCount.Load())
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected candidate a, got %+v", got)
	}
}

func TestService_Candidates_CacheHit(t *testing.T) {
	source := &mockSource{
		name:       "test-source",
		candidates: []Candidate{loopCandidate("a", 5000)},
	}

	service := NewService(ServiceConfig{Source: source, CacheTTL: 5 * time.Minute})
	req := CandidateRequest{Start: amsterdam, DistanceM: 5000}

	for i := 0; i < 3; i++ {
		if _, err := service.Candidates(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if source.callCount.Load() != 1 {
		t.Errorf("expected 1 source call (cache hit), got %d", source.callCount.Load())
	}
}

func TestService_Candidates_GridAndDistanceBuckets(t *testing.T) {
	source := &mockSource{
		name:       "test-source",
		candidates: []Candidate{loopCandidate("a", 5000)},
	}

	service := NewService(ServiceConfig{Source: source})

	// Same grid cell, distance within the same 250m bucket
	_, _ = service.Candidates(context.Background(), CandidateRequest{Start: geo.Point{Lat: 52.3661, Lon: 4.9041}, DistanceM: 5000})
	_, _ = service.Candidates(context.Background(), CandidateRequest{Start: geo.Point{Lat: 52.3662, Lon: 4.9042}, DistanceM: 5080})
	if source.callCount.Load() != 1 {
		t.Errorf("expected 1 source call for nearby requests, got %d", source.callCount.Load())
	}

	// Different distance bucket
	_, _ = service.Candidates(context.Background(), CandidateRequest{Start: geo.Point{Lat: 52.3661, Lon: 4.9041}, DistanceM: 8000})
	if source.callCount.Load() != 2 {
		t.Errorf("expected 2 source calls after distance change, got %d", source.callCount.Load())
	}
}

func TestService_Candidates_StaleIfError(t *testing.T) {
	source := &mockSource{
		name:       "test-source",
		candidates: []Candidate{loopCandidate("a", 5000)},
	}

	service := NewService(ServiceConfig{
		Source:          source,
		CacheTTL:        50 * time.Millisecond,
		StaleIfErrorTTL: 500 * time.Millisecond,
	})
	req := CandidateRequest{Start: amsterdam, DistanceM: 5000}

	if _, err := service.Candidates(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	source.fail(errors.New("source error"))

	got, err := service.Candidates(context.Background(), req)
	if err != nil {
		t.Fatalf("expected stale data to be served, got error: %v", err)
	}
	if got[0].ID != "a" {
		t.Errorf("expected stale candidate a, got %s", got[0].ID)
	}
}

func TestService_Candidates_ErrorWithoutCache(t *testing.T) {
	source := &mockSource{name: "test-source", err: ErrProviderUnavailable}
	service := NewService(ServiceConfig{Source: source})

	_, err := service.Candidates(context.Background(), CandidateRequest{Start: amsterdam, DistanceM: 5000})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestService_Candidates_EmptyResult(t *testing.T) {
	source := &mockSource{name: "test-source"}
	service := NewService(ServiceConfig{Source: source})

	_, err := service.Candidates(context.Background(), CandidateRequest{Start: amsterdam, DistanceM: 5000})
	if !errors.Is(err, ErrNoRouteFound) {
		t.Errorf("expected ErrNoRouteFound, got %v", err)
	}
}

func TestService_Candidates_InvalidRequest(t *testing.T) {
	source := &mockSource{name: "test-source"}
	service := NewService(ServiceConfig{Source: source})

	tests := []struct {
		name    string
		req     CandidateRequest
		wantErr error
	}{
		{"latitude too high", CandidateRequest{Start: geo.Point{Lat: 91, Lon: 4.9}, DistanceM: 5000}, ErrInvalidCoordinates},
		{"longitude too low", CandidateRequest{Start: geo.Point{Lat: 52, Lon: -181}, DistanceM: 5000}, ErrInvalidCoordinates},
		{"zero distance", CandidateRequest{Start: amsterdam}, ErrInvalidCandidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Candidates(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			var routingErr *Error
			if !errors.As(err, &routingErr) {
				t.Errorf("expected *Error, got %T", err)
			}
		})
	}

	if source.callCount.Load() != 0 {
		t.Errorf("expected no source calls for invalid requests, got %d", source.callCount.Load())
	}
}

func TestService_Candidates_ConcurrentRequests(t *testing.T) {
	source := &mockSource{
		name:       "test-source",
		candidates: []Candidate{loopCandidate("a", 5000)},
		delay:      20 * time.Millisecond,
	}
	service := NewService(ServiceConfig{Source: source})
	req := CandidateRequest{Start: amsterdam, DistanceM: 5000}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Candidates(context.Background(), req); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if source.callCount.Load() != 1 {
		t.Errorf("expected 1 source call with double-checked cache, got %d", source.callCount.Load())
	}
}

func TestService_CacheStatsAndInvalidate(t *testing.T) {
	source := &mockSource{
		name:       "test-source",
		candidates: []Candidate{loopCandidate("a", 5000)},
	}
	service := NewService(ServiceConfig{Source: source})

	_, _ = service.Candidates(context.Background(), CandidateRequest{Start: amsterdam, DistanceM: 5000})
	_, _ = service.Candidates(context.Background(), CandidateRequest{Start: amsterdam, DistanceM: 10000})

	stats := service.CacheStats()
	if stats.TotalEntries != 2 || stats.FreshEntries != 2 {
		t.Errorf("expected 2 fresh entries, got %+v", stats)
	}
	if stats.Source != "test-source" {
		t.Errorf("expected source test-source, got %s", stats.Source)
	}

	service.InvalidateCache()
	if stats := service.CacheStats(); stats.TotalEntries != 0 {
		t.Errorf("expected empty cache after invalidate, got %d", stats.TotalEntries)
	}
	if service.SourceName() != "test-source" {
		t.Errorf("expected source name test-source, got %s", service.SourceName())
	}
}

func TestService_CacheKeyFormat(t *testing.T) {
	service := NewService(ServiceConfig{Source: &mockSource{name: "x"}})
	key := service.cacheKey(CandidateRequest{Start: geo.Point{Lat: 52.3661, Lon: 4.9041}, DistanceM: 5100, Count: 3, Profile: ProfileRun})

	expected := "foot-walking:52.3660,4.9040:5000:3"
	if key != expected {
		t.Errorf("expected cache key %q, got %q", expected, key)
	}
}
