package routing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the candidate service.
type ServiceConfig struct {
	// Source generates candidate round trips.
	Source CandidateSource

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache candidates (default: 30 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.002 ~ 220m).
	// Start points within the same grid cell share cached candidates.
	CacheGridSize float64

	// DistanceBucketM rounds the requested distance for caching (default: 250m).
	DistanceBucketM float64

	// StaleIfErrorTTL allows serving stale candidates on source errors (default: 6 hours).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// Service provides candidate routes with caching. Round trips depend only
// on the street network, so they outlive the pollution field they are
// evaluated against.
type Service struct {
	source          CandidateSource
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	distanceBucket  float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	mu          sync.RWMutex
	cache       map[string]*cachedCandidates
	lastCleanup time.Time
}

type cachedCandidates struct {
	candidates []Candidate
	fetchedAt  time.Time
	expiresAt  time.Time
}

// NewService creates a new candidate service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.002
	}

	distanceBucket := cfg.DistanceBucketM
	if distanceBucket == 0 {
		distanceBucket = 250
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 6 * time.Hour
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &Service{
		source:          cfg.Source,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		distanceBucket:  distanceBucket,
		staleIfErrorTTL: staleIfErrorTTL,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedCandidates),
	}
}

// Candidates returns round-trip candidates around the request's start point.
// Uses cached data if available and not expired.
func (s *Service) Candidates(ctx context.Context, req CandidateRequest) ([]Candidate, error) {
	if !req.Start.Valid() {
		return nil, &Error{
			Provider: s.source.Name(),
			Code:     "INVALID_START",
			Message:  "invalid start coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if req.DistanceM <= 0 {
		return nil, &Error{
			Provider: s.source.Name(),
			Code:     "INVALID_DISTANCE",
			Message:  "round trip distance must be positive",
			Err:      ErrInvalidCandidate,
		}
	}
	if req.Profile == "" {
		req.Profile = ProfileRun
	}
	if req.Count <= 0 {
		req.Count = 3
	}

	cacheKey := s.cacheKey(req)

	s.mu.RLock()
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit for candidates")
		return cached.candidates, nil
	}
	s.mu.RUnlock()

	return s.fetchCandidates(ctx, req, cacheKey)
}

func (s *Service) fetchCandidates(ctx context.Context, req CandidateRequest, cacheKey string) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache (prevents thundering herd)
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		return cached.candidates, nil
	}

	s.logger.Debug().
		Float64("start_lat", req.Start.Lat).
		Float64("start_lon", req.Start.Lon).
		Float64("distance_m", req.DistanceM).
		Int("count", req.Count).
		Str("source", s.source.Name()).
		Msg("fetching candidates from source")

	candidates, err := s.source.RoundTrips(ctx, req)
	if err == nil && len(candidates) == 0 {
		err = &Error{Provider: s.source.Name(), Code: "NO_ROUTE", Message: "source returned no round trips", Err: ErrNoRouteFound}
	}
	if err != nil {
		s.logger.Error().Err(err).
			Float64("start_lat", req.Start.Lat).
			Float64("start_lon", req.Start.Lon).
			Float64("distance_m", req.DistanceM).
			Msg("failed to fetch candidates")

		if cached, ok := s.cache[cacheKey]; ok {
			if time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Time("fetched_at", cached.fetchedAt).
					Str("cache_key", cacheKey).
					Msg("serving stale candidates due to source error")
				return cached.candidates, nil
			}
		}
		return nil, err
	}

	now := time.Now()
	s.cache[cacheKey] = &cachedCandidates{
		candidates: candidates,
		fetchedAt:  now,
		expiresAt:  now.Add(s.cacheTTL),
	}

	s.logger.Debug().
		Str("cache_key", cacheKey).
		Int("candidate_count", len(candidates)).
		Msg("cached candidates")

	s.cleanupIfNeeded()

	return candidates, nil
}

// cacheKey quantizes the start point to the grid and the distance to buckets.
// Format: {profile}:{gridLat},{gridLon}:{distance}:{count}.
func (s *Service) cacheKey(req CandidateRequest) string {
	gridLat := math.Floor(req.Start.Lat/s.cacheGridSize) * s.cacheGridSize
	gridLon := math.Floor(req.Start.Lon/s.cacheGridSize) * s.cacheGridSize
	distance := math.Round(req.DistanceM/s.distanceBucket) * s.distanceBucket

	return fmt.Sprintf("%s:%.4f,%.4f:%.0f:%d", req.Profile, gridLat, gridLon, distance, req.Count)
}

// cleanupIfNeeded removes entries past the stale window. Caller holds s.mu.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.cache {
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired candidate cache entries")
	}
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedCandidates)
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	fresh := 0
	stale := 0

	for _, c := range s.cache {
		if now.Before(c.expiresAt) {
			fresh++
		} else if now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			stale++
		}
	}

	return CacheStats{
		TotalEntries: len(s.cache),
		FreshEntries: fresh,
		StaleEntries: stale,
		Source:       s.source.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int    `json:"total_entries"`
	FreshEntries int    `json:"fresh_entries"`
	StaleEntries int    `json:"stale_entries"`
	Source       string `json:"source"`
}

// SourceName returns the name of the underlying candidate source.
func (s *Service) SourceName() string {
	return s.source.Name()
}
