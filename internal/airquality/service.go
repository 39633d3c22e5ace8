package airquality

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/telemetry"
	"github.com/breatheroute/runcoach/pkg/geo"
)

// Provider supplies batches of readings for a region.
type Provider interface {
	// Name identifies the provider.
	Name() string

	// FetchReadings returns the latest readings inside or around region.
	FetchReadings(ctx context.Context, region Region) ([]Reading, error)
}

// ServiceConfig holds configuration for the field service.
type ServiceConfig struct {
	// Provider supplies readings.
	Provider Provider

	// Field configures every regional field.
	Field FieldConfig

	// MinReadings is the smallest batch that replaces a field (default: 3).
	MinReadings int

	// AdHocRadiusMeters is the radius of regions created on demand around a
	// query location (default: 5000).
	AdHocRadiusMeters float64

	// MaxRegions caps the number of registered regions (default: 64).
	// Ad-hoc regions do not count against it.
	MaxRegions int

	// MaxAdHocRegions caps the ad-hoc regions kept at once. The least
	// recently queried one is evicted to make room (default: 16).
	MaxAdHocRegions int

	// AdHocTTL expires ad-hoc regions not queried for this long (default: 2 hours).
	AdHocTTL time.Duration

	// StaleAfter marks fields older than this as stale (default: 30 minutes).
	StaleAfter time.Duration

	// Metrics records field rebuilds (optional).
	Metrics *telemetry.EngineMetrics

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service keeps one pollution field per named region.
type Service struct {
	provider    Provider
	fieldCfg    FieldConfig
	minReadings int
	adHocRadius float64
	maxRegions  int
	maxAdHoc    int
	adHocTTL    time.Duration
	staleAfter  time.Duration
	metrics     *telemetry.EngineMetrics
	logger      zerolog.Logger

	mu      sync.RWMutex
	regions map[string]*regionField
}

type regionField struct {
	name   string
	region Region
	field  *Field

	// refresh serializes provider fetches for the region.
	refresh sync.Mutex

	// Guarded by Service.mu.
	adHoc     bool
	lastError error
	lastTry   time.Time

	// lastUsed is the unix nano time of the last ad-hoc query.
	lastUsed atomic.Int64
}

func (rf *regionField) touch(now time.Time) {
	rf.lastUsed.Store(now.UnixNano())
}

// NewService creates a new field service.
func NewService(cfg ServiceConfig) *Service {
	minReadings := cfg.MinReadings
	if minReadings <= 0 {
		minReadings = 3
	}
	radius := cfg.AdHocRadiusMeters
	if radius <= 0 {
		radius = 5000
	}
	maxRegions := cfg.MaxRegions
	if maxRegions <= 0 {
		maxRegions = 64
	}
	maxAdHoc := cfg.MaxAdHocRegions
	if maxAdHoc <= 0 {
		maxAdHoc = 16
	}
	adHocTTL := cfg.AdHocTTL
	if adHocTTL <= 0 {
		adHocTTL = 2 * time.Hour
	}
	staleAfter := cfg.StaleAfter
	if staleAfter == 0 {
		staleAfter = 30 * time.Minute
	}

	fieldCfg := cfg.Field
	fieldCfg.Logger = cfg.Logger

	return &Service{
		provider:    cfg.Provider,
		fieldCfg:    fieldCfg,
		minReadings: minReadings,
		adHocRadius: radius,
		maxRegions:  maxRegions,
		maxAdHoc:    maxAdHoc,
		adHocTTL:    adHocTTL,
		staleAfter:  staleAfter,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		regions:     make(map[string]*regionField),
	}
}

// Register starts tracking a named region. Re-registering a name replaces its
// bounds but keeps the current field until the next refresh. Registering the
// name of an ad-hoc region makes it permanent.
func (s *Service) Register(name string, region Region) error {
	if !region.Valid() {
		return fmt.Errorf("airquality: invalid region %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rf, ok := s.regions[name]; ok {
		rf.region = region
		rf.adHoc = false
		return nil
	}
	if s.countLocked(false) >= s.maxRegions {
		return fmt.Errorf("%w: %d registered", ErrRegionLimit, s.maxRegions)
	}
	s.regions[name] = &regionField{name: name, region: region, field: NewField(s.fieldCfg)}
	return nil
}

func (s *Service) countLocked(adHoc bool) int {
	n := 0
	for _, rf := range s.regions {
		if rf.adHoc == adHoc {
			n++
		}
	}
	return n
}

// adHocRegion returns the ad-hoc region called name, creating it when missing.
// At the ad-hoc limit the least recently queried ad-hoc region is dropped;
// registered regions are never evicted.
func (s *Service) adHocRegion(name string, region Region) *regionField {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rf, ok := s.regions[name]; ok {
		rf.touch(now)
		return rf
	}

	if s.countLocked(true) >= s.maxAdHoc {
		var oldest *regionField
		for _, rf := range s.regions {
			if rf.adHoc && (oldest == nil || rf.lastUsed.Load() < oldest.lastUsed.Load()) {
				oldest = rf
			}
		}
		if oldest != nil {
			delete(s.regions, oldest.name)
			s.logger.Debug().Str("region", oldest.name).Msg("ad-hoc region evicted")
		}
	}

	rf := &regionField{name: name, region: region, field: NewField(s.fieldCfg), adHoc: true}
	rf.touch(now)
	s.regions[name] = rf
	return rf
}

// ExpireAdHoc drops ad-hoc regions not queried since now minus the ad-hoc TTL
// and returns their names in sorted order.
func (s *Service) ExpireAdHoc(now time.Time) []string {
	cutoff := now.Add(-s.adHocTTL).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for name, rf := range s.regions {
		if rf.adHoc && rf.lastUsed.Load() < cutoff {
			delete(s.regions, name)
			expired = append(expired, name)
		}
	}
	sort.Strings(expired)
	return expired
}

// Regions returns the tracked region names in sorted order.
func (s *Service) Regions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.regions))
	for name := range s.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refresh fetches readings for a region and rebuilds its field. On provider
// failure or a too small batch the previous field stays published.
func (s *Service) Refresh(ctx context.Context, name string) (FieldStatus, error) {
	rf, err := s.lookup(name)
	if err != nil {
		return FieldStatus{}, err
	}
	return s.refresh(ctx, rf)
}

func (s *Service) refresh(ctx context.Context, rf *regionField) (FieldStatus, error) {
	name := rf.name

	rf.refresh.Lock()
	defer rf.refresh.Unlock()

	s.mu.RLock()
	region := rf.region
	s.mu.RUnlock()

	readings, err := s.provider.FetchReadings(ctx, region)
	if err != nil {
		s.logger.Error().Err(err).Str("region", name).Str("provider", s.provider.Name()).
			Msg("failed to fetch readings")
		s.record(rf, err)
		return rf.field.Snapshot().Status(), fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if len(readings) < s.minReadings {
		s.logger.Warn().Str("region", name).Int("readings", len(readings)).Int("min_readings", s.minReadings).
			Msg("not enough readings, keeping previous field")
		s.record(rf, ErrInsufficientReadings)
		return rf.field.Snapshot().Status(), ErrInsufficientReadings
	}

	started := time.Now()
	if err := rf.field.Update(ctx, readings, &region); err != nil {
		s.record(rf, err)
		return rf.field.Snapshot().Status(), err
	}
	s.record(rf, nil)

	status := rf.field.Snapshot().Status()
	s.metrics.RecordFieldRebuild(ctx, name, time.Since(started), status.GridPoints)
	s.logger.Info().Str("region", name).Int("readings", len(readings)).Int("grid_points", status.GridPoints).
		Msg("region field refreshed")
	return status, nil
}

func (s *Service) record(rf *regionField, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rf.lastTry = time.Now()
	rf.lastError = err
}

// Snapshot returns the current surface of a region (nil before its first refresh).
func (s *Service) Snapshot(name string) (*Snapshot, error) {
	rf, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return rf.field.Snapshot(), nil
}

// SnapshotFor returns a populated surface covering p. A tracked region with
// data is preferred; otherwise an ad-hoc region around p is created and
// refreshed synchronously.
func (s *Service) SnapshotFor(ctx context.Context, p geo.Point) (*Snapshot, string, error) {
	if name, snap := s.covering(p); snap != nil {
		return snap, name, nil
	}

	name := adHocName(p)
	rf := s.adHocRegion(name, RegionAround(p, s.adHocRadius))
	if _, err := s.refresh(ctx, rf); err != nil {
		if snap := rf.field.Snapshot(); snap != nil {
			return snap, name, nil
		}
		return nil, name, err
	}
	return rf.field.Snapshot(), name, nil
}

func (s *Service) covering(p geo.Point) (string, *Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		bestName string
		best     *Snapshot
		bestRF   *regionField
		bestArea = math.Inf(1)
	)
	for name, rf := range s.regions {
		snap := rf.field.Snapshot()
		if snap == nil || !rf.region.Contains(p) {
			continue
		}
		area := (rf.region.MaxLat - rf.region.MinLat) * (rf.region.MaxLon - rf.region.MinLon)
		if area < bestArea || (area == bestArea && name < bestName) {
			bestName, best, bestRF, bestArea = name, snap, rf, area
		}
	}
	if bestRF != nil && bestRF.adHoc {
		bestRF.touch(time.Now())
	}
	return bestName, best
}

// RegionStatus reports the state of one tracked region.
type RegionStatus struct {
	Name      string      `json:"name"`
	Region    Region      `json:"region"`
	Field     FieldStatus `json:"field"`
	AdHoc     bool        `json:"ad_hoc"`
	IsStale   bool        `json:"is_stale"`
	LastTry   time.Time   `json:"last_try,omitzero"`
	LastError string      `json:"last_error,omitempty"`
}

// Status returns the state of every tracked region.
func (s *Service) Status() []RegionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make([]RegionStatus, 0, len(s.regions))
	for name, rf := range s.regions {
		st := RegionStatus{
			Name:    name,
			Region:  rf.region,
			Field:   rf.field.Snapshot().Status(),
			AdHoc:   rf.adHoc,
			LastTry: rf.lastTry,
		}
		st.IsStale = !st.Field.HasData || now.Sub(st.Field.UpdatedAt) > s.staleAfter
		if rf.lastError != nil {
			st.LastError = rf.lastError.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) lookup(name string) (*regionField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rf, ok := s.regions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegion, name)
	}
	return rf, nil
}

// adHocName buckets a location to ~0.05° so nearby queries share a region.
func adHocName(p geo.Point) string {
	return fmt.Sprintf("adhoc:%.2f,%.2f", math.Round(p.Lat*20)/20, math.Round(p.Lon*20)/20)
}
