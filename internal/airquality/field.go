package airquality

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// FieldConfig holds configuration for a pollution field.
type FieldConfig struct {
	// ResolutionMeters is the target grid spacing (default: 2000).
	ResolutionMeters float64

	// MaxGridPoints caps the grid size for interactive latency (default: 4096).
	MaxGridPoints int

	// BoundsPadding is the fraction of the reading extent added on each side
	// when no explicit bounds are given (default: 0.1).
	BoundsPadding float64

	// Logger for field operations.
	Logger zerolog.Logger
}

// DefaultFieldConfig returns the default field configuration.
func DefaultFieldConfig() FieldConfig {
	return FieldConfig{
		ResolutionMeters: 2000,
		MaxGridPoints:    4096,
		BoundsPadding:    0.1,
		Logger:           zerolog.Nop(),
	}
}

// Field is a pollution surface rebuilt wholesale from each batch of readings.
// Updates build a new Snapshot and publish it atomically, so concurrent readers
// see either the previous or the new surface, never a partial one.
type Field struct {
	cfg     FieldConfig
	logger  zerolog.Logger
	current atomic.Pointer[Snapshot]
}

// NewField creates an empty field.
func NewField(cfg FieldConfig) *Field {
	defaults := DefaultFieldConfig()
	if cfg.ResolutionMeters <= 0 {
		cfg.ResolutionMeters = defaults.ResolutionMeters
	}
	if cfg.MaxGridPoints == 0 {
		cfg.MaxGridPoints = defaults.MaxGridPoints
	}
	if cfg.BoundsPadding <= 0 {
		cfg.BoundsPadding = defaults.BoundsPadding
	}

	return &Field{cfg: cfg, logger: cfg.Logger}
}

// Update rebuilds the field from readings. When bounds is nil the region is the
// reading extent plus padding. An empty batch leaves the current surface in
// place, logs a warning and returns ErrNoReadings.
func (f *Field) Update(ctx context.Context, readings []Reading, bounds *Region) error {
	if len(readings) == 0 {
		f.logger.Warn().Msg("no readings supplied, pollution field left unchanged")
		return ErrNoReadings
	}

	started := time.Now()

	var region Region
	if bounds != nil && bounds.Valid() {
		region = *bounds
	} else {
		center := readings[0].Location
		region = boundsOf(readings, f.cfg.BoundsPadding,
			f.cfg.ResolutionMeters/geo.MetersPerDegreeLat,
			f.cfg.ResolutionMeters/geo.MetersPerDegreeLon(center.Lat))
	}

	g := newGrid(region, f.cfg.ResolutionMeters, f.cfg.MaxGridPoints)

	fits := make([]*channel, len(FieldPollutants))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, p := range FieldPollutants {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			samples := samplesFor(readings, p)
			if len(samples) == 0 {
				return nil
			}
			fits[i] = fitChannel(g, samples)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	snap := &Snapshot{
		grid:      g,
		channels:  make(map[Pollutant]*channel, len(FieldPollutants)),
		readings:  len(readings),
		updatedAt: time.Now(),
		logger:    f.logger,
	}
	for i, p := range FieldPollutants {
		if fits[i] == nil {
			f.logger.Warn().Str("pollutant", string(p)).Msg("no valid readings for pollutant, channel skipped")
			continue
		}
		snap.channels[p] = fits[i]
	}

	f.current.Store(snap)

	f.logger.Debug().
		Int("readings", len(readings)).
		Int("grid_points", g.size()).
		Int("channels", len(snap.channels)).
		Dur("duration", time.Since(started)).
		Msg("pollution field updated")

	return nil
}

// Snapshot returns the currently published surface, or nil before the first
// successful update. Snapshot methods are safe on a nil receiver.
func (f *Field) Snapshot() *Snapshot {
	return f.current.Load()
}

// Query returns the value of p at the grid point nearest to at.
func (f *Field) Query(p Pollutant, at geo.Point) float64 {
	if s := f.Snapshot(); s != nil {
		return s.Query(p, at)
	}
	f.logger.Warn().Str("pollutant", string(p)).Msg("pollution field queried before any update")
	return 0
}

// QueryUncertainty returns the uncertainty of p at the grid point nearest to at.
func (f *Field) QueryUncertainty(p Pollutant, at geo.Point) float64 {
	return f.Snapshot().QueryUncertainty(p, at)
}

// Snapshot is an immutable, fully built pollution surface.
type Snapshot struct {
	grid      grid
	channels  map[Pollutant]*channel
	readings  int
	updatedAt time.Time
	logger    zerolog.Logger
}

// Sample is a looked-up channel value with its uncertainty.
type Sample struct {
	Pollutant   Pollutant `json:"pollutant"`
	Value       float64   `json:"value"`
	Uncertainty float64   `json:"uncertainty"`
	GridPoint   geo.Point `json:"grid_point"`
}

// Lookup returns the sample of p nearest to at. ok is false when the channel
// was never fitted.
func (s *Snapshot) Lookup(p Pollutant, at geo.Point) (Sample, bool) {
	if s == nil {
		return Sample{}, false
	}
	ch, ok := s.channels[p]
	if !ok {
		return Sample{}, false
	}
	k := s.grid.nearest(at)
	return Sample{
		Pollutant:   p,
		Value:       ch.values[k],
		Uncertainty: ch.uncertainty,
		GridPoint:   s.grid.point(k),
	}, true
}

// Query returns the value of p nearest to at, or 0 with a warning when the
// channel is missing.
func (s *Snapshot) Query(p Pollutant, at geo.Point) float64 {
	sample, ok := s.Lookup(p, at)
	if !ok {
		if s != nil {
			s.logger.Warn().Str("pollutant", string(p)).Msg("pollutant not available in field, using 0")
		}
		return 0
	}
	return sample.Value
}

// QueryUncertainty returns the uncertainty of p nearest to at (0 when missing).
func (s *Snapshot) QueryUncertainty(p Pollutant, at geo.Point) float64 {
	sample, _ := s.Lookup(p, at)
	return sample.Uncertainty
}

// Has reports whether the channel p was fitted.
func (s *Snapshot) Has(p Pollutant) bool {
	if s == nil {
		return false
	}
	_, ok := s.channels[p]
	return ok
}

// FieldStatus summarizes a snapshot.
type FieldStatus struct {
	HasData          bool        `json:"has_data"`
	Region           Region      `json:"region"`
	ResolutionMeters float64     `json:"resolution_m"`
	GridPoints       int         `json:"grid_points"`
	Readings         int         `json:"readings"`
	Pollutants       []Pollutant `json:"pollutants"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Status describes the snapshot.
func (s *Snapshot) Status() FieldStatus {
	if s == nil {
		return FieldStatus{}
	}
	st := FieldStatus{
		HasData:          true,
		Region:           s.grid.region,
		ResolutionMeters: s.grid.resolution,
		GridPoints:       s.grid.size(),
		Readings:         s.readings,
		UpdatedAt:        s.updatedAt,
	}
	for _, p := range FieldPollutants {
		if s.Has(p) {
			st.Pollutants = append(st.Pollutants, p)
		}
	}
	return st
}
