package routing

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/telemetry"
	"github.com/breatheroute/runcoach/pkg/geo"
)

// OptimizerConfig holds configuration for the route optimizer.
type OptimizerConfig struct {
	Objectives ObjectiveConfig
	Weights    WeightConfig

	// PaceThreshold is the AQI above which a segment should be walked (default: 100).
	PaceThreshold float64
	// AsthmaPaceFactor and COPDPaceFactor scale PaceThreshold; the lowest applicable wins.
	AsthmaPaceFactor float64
	COPDPaceFactor   float64
	// EasyPaceRatio of the threshold above which the pace is "easy" (default: 0.7).
	EasyPaceRatio float64

	// Concurrency bounds objective evaluation (default: 8).
	Concurrency int

	Metrics *telemetry.EngineMetrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

// DefaultOptimizerConfig returns the default optimizer configuration.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		Objectives:       DefaultObjectiveConfig(),
		Weights:          DefaultWeightConfig(),
		PaceThreshold:    100,
		AsthmaPaceFactor: 0.6,
		COPDPaceFactor:   0.5,
		EasyPaceRatio:    0.7,
		Concurrency:      8,
	}
}

// Optimizer picks the best candidate route for a runner.
type Optimizer struct {
	cfg     OptimizerConfig
	metrics *telemetry.EngineMetrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewOptimizer creates an optimizer. Zero fields take their defaults.
func NewOptimizer(cfg OptimizerConfig) *Optimizer {
	d := DefaultOptimizerConfig()
	cfg.Objectives = cfg.Objectives.withDefaults()
	if cfg.Weights == (WeightConfig{}) {
		cfg.Weights = d.Weights
	}
	if cfg.PaceThreshold == 0 {
		cfg.PaceThreshold = d.PaceThreshold
	}
	if cfg.AsthmaPaceFactor == 0 {
		cfg.AsthmaPaceFactor = d.AsthmaPaceFactor
	}
	if cfg.COPDPaceFactor == 0 {
		cfg.COPDPaceFactor = d.COPDPaceFactor
	}
	if cfg.EasyPaceRatio == 0 {
		cfg.EasyPaceRatio = d.EasyPaceRatio
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = d.Concurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Optimizer{
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     now,
	}
}

// Weights returns the personalised preference weights.
func (o *Optimizer) Weights(profile health.UserProfile, prefs health.RunningPreferences) Weights {
	return o.cfg.Weights.WeightsFor(profile, prefs)
}

// Objectives computes the objective vector of one candidate.
func (o *Optimizer) Objectives(field Field, c Candidate, profile health.UserProfile, prefs health.RunningPreferences) Objectives {
	return CalculateObjectives(field, c, profile, prefs, o.cfg.Objectives)
}

// Optimize validates the candidates, evaluates them against the field,
// keeps the Pareto front and returns a recommendation for the best
// front member by personal preference. Invalid candidates are logged and
// skipped; ErrNoCandidates is returned when none remain.
func (o *Optimizer) Optimize(ctx context.Context, field Field, candidates []Candidate, profile health.UserProfile, prefs health.RunningPreferences) (*Recommendation, error) {
	valid := make([]Candidate, 0, len(candidates))
	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			o.logger.Warn().Err(err).
				Int("index", i).
				Str("candidate_id", c.ID).
				Msg("rejecting candidate route")
			continue
		}
		valid = append(valid, c)
	}
	rejected := len(candidates) - len(valid)
	if len(valid) == 0 {
		o.metrics.RecordOptimization(ctx, 0, rejected, 0)
		return nil, ErrNoCandidates
	}

	objs := make([]Objectives, len(valid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i := range valid {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			objs[i] = o.Objectives(field, valid[i], profile, prefs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frontIdx := ParetoFront(objs)
	front := make([]Objectives, len(frontIdx))
	for k, i := range frontIdx {
		front[k] = objs[i]
	}

	weights := o.Weights(profile, prefs)
	best, score, err := RankByPreference(front, weights)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordOptimization(ctx, len(valid), rejected, len(front))

	chosen := valid[frontIdx[best]]
	rec := o.CreateRecommendation(field, chosen, objs[frontIdx[best]], profile)
	rec.Score = score
	rec.Evaluated = len(valid)
	rec.Rejected = rejected
	for k, i := range frontIdx {
		if k == best {
			continue
		}
		rec.Alternatives = append(rec.Alternatives, Alternative{
			CandidateID: valid[i].ID,
			Score:       weights.Score(objs[i]),
			DistanceM:   valid[i].DistanceM,
			Objectives:  objs[i],
		})
	}

	o.logger.Debug().
		Int("candidates", len(valid)).
		Int("rejected", rejected).
		Int("front", len(front)).
		Str("candidate_id", chosen.ID).
		Float64("score", score).
		Msg("route optimized")

	return rec, nil
}

// Unranked builds the recommendation for a single fallback candidate without
// comparing it to anything. Score and Evaluated stay zero.
func (o *Optimizer) Unranked(field Field, c Candidate, profile health.UserProfile, prefs health.RunningPreferences) *Recommendation {
	return o.CreateRecommendation(field, c, o.Objectives(field, c, profile, prefs), profile)
}

// PaceThreshold returns the AQI above which a runner should walk.
func (o *Optimizer) PaceThreshold(profile health.UserProfile) float64 {
	factor := 1.0
	if profile.HasAsthma() {
		factor = math.Min(factor, o.cfg.AsthmaPaceFactor)
	}
	if profile.HasCOPD() {
		factor = math.Min(factor, o.cfg.COPDPaceFactor)
	}
	return o.cfg.PaceThreshold * factor
}

// CreateRecommendation builds the recommendation for a chosen candidate.
// Segment pollution is read at each segment's start point.
func (o *Optimizer) CreateRecommendation(field Field, c Candidate, objs Objectives, profile health.UserProfile) *Recommendation {
	threshold := o.PaceThreshold(profile)

	segments := make([]Segment, 0, len(c.Waypoints)-1)
	maxAQI := 0.0
	for i := 0; i+1 < len(c.Waypoints); i++ {
		start, end := c.Waypoints[i], c.Waypoints[i+1]
		var aqi, pm25 float64
		if field != nil {
			aqi = field.Query(airquality.PollutantAQI, start)
			pm25 = field.Query(airquality.PollutantPM25, start)
		}
		maxAQI = math.Max(maxAQI, aqi)

		elevation := 0.0
		if len(c.Elevations) == len(c.Waypoints) {
			elevation = c.Elevations[i+1] - c.Elevations[i]
		}

		segments = append(segments, Segment{
			Start:           start,
			End:             end,
			DistanceM:       geo.Distance(start, end),
			AQI:             aqi,
			PM25:            pm25,
			RecommendedPace: o.pace(aqi, threshold),
			SurfaceType:     "unknown",
			ElevationChange: elevation,
		})
	}

	polyline := c.Polyline
	if polyline == "" {
		polyline = geo.EncodePolyline(c.Waypoints)
	}

	return &Recommendation{
		ID:            uuid.NewString(),
		CandidateID:   c.ID,
		Geometry:      c.Waypoints,
		Polyline:      polyline,
		Segments:      segments,
		DistanceM:     c.DistanceM,
		DurationS:     c.DurationS,
		AvgAQI:        objs.Exposure / o.cfg.Objectives.VentilationFactor,
		MaxAQI:        maxAQI,
		ExposureScore: objs.Exposure,
		GreenCoverage: c.GreenCoverage,
		SafetyScore:   c.Safety(),
		Objectives:    objs,
		GeneratedAt:   o.now().UTC(),
	}
}

func (o *Optimizer) pace(aqi, threshold float64) Pace {
	switch {
	case aqi > threshold:
		return PaceWalk
	case aqi > threshold*o.cfg.EasyPaceRatio:
		return PaceEasy
	default:
		return PaceModerate
	}
}
