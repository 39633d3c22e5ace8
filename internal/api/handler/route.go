package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/api/models"
	"github.com/breatheroute/runcoach/internal/api/response"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/routing"
	"github.com/breatheroute/runcoach/internal/timing"
)

// MaxGPXBytes bounds GPX uploads.
const MaxGPXBytes = 5 << 20

// Candidate sources reported in route responses.
const (
	candidateSourceClient = "client"
)

// RouteHandler handles route recommendation endpoints.
type RouteHandler struct {
	fields     *airquality.Service
	candidates *routing.Service
	optimizer  *routing.Optimizer
	risk       *health.Model
	timing     *timing.Service
	logger     zerolog.Logger
}

// RouteHandlerConfig holds the dependencies of RouteHandler. Without
// Candidates, requests lacking their own candidates get a synthesized loop.
// Timing is optional; without it responses carry no time windows.
type RouteHandlerConfig struct {
	Fields     *airquality.Service
	Candidates *routing.Service
	Optimizer  *routing.Optimizer
	Risk       *health.Model
	Timing     *timing.Service
	Logger     zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(cfg RouteHandlerConfig) *RouteHandler {
	return &RouteHandler{
		fields:     cfg.Fields,
		candidates: cfg.Candidates,
		optimizer:  cfg.Optimizer,
		risk:       cfg.Risk,
		timing:     cfg.Timing,
		logger:     cfg.Logger,
	}
}

// Recommend handles POST /v1/routes/recommend - pick the best candidate route
// for the runner against the current pollution field.
func (h *RouteHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var input models.RecommendRouteRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}

	ctx := r.Context()
	profile := input.UserProfile.Profile(GetUserID(ctx))
	prefs := input.Preferences.Preferences()
	start := input.Location.Geo()

	snap, region, err := h.fields.SnapshotFor(ctx, start)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if snap == nil {
		writeError(w, r, h.logger, airquality.ErrNoData)
		return
	}

	var warnings []models.Warning
	if !snap.Has(airquality.PollutantPM25) {
		warnings = append(warnings, models.Warning{
			Code:    "PM25_UNAVAILABLE",
			Message: "no PM2.5 readings in region " + region + "; exposure is estimated from AQI alone",
		})
	}

	cands := input.Candidates
	source := candidateSourceClient
	var fallback string
	if len(cands) == 0 {
		if h.candidates == nil {
			fallback = "no candidate provider is configured"
		} else {
			cands, err = h.candidates.Candidates(ctx, routing.CandidateRequest{
				Start:     start,
				DistanceM: prefs.PreferredDistanceM,
				Count:     input.CandidateCount,
				Profile:   routing.ProfileRun,
			})
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				writeError(w, r, h.logger, err)
				return
			case err != nil:
				h.logger.Warn().Err(err).Str("provider", h.candidates.SourceName()).
					Msg("candidate generation failed, serving fallback route")
				fallback = "candidate routes are unavailable"
			case len(cands) == 0:
				fallback = "no candidate routes were generated"
			default:
				source = h.candidates.SourceName()
			}
		}
	}

	var rec *routing.Recommendation
	if fallback == "" {
		rec, err = h.optimizer.Optimize(ctx, snap, cands, profile, prefs)
		switch {
		case errors.Is(err, routing.ErrNoCandidates):
			fallback = "no candidate route passed validation"
		case err != nil:
			writeError(w, r, h.logger, err)
			return
		}
	}
	if fallback != "" {
		fb := routing.FallbackCandidate(cands, start, prefs.PreferredDistanceM)
		rec = h.optimizer.Unranked(snap, fb, profile, prefs)
		rec.Rejected = len(cands)
		source = fb.Source
		warnings = append(warnings, models.Warning{
			Code:    "FALLBACK_ROUTE",
			Message: fallback + "; the route was not ranked against alternatives",
		})
	}
	if rec.Rejected > 0 {
		warnings = append(warnings, models.Warning{
			Code:    "CANDIDATES_REJECTED",
			Message: fmt.Sprintf("%d of %d candidates were invalid and skipped", rec.Rejected, rec.Rejected+rec.Evaluated),
		})
	}

	advice := h.risk.ActivityRecommendations(profile, snap.Query(airquality.PollutantAQI, start), nil)
	resp := models.RecommendRouteResponse{
		Route:                rec,
		Region:               region,
		PersonalThreshold:    h.risk.PersonalThreshold(profile, health.ActivityModerate),
		PaceThreshold:        h.optimizer.PaceThreshold(profile),
		CandidateSource:      source,
		HealthRecommendation: &advice,
	}

	if h.timing != nil {
		plan, err := h.timing.OptimalWindows(ctx, start, profile, timing.Request{
			DurationMin: int(math.Ceil(rec.DurationS / 60)),
		})
		if err != nil {
			h.logger.Warn().Err(err).Msg("time windows unavailable for route")
		} else {
			resp.TimeWindows = plan.Windows
			if len(plan.Windows) == 0 && plan.Degraded {
				warnings = append(warnings, models.Warning{
					Code:    "TIME_WINDOWS_UNAVAILABLE",
					Message: "no air quality forecast to plan a start time against",
				})
			}
		}
	}
	resp.Warnings = warnings

	h.logger.Info().
		Str("region", region).
		Str("candidate_source", source).
		Int("candidates", rec.Evaluated).
		Bool("fallback", fallback != "").
		Float64("exposure_score", rec.ExposureScore).
		Msg("route recommended")

	w.Header().Set("Cache-Control", "private, no-store")
	response.JSON(w, r, http.StatusOK, resp)
}

// ImportGPX handles POST /v1/routes/candidates/gpx - convert an uploaded GPX
// track into a candidate route. Optional query parameters green_coverage and
// safety_score are attached to the candidate.
func (h *RouteHandler) ImportGPX(w http.ResponseWriter, r *http.Request) {
	var opts routing.GPXOptions
	var errs []models.FieldError
	if v, ok, err := unitParam(r, "green_coverage"); err != nil {
		errs = append(errs, *err)
	} else if ok {
		opts.GreenCoverage = v
	}
	if v, ok, err := unitParam(r, "safety_score"); err != nil {
		errs = append(errs, *err)
	} else if ok {
		opts.SafetyScore = &v
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxGPXBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, r, fmt.Sprintf("gpx document exceeds %d bytes", tooLarge.Limit), nil)
			return
		}
		response.BadRequest(w, r, "failed to read request body", nil)
		return
	}
	if len(data) == 0 {
		response.BadRequest(w, r, response.ErrEmptyBody.Error(), nil)
		return
	}

	cand, err := routing.CandidateFromGPX(data, opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.CandidateResponse{Candidate: cand})
}

// unitParam parses an optional query parameter in [0, 1].
func unitParam(r *http.Request, name string) (float64, bool, *models.FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(v >= 0 && v <= 1) {
		return 0, false, &models.FieldError{Field: name, Message: "must be a number between 0 and 1", Code: "OUT_OF_RANGE"}
	}
	return v, true, nil
}
