package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/api/models"
	"github.com/breatheroute/runcoach/internal/api/response"
	"github.com/breatheroute/runcoach/internal/health"
)

// Exposure budget window bounds, in days.
const (
	DefaultBudgetWindowDays = 7
	MaxBudgetWindowDays     = 30
)

// HealthHandler handles health risk and exposure endpoints.
type HealthHandler struct {
	risk   *health.Model
	fields *airquality.Service
	logger zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler. fields may be nil, in which
// case assessments without an explicit AQI use the default.
func NewHealthHandler(risk *health.Model, fields *airquality.Service, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{risk: risk, fields: fields, logger: logger}
}

// Assessment handles POST /v1/health/assessment - personal thresholds, the
// current risk level, the exposure budget and activity advice.
func (h *HealthHandler) Assessment(w http.ResponseWriter, r *http.Request) {
	var input models.AssessmentRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	errs := input.Validate()
	profile := input.UserProfile.Profile(GetUserID(r.Context()))
	if profile.UserID == "" {
		errs = append(errs, models.FieldError{Field: "user_profile.user_id", Message: "required", Code: "REQUIRED"})
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}
	activity, _ := input.Activity()

	resp := models.AssessmentResponse{CurrentAQI: models.DefaultCurrentAQI, AQISource: models.AQISourceDefault}
	switch {
	case input.CurrentAQI != nil:
		resp.CurrentAQI, resp.AQISource = *input.CurrentAQI, models.AQISourceRequest
	case input.Location != nil && h.fields != nil:
		snap, region, err := h.fields.SnapshotFor(r.Context(), input.Location.Geo())
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if s, ok := snap.Lookup(airquality.PollutantAQI, input.Location.Geo()); ok {
			resp.CurrentAQI, resp.AQISource, resp.Region = s.Value, models.AQISourceField, region
		}
	}

	assessment, err := h.risk.Assess(r.Context(), profile, activity, resp.CurrentAQI, input.ForecastAQI)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.Assessment = assessment

	w.Header().Set("Cache-Control", "private, no-store")
	response.JSON(w, r, http.StatusOK, resp)
}

// RecordExposure handles POST /v1/me/exposure - add a run's exposure score to
// the caller's history and return the updated budget.
func (h *HealthHandler) RecordExposure(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	var input models.RecordExposureRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}

	var date time.Time
	if input.Date != nil {
		date = *input.Date
	}
	if err := h.risk.UpdateExposureHistory(r.Context(), userID, input.ExposureScore, date); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("route_id", input.RouteID).
		Float64("exposure_score", input.ExposureScore).
		Msg("exposure recorded")

	resp, err := h.budget(r, health.NewUserProfile(userID), DefaultBudgetWindowDays)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Created(w, r, "/v1/me/exposure/budget", resp)
}

// ExposureBudget handles GET /v1/me/exposure/budget?window_days= - the
// caller's rolling budget. The profile used for the limits is read from
// conditions, age_group and fitness_level query parameters.
func (h *HealthHandler) ExposureBudget(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	windowDays := DefaultBudgetWindowDays
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxBudgetWindowDays {
			response.BadRequest(w, r, "validation failed", []models.FieldError{
				{Field: "window_days", Message: "must be between 1 and " + strconv.Itoa(MaxBudgetWindowDays), Code: "OUT_OF_RANGE"},
			})
			return
		}
		windowDays = n
	}

	resp, err := h.budget(r, profileFromQuery(r, userID), windowDays)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "private, no-store")
	response.JSON(w, r, http.StatusOK, resp)
}

func (h *HealthHandler) budget(r *http.Request, profile health.UserProfile, windowDays int) (models.ExposureBudgetResponse, error) {
	budget, err := h.risk.ExposureBudget(r.Context(), profile, windowDays)
	if err != nil {
		return models.ExposureBudgetResponse{}, err
	}
	since := time.Now().UTC().AddDate(0, 0, -(windowDays - 1))
	history, err := h.risk.ExposureHistory(r.Context(), profile.UserID, since)
	if err != nil {
		return models.ExposureBudgetResponse{}, err
	}
	if history == nil {
		history = []health.ExposureEntry{}
	}
	return models.ExposureBudgetResponse{
		UserID:     profile.UserID,
		WindowDays: windowDays,
		Budget:     budget,
		History:    history,
	}, nil
}
