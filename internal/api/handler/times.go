package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/api/models"
	"github.com/breatheroute/runcoach/internal/api/response"
	"github.com/breatheroute/runcoach/internal/timing"
)

// TimesHandler handles run timing endpoints.
type TimesHandler struct {
	timing *timing.Service
	logger zerolog.Logger
}

// NewTimesHandler creates a new TimesHandler.
func NewTimesHandler(svc *timing.Service, logger zerolog.Logger) *TimesHandler {
	return &TimesHandler{timing: svc, logger: logger}
}

// Optimal handles POST /v1/times/optimal - the best windows to run within the
// lookahead period.
func (h *TimesHandler) Optimal(w http.ResponseWriter, r *http.Request) {
	var input models.OptimalTimesRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}

	profile := input.UserProfile.Profile(GetUserID(r.Context()))
	plan, err := h.timing.OptimalWindows(r.Context(), input.Location.Geo(), profile, input.TimingRequest())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if plan.Windows == nil {
		plan.Windows = []timing.TimeWindow{}
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	response.JSON(w, r, http.StatusOK, plan)
}

// Weekly handles POST /v1/times/weekly - spread runs over the next seven days.
func (h *TimesHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	var input models.WeeklyScheduleRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}

	profile := input.UserProfile.Profile(GetUserID(r.Context()))
	schedule, err := h.timing.WeeklySchedule(r.Context(), input.Location.Geo(), profile, input.RunsPerWeek, models.Location(input.TimeZone))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=900")
	response.JSON(w, r, http.StatusOK, schedule)
}
