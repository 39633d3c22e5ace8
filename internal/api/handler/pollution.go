package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/api/models"
	"github.com/breatheroute/runcoach/internal/api/response"
	"github.com/breatheroute/runcoach/internal/health"
)

// Clean zone defaults.
const (
	DefaultCleanZoneThreshold = 50.0
	DefaultCleanZoneMinAreaM2 = 10000.0
)

// PollutionHandler serves views of the pollution fields.
type PollutionHandler struct {
	fields *airquality.Service
	risk   *health.Model
	logger zerolog.Logger
}

// NewPollutionHandler creates a new PollutionHandler.
func NewPollutionHandler(fields *airquality.Service, risk *health.Model, logger zerolog.Logger) *PollutionHandler {
	return &PollutionHandler{fields: fields, risk: risk, logger: logger}
}

// Heatmap handles GET /v1/pollution/heatmap?region=|lat=&lon=&pollutant=.
func (h *PollutionHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	pollutant := airquality.PollutantAQI
	if raw := r.URL.Query().Get("pollutant"); raw != "" {
		p, ok := airquality.ParsePollutant(strings.ToLower(raw))
		if !ok {
			response.BadRequest(w, r, "validation failed", []models.FieldError{
				{Field: "pollutant", Message: "unknown pollutant", Code: "INVALID_ENUM"},
			})
			return
		}
		pollutant = p
	}

	snap, region, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	hm, err := snap.Heatmap(pollutant)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	response.JSON(w, r, http.StatusOK, models.HeatmapResponse{Region: region, Heatmap: hm})
}

// CleanZones handles GET /v1/pollution/clean-zones?region=|lat=&lon=&threshold=&min_area_m2=.
func (h *PollutionHandler) CleanZones(w http.ResponseWriter, r *http.Request) {
	var errs []models.FieldError
	threshold, err := floatParam(r, "threshold", DefaultCleanZoneThreshold, 0)
	if err != nil {
		errs = append(errs, *err)
	}
	minArea, err := floatParam(r, "min_area_m2", DefaultCleanZoneMinAreaM2, 0)
	if err != nil {
		errs = append(errs, *err)
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}

	snap, region, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	if !snap.Has(airquality.PollutantAQI) {
		writeError(w, r, h.logger, airquality.ErrNoData)
		return
	}

	zones := snap.FindCleanZones(threshold, minArea)
	if zones == nil {
		zones = []airquality.CleanZone{}
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	response.JSON(w, r, http.StatusOK, models.CleanZonesResponse{
		Region:    region,
		Threshold: threshold,
		MinAreaM2: minArea,
		Zones:     zones,
		UpdatedAt: snap.Status().UpdatedAt,
	})
}

// Point handles GET /v1/pollution/point?lat=&lon= - every fitted channel at a
// location plus the risk level for an optional profile given by conditions
// (comma separated) and age_group.
func (h *PollutionHandler) Point(w http.ResponseWriter, r *http.Request) {
	at, errs := pointParams(r)
	if at == nil {
		errs = append(errs, models.FieldError{Field: "lat", Message: "required", Code: "REQUIRED"})
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}

	snap, region, err := h.fields.SnapshotFor(r.Context(), at.Geo())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if snap == nil {
		writeError(w, r, h.logger, airquality.ErrNoData)
		return
	}

	samples := make([]airquality.Sample, 0, len(airquality.FieldPollutants))
	for _, p := range airquality.FieldPollutants {
		if s, ok := snap.Lookup(p, at.Geo()); ok {
			samples = append(samples, s)
		}
	}
	aqi, ok := snap.Lookup(airquality.PollutantAQI, at.Geo())
	if !ok {
		writeError(w, r, h.logger, airquality.ErrNoData)
		return
	}

	profile := profileFromQuery(r, GetUserID(r.Context()))
	threshold := h.risk.PersonalThreshold(profile, health.ActivityModerate)

	response.JSON(w, r, http.StatusOK, models.PointResponse{
		Region:    region,
		Location:  *at,
		AQI:       aqi.Value,
		RiskLevel: health.AssessRiskLevel(aqi.Value, threshold),
		Threshold: threshold,
		Samples:   samples,
		UpdatedAt: snap.Status().UpdatedAt,
	})
}

// snapshot resolves the field named by ?region= or covering ?lat=&lon=.
// It writes the error response and returns false on failure.
func (h *PollutionHandler) snapshot(w http.ResponseWriter, r *http.Request) (*airquality.Snapshot, string, bool) {
	if name := r.URL.Query().Get("region"); name != "" {
		snap, err := h.fields.Snapshot(name)
		if err != nil {
			writeError(w, r, h.logger, err)
			return nil, "", false
		}
		if snap == nil {
			writeError(w, r, h.logger, airquality.ErrNoData)
			return nil, "", false
		}
		return snap, name, true
	}

	at, errs := pointParams(r)
	if at == nil && len(errs) == 0 {
		errs = append(errs, models.FieldError{Field: "region", Message: "region or lat and lon are required", Code: "REQUIRED"})
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return nil, "", false
	}

	snap, region, err := h.fields.SnapshotFor(r.Context(), at.Geo())
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, "", false
	}
	if snap == nil {
		writeError(w, r, h.logger, airquality.ErrNoData)
		return nil, "", false
	}
	return snap, region, true
}

// pointParams parses ?lat=&lon=. It returns nil without errors when both
// are absent.
func pointParams(r *http.Request) (*models.Point, []models.FieldError) {
	q := r.URL.Query()
	rawLat, rawLon := q.Get("lat"), q.Get("lon")
	if rawLat == "" && rawLon == "" {
		return nil, nil
	}

	var errs []models.FieldError
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil || !(lat >= -90 && lat <= 90) {
		errs = append(errs, models.FieldError{Field: "lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"})
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil || !(lon >= -180 && lon <= 180) {
		errs = append(errs, models.FieldError{Field: "lon", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return &models.Point{Lat: lat, Lon: lon}, nil
}

// floatParam parses an optional query parameter with a lower bound.
func floatParam(r *http.Request, name string, def, minValue float64) (float64, *models.FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(v >= minValue) {
		return 0, &models.FieldError{Field: name, Message: "must be a number >= " + strconv.FormatFloat(minValue, 'f', -1, 64), Code: "OUT_OF_RANGE"}
	}
	return v, nil
}

// profileFromQuery builds a profile from ?conditions=asthma,copd&age_group=.
func profileFromQuery(r *http.Request, userID string) health.UserProfile {
	q := r.URL.Query()
	in := models.ProfileInput{AgeGroup: q.Get("age_group"), FitnessLevel: q.Get("fitness_level")}
	if raw := q.Get("conditions"); raw != "" {
		in.HealthConditions = strings.Split(raw, ",")
	}
	return in.Profile(userID)
}
