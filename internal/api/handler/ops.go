// Package handler provides HTTP handlers for the Run Coach API.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/api/models"
	"github.com/breatheroute/runcoach/internal/api/response"
	"github.com/breatheroute/runcoach/internal/provider/resilience"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	providers *resilience.Registry
	fields    *airquality.Service
	checks    map[string]ReadinessCheck
	refresh   func() map[string]any
}

// OpsConfig holds the dependencies of the ops endpoints. All fields are optional.
type OpsConfig struct {
	Version   string
	BuildTime string
	Providers *resilience.Registry
	Fields    *airquality.Service
	Checks    map[string]ReadinessCheck

	// RefreshStats reports background refresh counters.
	RefreshStats func() map[string]any
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		providers: cfg.Providers,
		fields:    cfg.Fields,
		checks:    cfg.Checks,
		refresh:   cfg.RefreshStats,
	}
}

// HealthCheck handles GET /v1/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   time.Now().UTC(),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ready. Failing checks return 503; regions
// without a field only degrade the status since requests can still build
// ad-hoc fields.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := models.HealthStatusOK
	details := map[string]any{}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status = models.HealthStatusFail
			details[name] = err.Error()
			continue
		}
		details[name] = "ok"
	}

	if h.fields != nil {
		ready := 0
		regions := h.fields.Status()
		for _, rs := range regions {
			if rs.Field.HasData {
				ready++
			}
		}
		details["regions_ready"] = ready
		details["regions_total"] = len(regions)
		if status == models.HealthStatusOK && ready < len(regions) {
			status = models.HealthStatusDegraded
		}
	}

	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{Status: status, Time: time.Now().UTC(), Details: details})
}

// ProviderStatus handles GET /v1/ops/providers - circuit breaker state of
// every upstream provider and the freshness of each tracked field.
func (h *OpsHandler) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.ProvidersResponse{
		Status:    models.HealthStatusOK,
		Time:      time.Now().UTC(),
		Providers: []models.ProviderStatus{},
		Regions:   []airquality.RegionStatus{},
	}

	if h.providers != nil {
		for _, ph := range h.providers.GetAllHealth() {
			ps := models.ProviderStatus{
				Provider:            ph.Name,
				Status:              providerHealth(ph),
				CircuitState:        ph.CircuitState.String(),
				Requests:            ph.Counts.Requests,
				ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
				LastSuccessAt:       ph.LastSuccessAt,
				LastFailureAt:       ph.LastFailureAt,
				Message:             ph.LastError,
			}
			resp.Providers = append(resp.Providers, ps)
			resp.Status = worse(resp.Status, ps.Status)
		}
	}

	if h.fields != nil {
		resp.Regions = h.fields.Status()
		for _, rs := range resp.Regions {
			if rs.IsStale {
				resp.Status = worse(resp.Status, models.HealthStatusDegraded)
			}
		}
	}

	if h.refresh != nil {
		resp.Refresh = h.refresh()
	}

	response.JSON(w, r, http.StatusOK, resp)
}

func providerHealth(ph *resilience.ProviderHealth) models.HealthStatus {
	switch ph.CircuitState {
	case gobreaker.StateOpen:
		return models.HealthStatusFail
	case gobreaker.StateHalfOpen:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
