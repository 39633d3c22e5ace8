package models

import (
	"time"

	"github.com/breatheroute/runcoach/internal/airquality"
)

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    time.Time      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// ProviderStatus represents the status of an external provider.
type ProviderStatus struct {
	Provider            string       `json:"provider"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuit_state"`
	Requests            uint32       `json:"requests"`
	ConsecutiveFailures uint32       `json:"consecutive_failures"`
	LastSuccessAt       *time.Time   `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time   `json:"last_failure_at,omitempty"`
	Message             string       `json:"message,omitempty"`
}

// ProvidersResponse is the response of GET /v1/ops/providers.
type ProvidersResponse struct {
	Status    HealthStatus              `json:"status"`
	Time      time.Time                 `json:"time"`
	Providers []ProviderStatus          `json:"providers"`
	Regions   []airquality.RegionStatus `json:"regions"`
	Refresh   map[string]any            `json:"refresh,omitempty"`
}
