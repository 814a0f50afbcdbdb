// Package handler provides HTTP handlers for the isopleth preview API.
package handler

import (
	"net/http"
	"time"

	"github.com/isopleth/isopleth/internal/api/models"
	"github.com/isopleth/isopleth/internal/api/response"
	"github.com/isopleth/isopleth/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. The registry may be nil, in which
// case no providers are reported.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The server is not ready while
// any provider circuit is open.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	var down []string
	for _, p := range h.providers() {
		if p.IsUnhealthy() {
			down = append(down, p.Name)
		}
	}
	if len(down) > 0 {
		health.Status = models.HealthStatusFail
		health.Details = map[string]interface{}{"unavailableProviders": down}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}

	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider status from the
// resilience registry.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Version:   h.version,
		Providers: []models.ProviderStatus{},
	}

	for _, p := range h.providers() {
		ps := models.ProviderStatus{
			Provider:            p.Name,
			Status:              healthStatus(p.Status()),
			CircuitState:        p.CircuitState.String(),
			ConsecutiveFailures: p.Counts.ConsecutiveFailures,
			LastSuccessAt:       models.TimestampPtr(p.LastSuccessAt),
			LastFailureAt:       models.TimestampPtr(p.LastFailureAt),
		}
		if p.LastError != "" {
			msg := p.LastError
			ps.Message = &msg
		}
		status.Providers = append(status.Providers, ps)
		status.Status = worse(status.Status, ps.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) providers() []*resilience.ProviderHealth {
	if h.registry == nil {
		return nil
	}
	return h.registry.GetAllHealth()
}

func healthStatus(s string) models.HealthStatus {
	switch s {
	case "down":
		return models.HealthStatusFail
	case "degraded":
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
