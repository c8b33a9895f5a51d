package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/marketsage/journey-engine/internal/service/analytics"
	"github.com/marketsage/journey-engine/internal/service/journey"
	"github.com/marketsage/journey-engine/internal/service/metrics"
	"github.com/marketsage/journey-engine/internal/service/progression"
)

var validate = validator.New()

// Handlers bundles the service dependencies behind the HTTP surface.
type Handlers struct {
	journeys     *journey.Service
	progressions *progression.Service
	analytics    *analytics.Service
	metrics      *metrics.Service
	started      time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(
	journeys *journey.Service,
	progressions *progression.Service,
	analyticsSvc *analytics.Service,
	metricsSvc *metrics.Service,
) *Handlers {
	return &Handlers{
		journeys:     journeys,
		progressions: progressions,
		analytics:    analyticsSvc,
		metrics:      metricsSvc,
		started:      time.Now().UTC(),
	}
}

// HealthCheck reports liveness and uptime.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}
