// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/meridianhq/pulse/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthzHandler handles liveness check requests.
type HealthzHandler struct{}

// NewHealthzHandler creates a new liveness handler.
func NewHealthzHandler() *HealthzHandler {
	return &HealthzHandler{}
}

// HandleHealthz handles GET /healthz requests by serving the Prometheus
// registry. A scrapeable response doubles as the liveness signal.
func (h *HealthzHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
