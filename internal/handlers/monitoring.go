package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roadwatch/roadwatch/internal/app"
	"github.com/roadwatch/roadwatch/internal/monitoring"
	"github.com/roadwatch/roadwatch/pkg/response"
)

// ConnectionCounter reports live gateway state.
type ConnectionCounter interface {
	ConnectionCount() int
}

// MonitoringHandler surfaces monitoring summaries for administrators.
type MonitoringHandler struct {
	module  *monitoring.Module
	cfg     *app.Config
	gateway ConnectionCounter
}

// NewMonitoringHandler constructs a monitoring handler. Returns nil when monitoring is disabled.
func NewMonitoringHandler(module *monitoring.Module, cfg *app.Config, gateway ConnectionCounter) *MonitoringHandler {
	if module == nil || cfg == nil {
		return nil
	}
	if !cfg.Monitoring.Health.Enabled && !cfg.Monitoring.Prometheus.Enabled {
		return nil
	}
	return &MonitoringHandler{module: module, cfg: cfg, gateway: gateway}
}

// Summary returns aggregated delivery statistics, the readiness report and configuration hints.
func (h *MonitoringHandler) Summary(c *gin.Context) {
	snapshot := monitoring.Snapshot()
	endpoint := strings.TrimSpace(h.cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}

	connections := 0
	if h.gateway != nil {
		connections = h.gateway.ConnectionCount()
	}

	body := gin.H{
		"summary": snapshot,
		"gateway": gin.H{
			"connections": connections,
		},
		"prometheus": gin.H{
			"enabled":  h.cfg.Monitoring.Prometheus.Enabled,
			"endpoint": endpoint,
		},
	}
	if h.cfg.Monitoring.Health.Enabled {
		body["readiness"] = h.module.Health().Readiness(requestContext(c))
	}
	response.Success(c, http.StatusOK, body)
}
