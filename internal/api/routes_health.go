package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roadwatch/roadwatch/internal/app"
	"github.com/roadwatch/roadwatch/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if cfg == nil {
		return
	}

	if !cfg.Monitoring.Health.Enabled || mon == nil || mon.Health() == nil {
		r.GET("/health", disabledHealthHandler)
		r.GET("/health/live", disabledHealthHandler)
		r.GET("/health/ready", disabledHealthHandler)
		return
	}

	health := mon.Health()

	r.GET("/health", func(c *gin.Context) {
		report := health.Readiness(c.Request.Context())
		c.JSON(reportStatusCode(report), gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checked_at": report.CheckedAt,
		})
	})

	r.GET("/health/live", func(c *gin.Context) {
		writeHealthReport(c, health.Liveness(c.Request.Context()))
	})

	r.GET("/health/ready", func(c *gin.Context) {
		writeHealthReport(c, health.Readiness(c.Request.Context()))
	})
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}

func writeHealthReport(c *gin.Context, report monitoring.HealthReport) {
	c.JSON(reportStatusCode(report), report)
}

// reportStatusCode keeps a degraded service in rotation; only a failing critical check
// answers 503.
func reportStatusCode(report monitoring.HealthReport) int {
	if report.Status == monitoring.StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
