package api

import (
	"github.com/gin-gonic/gin"

	"github.com/roadwatch/roadwatch/internal/handlers"
	"github.com/roadwatch/roadwatch/internal/middleware"
	"github.com/roadwatch/roadwatch/internal/models"
)

func registerMonitoringRoutes(api *gin.RouterGroup, handler *handlers.MonitoringHandler) {
	if api == nil || handler == nil {
		return
	}

	group := api.Group("/monitoring")
	group.GET("/summary", middleware.RequireRole(models.RoleAdmin), handler.Summary)
}
