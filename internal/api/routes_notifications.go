package api

import (
	"github.com/gin-gonic/gin"

	"github.com/roadwatch/roadwatch/internal/handlers"
	"github.com/roadwatch/roadwatch/internal/middleware"
	"github.com/roadwatch/roadwatch/internal/models"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler, broadcastLimit gin.HandlerFunc) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.PUT("/read-all", handler.MarkAllRead)
		group.PUT("/:id/read", handler.MarkRead)
		group.DELETE("/:id", handler.Delete)
		group.DELETE("", handler.DeleteAll)

		group.POST("/broadcast", middleware.RequireRole(models.RoleAdmin), broadcastLimit, handler.Broadcast)
		group.GET("/stats", middleware.RequireRole(models.RoleAdmin, models.RoleStaff), handler.Stats)
	}
}
