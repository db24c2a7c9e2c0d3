package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roadwatch/roadwatch/internal/app"
	"github.com/roadwatch/roadwatch/internal/handlers"
	"github.com/roadwatch/roadwatch/internal/middleware"
	"github.com/roadwatch/roadwatch/internal/monitoring"
)

const (
	defaultBroadcastRequests = 10
	defaultBroadcastWindow   = time.Minute
)

// Dependencies bundles everything the router mounts.
type Dependencies struct {
	Config        *app.Config
	JWT           middleware.TokenValidator
	Notifications *handlers.NotificationHandler
	Realtime      *handlers.RealtimeHandler
	Monitoring    *monitoring.Module
	Gateway       handlers.ConnectionCounter
	RateStore     middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers the notification routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("token validator must be provided")
	}
	if deps.Notifications == nil {
		return nil, fmt.Errorf("notification handler must be provided")
	}
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}
	cfg := deps.Config

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger("/health", "/health/live", "/health/ready"))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	registerHealthRoutes(r, cfg, deps.Monitoring)
	registerMetricsRoute(r, cfg, deps.Monitoring)

	if deps.Realtime != nil {
		r.GET("/ws", deps.Realtime.Stream)
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	broadcastLimit := cfg.Notifications.Broadcast.Requests
	if broadcastLimit <= 0 {
		broadcastLimit = defaultBroadcastRequests
	}
	broadcastWindow := cfg.Notifications.Broadcast.Window
	if broadcastWindow <= 0 {
		broadcastWindow = defaultBroadcastWindow
	}
	registerNotificationRoutes(api, deps.Notifications, middleware.RateLimit(deps.RateStore, broadcastLimit, broadcastWindow))

	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(deps.Monitoring, cfg, deps.Gateway))

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}

func registerMetricsRoute(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if mon == nil || !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	r.GET(endpoint, gin.WrapH(mon.Handler()))
}
