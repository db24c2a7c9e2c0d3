package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/roadwatch/internal/app"
	iauth "github.com/roadwatch/roadwatch/internal/auth"
	"github.com/roadwatch/roadwatch/internal/database/testutil"
	"github.com/roadwatch/roadwatch/internal/handlers"
	"github.com/roadwatch/roadwatch/internal/middleware"
	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/internal/monitoring"
	"github.com/roadwatch/roadwatch/internal/realtime"
	"github.com/roadwatch/roadwatch/internal/services"
)

type routerEnv struct {
	router      *gin.Engine
	jwt         *iauth.JWTService
	coordinator *services.Coordinator
	monitoring  *monitoring.Module
}

func newRouterEnv(t *testing.T, mutate func(cfg *app.Config)) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithUsers(
		testutil.NewUser("admin-1", models.RoleAdmin),
		testutil.NewUser("staff-1", models.RoleStaff),
		testutil.NewUser("citizen-1", models.RoleCitizen),
	))

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "roadwatch", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	store, err := services.NewGormStore(db)
	require.NoError(t, err)
	directory, err := services.NewGormUserDirectory(db)
	require.NoError(t, err)

	handle := realtime.NewHandle()
	coordinator, err := services.NewCoordinator(store, directory, handle)
	require.NoError(t, err)
	readState, err := services.NewReadStateService(store, handle)
	require.NoError(t, err)
	stats, err := services.NewStatsService(store, nil)
	require.NoError(t, err)
	notifications, err := handlers.NewNotificationHandler(readState, coordinator, stats)
	require.NoError(t, err)

	module, err := monitoring.NewModule(monitoring.Options{DisableProcessCollector: true})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Health.Enabled = true
	cfg.Monitoring.Prometheus.Enabled = true
	cfg.Monitoring.Prometheus.Endpoint = "/metrics"
	if mutate != nil {
		mutate(cfg)
	}

	gateway := realtime.NewGateway(realtime.WithTokenVerifier(jwtSvc))
	t.Cleanup(gateway.Close)
	handle.Attach(gateway)

	router, err := NewRouter(Dependencies{
		Config:        cfg,
		JWT:           jwtSvc,
		Notifications: notifications,
		Realtime:      handlers.NewRealtimeHandler(gateway),
		Monitoring:    module,
		Gateway:       gateway,
		RateStore:     middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &routerEnv{router: router, jwt: jwtSvc, coordinator: coordinator, monitoring: module}
}

func (e *routerEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := e.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func (e *routerEnv) request(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	require.Error(t, err)
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	env := newRouterEnv(t, nil)

	resp := env.request(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotEmpty(t, resp.Header().Get(middleware.RequestIDHeader))

	resp = env.request(t, http.MethodGet, "/health/live", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.request(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.request(t, http.MethodGet, "/api/notifications", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.request(t, http.MethodGet, "/api/notifications", nil, env.token(t, "citizen-1", models.RoleCitizen))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.request(t, http.MethodPut, "/api/notifications/read-all", nil, env.token(t, "citizen-1", models.RoleCitizen))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.request(t, http.MethodGet, "/api/unknown", nil, "")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRouterRoleGuards(t *testing.T) {
	env := newRouterEnv(t, nil)
	citizen := env.token(t, "citizen-1", models.RoleCitizen)
	staff := env.token(t, "staff-1", models.RoleStaff)
	admin := env.token(t, "admin-1", models.RoleAdmin)

	body := gin.H{"title": "Closure", "message": "Bridge closed"}

	resp := env.request(t, http.MethodPost, "/api/notifications/broadcast", body, citizen)
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.request(t, http.MethodPost, "/api/notifications/broadcast", body, admin)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	env.coordinator.Wait()

	resp = env.request(t, http.MethodGet, "/api/notifications/stats", nil, citizen)
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.request(t, http.MethodGet, "/api/notifications/stats?days=7", nil, staff)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.request(t, http.MethodGet, "/api/monitoring/summary", nil, staff)
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.request(t, http.MethodGet, "/api/monitoring/summary", nil, admin)
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestRouterBroadcastIsRateLimited(t *testing.T) {
	env := newRouterEnv(t, func(cfg *app.Config) {
		cfg.Notifications.Broadcast.Requests = 1
		cfg.Notifications.Broadcast.Window = time.Hour
	})
	admin := env.token(t, "admin-1", models.RoleAdmin)
	body := gin.H{"title": "Closure", "message": "Bridge closed"}

	resp := env.request(t, http.MethodPost, "/api/notifications/broadcast", body, admin)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	env.coordinator.Wait()

	resp = env.request(t, http.MethodPost, "/api/notifications/broadcast", body, admin)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.NotEmpty(t, resp.Header().Get("Retry-After"))
}

func TestRouterHealthDisabled(t *testing.T) {
	env := newRouterEnv(t, func(cfg *app.Config) {
		cfg.Monitoring.Health.Enabled = false
		cfg.Monitoring.Prometheus.Enabled = false
	})

	resp := env.request(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.request(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRouterReadinessOnlyFailsOnCriticalChecks(t *testing.T) {
	env := newRouterEnv(t, nil)
	failing := func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "unreachable"}
	}
	health := env.monitoring.Health()

	health.Register(monitoring.Check{Name: "redis", Run: failing})
	resp := env.request(t, http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var report monitoring.HealthReport
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &report))
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.False(t, report.Success)

	health.Register(monitoring.Check{Name: "database", Critical: true, Run: failing})
	resp = env.request(t, http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &report))
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
}
