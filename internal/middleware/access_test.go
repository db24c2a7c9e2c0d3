package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roadwatch/roadwatch/internal/monitoring"
)

func newAccessRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger("/health/live"), Metrics())
	r.GET("/api/notifications/:id", func(c *gin.Context) {
		c.Set(CtxUserIDKey, "citizen-1")
		c.String(http.StatusOK, c.GetString(CtxRequestIDKey))
	})
	r.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health/broken", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	return r
}

func TestRequestIDPropagatesOrMints(t *testing.T) {
	r := newAccessRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/n1", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "req-42", w.Body.String())
	require.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	for _, inbound := range []string{"", strings.Repeat("x", maxRequestIDLength+1)} {
		req := httptest.NewRequest(http.MethodGet, "/api/notifications/n1", nil)
		req.Header.Set(RequestIDHeader, inbound)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Len(t, w.Header().Get(RequestIDHeader), 36)
	}
}

func TestLoggerWritesRouteTemplatedAccessEntries(t *testing.T) {
	logs := observeHTTPLogs(t)
	r := newAccessRouter()

	for _, target := range []string{"/api/notifications/n1", "/health/live", "/health/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 3)

	byRoute := map[string]zapcore.Level{}
	for _, entry := range entries {
		byRoute[entry.ContextMap()["route"].(string)] = entry.Level
	}
	require.Equal(t, map[string]zapcore.Level{
		"/api/notifications/:id": zapcore.InfoLevel,
		"/health/live":           zapcore.DebugLevel,
		"/health/broken":         zapcore.ErrorLevel,
	}, byRoute)

	first := entries[0].ContextMap()
	require.Equal(t, "/api/notifications/n1", first["path"])
	require.Equal(t, "citizen-1", first["user_id"])
	require.NotEmpty(t, first["request_id"])
}

func TestMetricsObserveRouteTemplate(t *testing.T) {
	module, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(module)

	r := newAccessRouter()
	for _, id := range []string{"n1", "n2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/notifications/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	families, err := module.Registry().Gather()
	require.NoError(t, err)

	samples := map[string]uint64{}
	for _, family := range families {
		if family.GetName() != "roadwatch_api_latency_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "route" {
					samples[label.GetValue()] += metric.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	require.Equal(t, map[string]uint64{"api/notifications/:id": 2, "unmatched": 1}, samples)
}
