package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryRateStoreRefills(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemoryRateStore(clock.Now)

	for i := 0; i < 2; i++ {
		decision, err := store.Take(context.Background(), "k", 2, time.Second)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := store.Take(context.Background(), "k", 2, time.Second)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Zero(t, decision.Remaining)
	require.Greater(t, decision.ResetIn, time.Duration(0))

	other, err := store.Take(context.Background(), "other", 2, time.Second)
	require.NoError(t, err)
	require.True(t, other.Allowed)

	clock.Advance(600 * time.Millisecond)
	decision, err = store.Take(context.Background(), "k", 2, time.Second)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(NewMemoryRateStore(), 2, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("Retry-After"))
	require.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

type stubCache struct {
	count int64
	err   error
}

func (s *stubCache) IncrementWithTTL(context.Context, string, time.Duration) (int64, time.Duration, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	s.count++
	return s.count, 30 * time.Second, nil
}

func TestCacheRateStore(t *testing.T) {
	store := NewCacheRateStore(&stubCache{})

	first, err := store.Take(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, first.Allowed)
	require.Zero(t, first.Remaining)

	second, err := store.Take(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, second.Allowed)
	require.Equal(t, 30*time.Second, second.ResetIn)

	require.Nil(t, NewCacheRateStore(nil))
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(NewCacheRateStore(&stubCache{err: errors.New("redis down")}), 1, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}
