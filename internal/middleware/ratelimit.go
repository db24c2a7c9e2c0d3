package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roadwatch/roadwatch/internal/monitoring"
	"github.com/roadwatch/roadwatch/pkg/errors"
	"github.com/roadwatch/roadwatch/pkg/logger"
	"github.com/roadwatch/roadwatch/pkg/response"
)

// RateLimit limits requests per (caller, route) within window. Authenticated callers are keyed
// by user id, anonymous ones by client IP. Store failures fail open.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	if store == nil {
		store = NewMemoryRateStore()
	}

	return func(c *gin.Context) {
		if maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		caller := c.GetString(CtxUserIDKey)
		if caller == "" {
			caller = c.ClientIP()
		}

		decision, err := store.Take(c.Request.Context(), caller+"|"+path, maxRequests, window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate store unavailable", zap.String("path", path), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(decision.ResetIn.Round(time.Second).Seconds())))

		if !decision.Allowed {
			monitoring.RecordRateLimited(path)
			c.Header("Retry-After", strconv.Itoa(int(decision.ResetIn.Seconds())+1))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
