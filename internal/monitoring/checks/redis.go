package checks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roadwatch/roadwatch/internal/monitoring"
)

// Redis pings the connection shared by the rate limiter and the realtime relay. Losing it
// costs cross-instance fan-out only, so the check never takes readiness down.
func Redis(client redis.UniversalClient, timeout time.Duration) monitoring.Check {
	return monitoring.Check{
		Name:    "redis",
		Scope:   monitoring.Readiness,
		Timeout: timeout,
		Run: func(ctx context.Context) monitoring.ProbeResult {
			start := time.Now()
			if client == nil {
				return down("redis unavailable", start)
			}
			return monitoring.ResultFromError(client.Ping(ctx).Err(), time.Since(start))
		},
	}
}
