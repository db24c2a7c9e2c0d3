package checks

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/roadwatch/roadwatch/internal/monitoring"
)

// Mongo pings the primary backing the document notification store.
func Mongo(db *mongo.Database, timeout time.Duration) monitoring.Check {
	return monitoring.Check{
		Name:     "mongo",
		Scope:    monitoring.Readiness,
		Critical: true,
		Timeout:  timeout,
		Run: func(ctx context.Context) monitoring.ProbeResult {
			start := time.Now()
			if db == nil {
				return down("mongo not configured", start)
			}
			result := monitoring.ResultFromError(db.Client().Ping(ctx, readpref.Primary()), time.Since(start))
			if result.Status == monitoring.StatusUp {
				result.Details = db.Name()
			}
			return result
		},
	}
}
