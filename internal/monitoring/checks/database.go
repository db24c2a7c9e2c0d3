package checks

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/internal/monitoring"
)

var errNotificationsTableMissing = errors.New("notifications table missing")

// Database reports the relational notification store ready once the connection answers and
// the notifications table has been migrated.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.Check{
		Name:     "database",
		Scope:    monitoring.Readiness,
		Critical: true,
		Timeout:  timeout,
		Run: func(ctx context.Context) monitoring.ProbeResult {
			start := time.Now()
			if db == nil {
				return down("database not configured", start)
			}

			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err == nil && !db.WithContext(ctx).Migrator().HasTable(&models.Notification{}) {
				err = errNotificationsTableMissing
			}
			return monitoring.ResultFromError(err, time.Since(start))
		},
	}
}

func down(details string, start time.Time) monitoring.ProbeResult {
	return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: details, Duration: time.Since(start)}
}
