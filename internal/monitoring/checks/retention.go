package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/roadwatch/roadwatch/internal/app/maintenance"
	"github.com/roadwatch/roadwatch/internal/monitoring"
)

// Retention watches the read-notification sweeper. A failing last run marks it down and a
// sweeper without a success inside staleAfter marks it degraded; both surface as degraded
// readiness since unread notifications are unaffected. Details carry the purge counts.
func Retention(staleAfter time.Duration) monitoring.Check {
	return monitoring.Check{
		Name:  "retention",
		Scope: monitoring.Readiness,
		Run: func(context.Context) monitoring.ProbeResult {
			start := time.Now()
			summary := monitoring.Snapshot()

			job, ok := findJob(summary.Maintenance.Jobs, maintenance.JobRetention)
			if !ok {
				return monitoring.ProbeResult{
					Status:   monitoring.StatusUp,
					Details:  "awaiting first sweep",
					Duration: time.Since(start),
				}
			}

			result := monitoring.ProbeResult{
				Status: monitoring.StatusUp,
				Details: fmt.Sprintf("last purge %d, total purged %d",
					summary.Notifications.LastPurge, summary.Notifications.Purged),
			}
			switch {
			case job.ConsecutiveFailures > 0:
				result.Status = monitoring.StatusDown
				result.Details = fmt.Sprintf("%d consecutive failures: %s; %s",
					job.ConsecutiveFailures, job.LastMessage, result.Details)
			case staleAfter > 0 && start.Sub(job.LastSuccessAt) > staleAfter:
				result.Status = monitoring.StatusDegraded
				result.Details = fmt.Sprintf("no sweep since %s; %s",
					job.LastSuccessAt.UTC().Format(time.RFC3339), result.Details)
			}
			result.Duration = time.Since(start)
			return result
		},
	}
}

func findJob(jobs []monitoring.MaintenanceJobSummary, name string) (monitoring.MaintenanceJobSummary, bool) {
	for _, job := range jobs {
		if job.Job == name {
			return job, true
		}
	}
	return monitoring.MaintenanceJobSummary{}, false
}
