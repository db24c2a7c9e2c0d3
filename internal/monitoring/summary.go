package monitoring

import "time"

// Summary surfaces aggregated monitoring data for the health endpoint.
type Summary struct {
	GeneratedAt   time.Time           `json:"generated_at"`
	Notifications NotificationSummary `json:"notifications"`
	Realtime      RealtimeSummary     `json:"realtime"`
	Email         EmailSummary        `json:"email"`
	Maintenance   MaintenanceSummary  `json:"maintenance"`
}

type NotificationSummary struct {
	Persisted uint64 `json:"persisted"`
	Failures  uint64 `json:"failures"`
	Purged    uint64 `json:"purged"`
	LastPurge int64  `json:"last_purge"`
}

type FailureRecord struct {
	Room     string    `json:"room"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred_at"`
}

type RealtimeSummary struct {
	ActiveConnections int64          `json:"active_connections"`
	Delivered         uint64         `json:"delivered"`
	Skipped           uint64         `json:"skipped"`
	Failures          uint64         `json:"failures"`
	LastFailure       *FailureRecord `json:"last_failure,omitempty"`
}

type EmailSummary struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastMessage         string        `json:"last_message,omitempty"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := CurrentModule(); module != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
