package monitoring

import (
	"strings"
	"time"
)

// Outcomes recorded for realtime room sends.
const (
	SendDelivered   = "delivered"
	SendDropped     = "dropped"
	SendEmpty       = "empty"
	SendUnavailable = "unavailable"
)

// Outcomes recorded for maintenance jobs.
const (
	MaintenanceSuccess = "success"
	MaintenanceFailure = "failure"
)

// Outcomes recorded for email dispatch.
const (
	EmailSent    = "sent"
	EmailFailed  = "failed"
	EmailDropped = "dropped"
	EmailSkipped = "skipped"
)

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, route, status string, duration time.Duration) {
	module := CurrentModule()
	if module == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	route = sanitizePath(route)
	if route == "" {
		route = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	module.metrics.apiLatency.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordNotificationsPersisted adds count persisted records of the given type.
func RecordNotificationsPersisted(notificationType string, count int) {
	module := CurrentModule()
	if module == nil || count <= 0 {
		return
	}
	module.metrics.notificationsPersisted.WithLabelValues(normalizeLabel(notificationType)).Add(float64(count))
	module.stats.notificationsPersisted.Add(uint64(count))
}

// RecordPersistenceFailure counts a fan-out that hit a store error.
func RecordPersistenceFailure(notificationType string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	module.metrics.persistenceFailures.WithLabelValues(normalizeLabel(notificationType)).Inc()
	module.stats.persistenceFailures.Add(1)
}

// RecordRetentionPurge records the outcome of one retention sweep, including empty ones.
func RecordRetentionPurge(count int64) {
	module := CurrentModule()
	if module == nil || count < 0 {
		return
	}
	module.stats.lastPurged.Store(count)
	if count == 0 {
		return
	}
	module.metrics.retentionPurged.Add(float64(count))
	module.stats.retentionPurged.Add(uint64(count))
}

// RecordRealtimeConnection adjusts the websocket connection gauge. authenticated selects
// the label.
func RecordRealtimeConnection(authenticated bool, delta int64) {
	module := CurrentModule()
	if module == nil {
		return
	}
	if delta == 0 {
		return
	}
	label := "anonymous"
	if authenticated {
		label = "authenticated"
	}
	module.metrics.realtimeConnections.WithLabelValues(label).Add(float64(delta))
	module.stats.recordRealtimeConnection(delta)
}

// RecordRealtimeSend counts a room send by event and outcome.
func RecordRealtimeSend(event, result string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	event = normalizeLabel(event)
	result = normalizeLabel(result)
	module.metrics.realtimeSends.WithLabelValues(event, result).Inc()
	module.stats.recordRealtimeSend(result)
}

// RecordRealtimeDrop snapshots a message dropped for a slow connection.
func RecordRealtimeDrop(room, message string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	room = strings.TrimSpace(room)
	if room == "" {
		room = "unknown"
	}
	module.metrics.realtimeDropped.Inc()
	module.stats.recordRealtimeFailure(FailureRecord{
		Room:     room,
		Type:     "backpressure",
		Message:  strings.TrimSpace(message),
		Occurred: time.Now(),
	})
}

// RecordEmailDispatch counts an email outcome.
func RecordEmailDispatch(result string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	result = normalizeLabel(result)
	module.metrics.emailDispatch.WithLabelValues(result).Inc()
	module.stats.recordEmail(result)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(path string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	module.metrics.rateLimited.WithLabelValues(path).Inc()
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	module := CurrentModule()
	if module == nil {
		return
	}
	now := time.Now()
	jobID := normalizeLabel(job)
	result = normalizeLabel(result)
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == MaintenanceSuccess {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(now.Unix()))
	}
	module.stats.maintenanceEntry(jobID).record(result, strings.TrimSpace(message), duration, now)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func sanitizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "/" {
		return "root"
	}
	path = strings.Trim(path, "/")
	return strings.ReplaceAll(path, " ", "_")
}
