package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metricSet struct {
	notificationsPersisted *prometheus.CounterVec
	persistenceFailures    *prometheus.CounterVec
	retentionPurged        prometheus.Counter
	apiLatency             *prometheus.HistogramVec
	realtimeConnections    *prometheus.GaugeVec
	realtimeSends          *prometheus.CounterVec
	realtimeDropped        prometheus.Counter
	emailDispatch          *prometheus.CounterVec
	rateLimited            *prometheus.CounterVec
	maintenanceRuns        *prometheus.CounterVec
	maintenanceDuration    *prometheus.HistogramVec
	maintenanceLastRun     *prometheus.GaugeVec
}

// newMetricSet creates every service metric on registry.
func newMetricSet(registry prometheus.Registerer, namespace string) *metricSet {
	factory := promauto.With(registry)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: prometheus.DefBuckets}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	return &metricSet{
		notificationsPersisted: counter("notifications_persisted_total", "Notification records persisted, by type", "type"),
		persistenceFailures:    counter("notification_persistence_failures_total", "Fan-outs aborted or partially failed by a store error, by type", "type"),
		retentionPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_purged_total", Help: "Read notifications removed by the retention sweep",
		}),
		apiLatency:          histogram("api_latency_seconds", "API latency by route template", "method", "route", "status"),
		realtimeConnections: gauge("realtime_connections", "Open realtime websocket connections", "auth"),
		realtimeSends:       counter("realtime_sends_total", "Room sends by event and outcome", "event", "result"),
		realtimeDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "realtime_dropped_total", Help: "Messages dropped because a connection buffer or the relay outbox was full",
		}),
		emailDispatch:       counter("notification_emails_total", "Notification email attempts by result", "result"),
		rateLimited:         counter("rate_limited_requests_total", "Requests rejected by the rate limiter", "path"),
		maintenanceRuns:     counter("maintenance_runs_total", "Maintenance job executions", "job", "result"),
		maintenanceDuration: histogram("maintenance_duration_seconds", "Maintenance job duration", "job"),
		maintenanceLastRun:  gauge("maintenance_last_success_timestamp", "Unix time of the last successful maintenance run", "job"),
	}
}

func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer != nil {
		observer.Observe(max(d, 0).Seconds())
	}
}
