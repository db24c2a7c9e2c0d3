package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	notificationsPersisted atomic.Uint64
	persistenceFailures    atomic.Uint64
	retentionPurged        atomic.Uint64
	lastPurged             atomic.Int64

	realtimeConnections atomic.Int64
	realtimeDelivered   atomic.Uint64
	realtimeSkipped     atomic.Uint64
	realtimeFailures    atomic.Uint64
	realtimeLastFailure atomic.Value // *FailureRecord

	emailSent    atomic.Uint64
	emailFailed  atomic.Uint64
	emailDropped atomic.Uint64

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	store := &statStore{}
	store.realtimeLastFailure.Store((*FailureRecord)(nil))
	return store
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(_, value any) bool {
		summaries = append(summaries, value.(*maintenanceStats).snapshot())
		return true
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Job < summaries[j].Job })
	return summaries
}

func (s *statStore) summary() Summary {
	lastFailure, _ := s.realtimeLastFailure.Load().(*FailureRecord)

	return Summary{
		GeneratedAt: time.Now(),
		Notifications: NotificationSummary{
			Persisted: s.notificationsPersisted.Load(),
			Failures:  s.persistenceFailures.Load(),
			Purged:    s.retentionPurged.Load(),
			LastPurge: s.lastPurged.Load(),
		},
		Realtime: RealtimeSummary{
			ActiveConnections: s.realtimeConnections.Load(),
			Delivered:         s.realtimeDelivered.Load(),
			Skipped:           s.realtimeSkipped.Load(),
			Failures:          s.realtimeFailures.Load(),
			LastFailure:       lastFailure,
		},
		Email: EmailSummary{
			Sent:    s.emailSent.Load(),
			Failed:  s.emailFailed.Load(),
			Dropped: s.emailDropped.Load(),
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) recordRealtimeConnection(delta int64) {
	newValue := s.realtimeConnections.Add(delta)
	if newValue < 0 {
		s.realtimeConnections.Store(0)
	}
}

func (s *statStore) recordRealtimeSend(result string) {
	if result == SendDelivered {
		s.realtimeDelivered.Add(1)
		return
	}
	s.realtimeSkipped.Add(1)
}

func (s *statStore) recordRealtimeFailure(record FailureRecord) {
	s.realtimeFailures.Add(1)
	cloned := record
	s.realtimeLastFailure.Store(&cloned)
}

func (s *statStore) recordEmail(result string) {
	switch result {
	case EmailSent:
		s.emailSent.Add(1)
	case EmailDropped:
		s.emailDropped.Add(1)
	case EmailFailed:
		s.emailFailed.Add(1)
	}
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	if value, ok := s.maintenance.Load(job); ok {
		return value.(*maintenanceStats)
	}
	actual, _ := s.maintenance.LoadOrStore(job, &maintenanceStats{summary: MaintenanceJobSummary{Job: job}})
	return actual.(*maintenanceStats)
}

type maintenanceStats struct {
	mu      sync.Mutex
	summary MaintenanceJobSummary
}

func (m *maintenanceStats) snapshot() MaintenanceJobSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

func (m *maintenanceStats) record(result, message string, duration time.Duration, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &m.summary
	job.TotalRuns++
	job.LastStatus = result
	job.LastMessage = message
	job.LastRunAt = at
	job.LastDuration = max(duration, 0)
	if result == MaintenanceSuccess {
		job.ConsecutiveFailures = 0
		job.LastSuccessAt = at
		return
	}
	job.ConsecutiveFailures++
}
