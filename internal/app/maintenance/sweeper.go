package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/roadwatch/roadwatch/internal/monitoring"
	"github.com/roadwatch/roadwatch/pkg/logger"
)

const (
	// JobRetention is the job identifier reported to monitoring.
	JobRetention = "notification_retention"

	defaultRetentionDays = 30
	defaultSweepSpec     = "@daily"
	missedSweepsAllowed  = 2
)

// Purger deletes read notifications created before the cutoff.
type Purger interface {
	PurgeRead(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sweeper periodically removes read notifications past the retention window. Unread
// notifications are never touched.
type Sweeper struct {
	store     Purger
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention time.Duration
	schedule  string

	mu      sync.Mutex
	started bool
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used to compute the retention cutoff.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetentionDays adjusts how long read notifications are kept.
func WithRetentionDays(days int) Option {
	return func(s *Sweeper) {
		if days > 0 {
			s.retention = time.Duration(days) * 24 * time.Hour
		}
	}
}

// WithSchedule overrides the cron specification for the sweep.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper with the default daily schedule and 30 day retention.
func NewSweeper(store Purger, opts ...Option) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("sweeper: store is required")
	}

	s := &Sweeper{
		store:     store,
		now:       time.Now,
		retention: defaultRetentionDays * 24 * time.Hour,
		schedule:  defaultSweepSpec,
		log:       logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s, nil
}

// Start registers the sweep with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("notification retention sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("sweeper: schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.started = true
	s.log.Info("notification retention sweeper started",
		zap.String("schedule", s.schedule),
		zap.Duration("retention", s.retention),
	)
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (s *Sweeper) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.started = false
	return s.cron.Stop()
}

// Cutoff returns the creation time before which read notifications are purged.
func (s *Sweeper) Cutoff() time.Time {
	return s.now().UTC().Add(-s.retention)
}

// StaleAfter is how long the retention job may go without a run before it is considered
// stalled: two scheduled intervals. An unparsable schedule falls back to two days.
func (s *Sweeper) StaleAfter() time.Duration {
	schedule, err := cron.ParseStandard(s.schedule)
	if err != nil {
		return missedSweepsAllowed * 24 * time.Hour
	}
	first := schedule.Next(s.now())
	return missedSweepsAllowed * schedule.Next(first).Sub(first)
}

// RunOnce performs a single sweep and returns the number of purged notifications.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	cutoff := s.Cutoff()
	purged, err := s.store.PurgeRead(ctx, cutoff)
	elapsed := time.Since(started)

	if err != nil {
		monitoring.RecordMaintenanceRun(JobRetention, monitoring.MaintenanceFailure, err.Error(), elapsed)
		return 0, fmt.Errorf("sweeper: purge read notifications: %w", err)
	}

	monitoring.RecordRetentionPurge(purged)
	monitoring.RecordMaintenanceRun(JobRetention, monitoring.MaintenanceSuccess, fmt.Sprintf("purged %d", purged), elapsed)
	if purged > 0 {
		s.log.Info("purged read notifications",
			zap.Int64("count", purged),
			zap.Time("cutoff", cutoff),
		)
	}
	return purged, nil
}
