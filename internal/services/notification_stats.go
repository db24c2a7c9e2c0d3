package services

import (
	"context"
	"errors"
	"time"
)

// Stats window bounds in days.
const (
	DefaultStatsDays = 30
	MaxStatsDays     = 365
)

// StatsService reports system-wide notification activity for administrators.
type StatsService struct {
	store Store
	now   func() time.Time
}

// NewStatsService constructs a StatsService.
func NewStatsService(store Store, now func() time.Time) (*StatsService, error) {
	if store == nil {
		return nil, errors.New("stats service: store is required")
	}
	if now == nil {
		now = time.Now
	}
	return &StatsService{store: store, now: now}, nil
}

// Summary aggregates notifications created within the last days days.
func (s *StatsService) Summary(ctx context.Context, days int) (*Stats, error) {
	if days <= 0 {
		days = DefaultStatsDays
	}
	if days > MaxStatsDays {
		days = MaxStatsDays
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	return s.store.Stats(ensureContext(ctx), since)
}
