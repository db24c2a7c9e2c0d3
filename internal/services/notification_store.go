package services

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/roadwatch/roadwatch/internal/models"
)

// Paging defaults for List.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ListOptions filters and pages a recipient's notifications.
type ListOptions struct {
	UnreadOnly bool
	Page       int
	Limit      int
}

func (o ListOptions) normalise() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit <= 0 {
		o.Limit = DefaultPageLimit
	}
	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}
	return o
}

func (o ListOptions) offset() int {
	return (o.Page - 1) * o.Limit
}

// ListResult is one page of notifications. Total counts matches for the filter, UnreadCount
// counts every unexpired unread record regardless of the filter.
type ListResult struct {
	Items       []models.Notification
	Total       int64
	UnreadCount int64
	Page        int
	Limit       int
}

// Pages reports how many pages Total spans.
func (r *ListResult) Pages() int {
	if r == nil || r.Limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(r.Total) / float64(r.Limit)))
}

// Store persists notification records. Implementations exclude expired records from reads.
type Store interface {
	// Create inserts each record independently and returns how many succeeded. Any failure
	// yields a single aggregate ErrPersistence error.
	Create(ctx context.Context, records []*models.Notification) (int, error)
	List(ctx context.Context, recipientID string, opts ListOptions) (*ListResult, error)
	// MarkRead sets read=true on a record owned by recipientID. ReadAt keeps its first value.
	MarkRead(ctx context.Context, id, recipientID string) (*models.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id, recipientID string) error
	DeleteAll(ctx context.Context, recipientID string) (int64, error)
	// PurgeRead removes read records created before olderThan.
	PurgeRead(ctx context.Context, olderThan time.Time) (int64, error)
	Stats(ctx context.Context, since time.Time) (*Stats, error)
}

// StoreOption configures a Store implementation.
type StoreOption func(*storeConfig)

type storeConfig struct {
	now func() time.Time
}

// WithStoreClock overrides the time source used for expiry and read timestamps.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(cfg *storeConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

func newStoreConfig(opts []StoreOption) storeConfig {
	cfg := storeConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c storeConfig) utcNow() time.Time {
	return c.now().UTC()
}

// TypeCount aggregates records of one type.
type TypeCount struct {
	Type  models.NotificationType `json:"type"`
	Count int64                   `json:"count"`
	Read  int64                   `json:"read"`
}

// DayCount aggregates records created on one UTC day.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Stats summarises notification activity since a point in time.
type Stats struct {
	Since                time.Time   `json:"since"`
	Total                int64       `json:"total"`
	Read                 int64       `json:"read"`
	Unread               int64       `json:"unread"`
	ReadRate             float64     `json:"readRate"`
	AvgTimeToReadSeconds float64     `json:"avgTimeToReadSeconds"`
	ByType               []TypeCount `json:"byType"`
	ByDay                []DayCount  `json:"byDay"`
}

type statRow struct {
	Type      models.NotificationType `bson:"type"`
	Read      bool                    `gorm:"column:is_read" bson:"read"`
	CreatedAt time.Time               `bson:"created_at"`
	ReadAt    *time.Time              `bson:"read_at"`
}

func aggregateStats(since time.Time, rows []statRow) *Stats {
	stats := &Stats{Since: since, ByType: []TypeCount{}, ByDay: []DayCount{}}
	byType := make(map[models.NotificationType]*TypeCount)
	byDay := make(map[string]int64)

	var (
		readDurations time.Duration
		timedReads    int64
	)
	for _, row := range rows {
		stats.Total++
		entry := byType[row.Type]
		if entry == nil {
			entry = &TypeCount{Type: row.Type}
			byType[row.Type] = entry
		}
		entry.Count++
		if row.Read {
			stats.Read++
			entry.Read++
			if row.ReadAt != nil && !row.ReadAt.Before(row.CreatedAt) {
				readDurations += row.ReadAt.Sub(row.CreatedAt)
				timedReads++
			}
		}
		byDay[row.CreatedAt.UTC().Format(time.DateOnly)]++
	}

	stats.Unread = stats.Total - stats.Read
	if stats.Total > 0 {
		stats.ReadRate = math.Round(float64(stats.Read)/float64(stats.Total)*10000) / 10000
	}
	if timedReads > 0 {
		stats.AvgTimeToReadSeconds = math.Round(readDurations.Seconds()/float64(timedReads)*100) / 100
	}

	for _, entry := range byType {
		stats.ByType = append(stats.ByType, *entry)
	}
	sort.Slice(stats.ByType, func(i, j int) bool {
		if stats.ByType[i].Count != stats.ByType[j].Count {
			return stats.ByType[i].Count > stats.ByType[j].Count
		}
		return stats.ByType[i].Type < stats.ByType[j].Type
	})

	for day, count := range byDay {
		stats.ByDay = append(stats.ByDay, DayCount{Date: day, Count: count})
	}
	sort.Slice(stats.ByDay, func(i, j int) bool { return stats.ByDay[i].Date < stats.ByDay[j].Date })

	return stats
}

func prepareRecord(record *models.Notification, now time.Time) {
	record.EnsureID()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Priority == "" {
		record.Priority = models.PriorityNormal
	}
	if record.Metadata.Source == "" {
		record.Metadata.Source = "system"
	}
	if record.Metadata.Category == "" {
		record.Metadata.Category = record.Type.Category()
	}
}
