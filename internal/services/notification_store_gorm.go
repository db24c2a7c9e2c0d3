package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/roadwatch/roadwatch/internal/models"
)

// GormStore keeps notifications in a relational database.
type GormStore struct {
	db  *gorm.DB
	cfg storeConfig
}

var _ Store = (*GormStore)(nil)

// NewGormStore constructs a Store over db.
func NewGormStore(db *gorm.DB, opts ...StoreOption) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("notification store: db is required")
	}
	return &GormStore{db: db, cfg: newStoreConfig(opts)}, nil
}

// Create implements Store.
func (s *GormStore) Create(ctx context.Context, records []*models.Notification) (int, error) {
	ctx = ensureContext(ctx)
	now := s.cfg.utcNow()

	var (
		created int
		errs    error
	)
	for _, record := range records {
		if record == nil {
			continue
		}
		prepareRecord(record, now)
		if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recipient %s: %w", record.RecipientID, err))
			continue
		}
		created++
	}

	if errs != nil {
		return created, persistenceError(
			fmt.Sprintf("notification store: create %d of %d failed", len(multierr.Errors(errs)), len(records)),
			errs,
		)
	}
	return created, nil
}

func (s *GormStore) visible(ctx context.Context, recipientID string, now time.Time) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ?", recipientID).
		Where("expires_at IS NULL OR expires_at > ?", now)
}

// List implements Store.
func (s *GormStore) List(ctx context.Context, recipientID string, opts ListOptions) (*ListResult, error) {
	ctx = ensureContext(ctx)
	opts = opts.normalise()
	now := s.cfg.utcNow()

	result := &ListResult{Items: []models.Notification{}, Page: opts.Page, Limit: opts.Limit}

	filtered := s.visible(ctx, recipientID, now)
	if opts.UnreadOnly {
		filtered = filtered.Where("is_read = ?", false)
	}
	if err := filtered.Count(&result.Total).Error; err != nil {
		return nil, persistenceError("notification store: count", err)
	}

	if err := s.visible(ctx, recipientID, now).
		Where("is_read = ?", false).
		Count(&result.UnreadCount).Error; err != nil {
		return nil, persistenceError("notification store: count unread", err)
	}

	page := s.visible(ctx, recipientID, now)
	if opts.UnreadOnly {
		page = page.Where("is_read = ?", false)
	}
	if err := page.
		Order("created_at DESC").
		Order("id DESC").
		Limit(opts.Limit).
		Offset(opts.offset()).
		Find(&result.Items).Error; err != nil {
		return nil, persistenceError("notification store: list", err)
	}

	return result, nil
}

// MarkRead implements Store.
func (s *GormStore) MarkRead(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	now := s.cfg.utcNow()

	record, err := s.owned(ctx, id, recipientID)
	if err != nil {
		return nil, err
	}

	// COALESCE keeps the first read timestamp when concurrent requests race.
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Updates(map[string]any{
			"is_read":    true,
			"read_at":    gorm.Expr("COALESCE(read_at, ?)", now),
			"updated_at": now,
		}).Error; err != nil {
		return nil, persistenceError("notification store: mark read", err)
	}

	if record.Read && record.ReadAt != nil {
		return record, nil
	}
	return s.owned(ctx, id, recipientID)
}

func (s *GormStore) owned(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	var record models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("notification store: load", err)
	}
	return &record, nil
}

// MarkAllRead implements Store.
func (s *GormStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	ctx = ensureContext(ctx)
	now := s.cfg.utcNow()

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]any{
			"is_read":    true,
			"read_at":    now,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, persistenceError("notification store: mark all read", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete implements Store.
func (s *GormStore) Delete(ctx context.Context, id, recipientID string) error {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return persistenceError("notification store: delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll implements Store.
func (s *GormStore) DeleteAll(ctx context.Context, recipientID string) (int64, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("recipient_id = ?", recipientID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, persistenceError("notification store: delete all", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeRead implements Store.
func (s *GormStore) PurgeRead(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("is_read = ? AND created_at < ?", true, olderThan.UTC()).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, persistenceError("notification store: purge read", result.Error)
	}
	return result.RowsAffected, nil
}

// Stats implements Store.
func (s *GormStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	since = since.UTC()

	var rows []statRow
	if err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Notification{}).
		Select("type, is_read, created_at, read_at").
		Where("created_at >= ?", since).
		Scan(&rows).Error; err != nil {
		return nil, persistenceError("notification store: stats", err)
	}
	return aggregateStats(since, rows), nil
}
