package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/roadwatch/roadwatch/internal/models"
)

// GormUserDirectory reads the relational users table.
type GormUserDirectory struct {
	db *gorm.DB
}

// NewGormUserDirectory constructs a directory over db.
func NewGormUserDirectory(db *gorm.DB) (*GormUserDirectory, error) {
	if db == nil {
		return nil, errors.New("user directory: db is required")
	}
	return &GormUserDirectory{db: db}, nil
}

// ActiveUserIDsByRole implements UserDirectory.
func (d *GormUserDirectory) ActiveUserIDsByRole(ctx context.Context, role string) ([]string, error) {
	role = strings.ToLower(strings.TrimSpace(role))

	query := d.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("is_active = ?", true)
	if role != models.RoleAll {
		query = query.Where("role = ?", role)
	}

	var ids []string
	if err := query.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("user directory: list role %s: %w", role, err)
	}
	return ids, nil
}

// Lookup implements UserDirectory.
func (d *GormUserDirectory) Lookup(ctx context.Context, ids []string) (map[string]models.User, error) {
	ids = normaliseIDs(ids)
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []models.User
	if err := d.db.WithContext(ensureContext(ctx)).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user directory: lookup: %w", err)
	}
	for _, user := range users {
		out[user.ID] = user
	}
	return out, nil
}
