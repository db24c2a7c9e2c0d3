package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/roadwatch/roadwatch/internal/database"
	"github.com/roadwatch/roadwatch/internal/models"
)

// TestDBOption customises MustOpenTestDB.
type TestDBOption func(*seed)

type seed struct {
	migrate bool
	users   []*models.User
}

// WithAutoMigrate creates the notification schema after opening.
func WithAutoMigrate() TestDBOption {
	return func(s *seed) { s.migrate = true }
}

// WithUsers migrates and inserts users.
func WithUsers(users ...*models.User) TestDBOption {
	return func(s *seed) {
		s.migrate = true
		s.users = append(s.users, users...)
	}
}

// MustOpenTestDB opens a private in-memory SQLite database closed by t.Cleanup. One pooled
// connection keeps concurrent test writers from hitting "database table is locked".
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	var s seed
	for _, opt := range opts {
		opt(&s)
	}

	db, err := database.Open(database.Config{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	if s.migrate {
		require.NoError(t, database.AutoMigrate(db))
	}
	if len(s.users) > 0 {
		require.NoError(t, db.Create(s.users).Error)
	}
	return db
}

// NewUser builds an active user with email notifications enabled.
func NewUser(id, role string) *models.User {
	user := &models.User{
		Name:               id,
		Email:              id + "@example.com",
		Role:               role,
		IsActive:           true,
		EmailNotifications: true,
	}
	user.ID = id
	return user
}
