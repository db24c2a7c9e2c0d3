package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/roadwatch/roadwatch/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "roadwatch.db")

	db, err := Open(Config{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Prepare(db))
	require.FileExists(t, path)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestPrepareCreatesNotificationSchema(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Prepare(db))

	migrator := db.Migrator()
	require.True(t, migrator.HasTable(&models.User{}))
	require.True(t, migrator.HasTable(&models.Notification{}))
	require.True(t, migrator.HasColumn(&models.Notification{}, "is_read"))
	require.True(t, migrator.HasColumn(&models.Notification{}, "meta_category"))
	require.True(t, migrator.HasIndex(&models.Notification{}, "idx_notifications_recipient_read"))
}

func TestPrepareRejectsNilHandle(t *testing.T) {
	require.Error(t, Prepare(nil))
}

func TestOpenMongoValidatesConfig(t *testing.T) {
	_, err := OpenMongo(context.Background(), MongoConfig{Database: "roadwatch"})
	require.Error(t, err)

	_, err = OpenMongo(context.Background(), MongoConfig{URI: "mongodb://localhost:27017"})
	require.Error(t, err)
}

func TestOpenMongoHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := OpenMongo(ctx, MongoConfig{
		URI:            "mongodb://127.0.0.1:1",
		Database:       "roadwatch",
		ConnectTimeout: 50 * time.Millisecond,
		RetryAttempts:  5,
		RetryInterval:  time.Second,
	})
	require.ErrorIs(t, err, ErrMongoUnavailable)
}

func TestCloseNilDatabase(t *testing.T) {
	require.NoError(t, Close(nil))
	require.NoError(t, CloseMongo(context.Background(), nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	return db
}
