package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/multierr"

	"github.com/roadwatch/roadwatch/internal/models"
)

// NotificationsCollection is the document store collection holding notification records.
const NotificationsCollection = "notifications"

// MongoStore keeps notifications in MongoDB.
type MongoStore struct {
	coll *mongo.Collection
	cfg  storeConfig
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore constructs a Store over the notifications collection of db.
func NewMongoStore(db *mongo.Database, opts ...StoreOption) (*MongoStore, error) {
	if db == nil {
		return nil, errors.New("notification store: mongo database is required")
	}
	return &MongoStore{coll: db.Collection(NotificationsCollection), cfg: newStoreConfig(opts)}, nil
}

// Document keys queried by the store. Each is a top-level field of a stored
// models.Notification.
var (
	notificationIndexKeys = []bson.D{
		{{Key: "recipient_id", Value: 1}, {Key: "read", Value: 1}, {Key: "created_at", Value: -1}},
		{{Key: "expires_at", Value: 1}},
		{{Key: "created_at", Value: -1}},
	}
	newestFirst     = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	statsProjection = bson.M{"type": 1, "read": 1, "created_at": 1, "read_at": 1}
)

func ownedFilter(id, recipientID string) bson.M {
	return bson.M{"_id": id, "recipient_id": recipientID}
}

// firstReadFilter matches an owned notification that has never been read.
func firstReadFilter(id, recipientID string) bson.M {
	filter := ownedFilter(id, recipientID)
	filter["read_at"] = nil
	return filter
}

func unreadFilter(recipientID string) bson.M {
	return bson.M{"recipient_id": recipientID, "read": false}
}

func markReadUpdate(now time.Time) bson.M {
	return bson.M{"$set": bson.M{"read": true, "read_at": now, "updated_at": now}}
}

func purgeFilter(olderThan time.Time) bson.M {
	return bson.M{"read": true, "created_at": bson.M{"$lt": olderThan.UTC()}}
}

func createdSinceFilter(since time.Time) bson.M {
	return bson.M{"created_at": bson.M{"$gte": since}}
}

// EnsureIndexes creates the indexes List and PurgeRead rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := make([]mongo.IndexModel, 0, len(notificationIndexKeys))
	for _, keys := range notificationIndexKeys {
		indexes = append(indexes, mongo.IndexModel{Keys: keys})
	}
	_, err := s.coll.Indexes().CreateMany(ensureContext(ctx), indexes)
	if err != nil {
		return fmt.Errorf("notification store: ensure indexes: %w", err)
	}
	return nil
}

// Create implements Store.
func (s *MongoStore) Create(ctx context.Context, records []*models.Notification) (int, error) {
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
		if _, err := s.coll.InsertOne(ctx, record); err != nil {
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

func visibleFilter(recipientID string, now time.Time) bson.M {
	return bson.M{
		"recipient_id": recipientID,
		"$or": bson.A{
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": now}},
		},
	}
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, recipientID string, opts ListOptions) (*ListResult, error) {
	ctx = ensureContext(ctx)
	opts = opts.normalise()
	now := s.cfg.utcNow()

	result := &ListResult{Items: []models.Notification{}, Page: opts.Page, Limit: opts.Limit}

	filter := visibleFilter(recipientID, now)
	if opts.UnreadOnly {
		filter["read"] = false
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, persistenceError("notification store: count", err)
	}
	result.Total = total

	unreadVisible := visibleFilter(recipientID, now)
	unreadVisible["read"] = false
	unread, err := s.coll.CountDocuments(ctx, unreadVisible)
	if err != nil {
		return nil, persistenceError("notification store: count unread", err)
	}
	result.UnreadCount = unread

	cursor, err := s.coll.Find(ctx, filter, options.Find().
		SetSort(newestFirst).
		SetSkip(int64(opts.offset())).
		SetLimit(int64(opts.Limit)))
	if err != nil {
		return nil, persistenceError("notification store: list", err)
	}
	if err := cursor.All(ctx, &result.Items); err != nil {
		return nil, persistenceError("notification store: decode list", err)
	}
	return result, nil
}

// MarkRead implements Store.
func (s *MongoStore) MarkRead(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	now := s.cfg.utcNow()

	// Only the first read sets read_at; later calls leave the document untouched.
	_, err := s.coll.UpdateOne(ctx, firstReadFilter(id, recipientID), markReadUpdate(now))
	if err != nil {
		return nil, persistenceError("notification store: mark read", err)
	}

	var record models.Notification
	if err := s.coll.FindOne(ctx, ownedFilter(id, recipientID)).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("notification store: load", err)
	}
	return &record, nil
}

// MarkAllRead implements Store.
func (s *MongoStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	now := s.cfg.utcNow()
	result, err := s.coll.UpdateMany(ensureContext(ctx), unreadFilter(recipientID), markReadUpdate(now))
	if err != nil {
		return 0, persistenceError("notification store: mark all read", err)
	}
	return result.ModifiedCount, nil
}

// Delete implements Store.
func (s *MongoStore) Delete(ctx context.Context, id, recipientID string) error {
	result, err := s.coll.DeleteOne(ensureContext(ctx), ownedFilter(id, recipientID))
	if err != nil {
		return persistenceError("notification store: delete", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll implements Store.
func (s *MongoStore) DeleteAll(ctx context.Context, recipientID string) (int64, error) {
	result, err := s.coll.DeleteMany(ensureContext(ctx), bson.M{"recipient_id": recipientID})
	if err != nil {
		return 0, persistenceError("notification store: delete all", err)
	}
	return result.DeletedCount, nil
}

// PurgeRead implements Store.
func (s *MongoStore) PurgeRead(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.coll.DeleteMany(ensureContext(ctx), purgeFilter(olderThan))
	if err != nil {
		return 0, persistenceError("notification store: purge read", err)
	}
	return result.DeletedCount, nil
}

// Stats implements Store.
func (s *MongoStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	ctx = ensureContext(ctx)
	since = since.UTC()

	cursor, err := s.coll.Find(ctx, createdSinceFilter(since), options.Find().SetProjection(statsProjection))
	if err != nil {
		return nil, persistenceError("notification store: stats", err)
	}

	var rows []statRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, persistenceError("notification store: decode stats", err)
	}
	return aggregateStats(since, rows), nil
}
