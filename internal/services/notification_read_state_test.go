package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/internal/realtime"
	apperrors "github.com/roadwatch/roadwatch/pkg/errors"
)

func newReadStateFixture(t *testing.T) (*ReadStateService, *GormStore, *recordingSender, *testClock) {
	t.Helper()
	store, clock := newStoreFixture(t)
	sender := &recordingSender{}
	svc, err := NewReadStateService(store, sender)
	require.NoError(t, err)
	return svc, store, sender, clock
}

func TestReadStateMarkAsReadNotifiesOtherSessions(t *testing.T) {
	svc, store, sender, clock := newReadStateFixture(t)
	record := newRecord("user-1", models.TypeInfo, "hello")
	seedRecords(t, store, clock, record)

	updated, err := svc.MarkAsRead(context.Background(), "user-1", record.ID)
	require.NoError(t, err)
	require.True(t, updated.Read)
	svc.Wait()

	events := sender.Events()
	require.Len(t, events, 1)
	require.Equal(t, "user_user-1", events[0].Room)
	require.Equal(t, realtime.EventNotificationRead, events[0].Event)
	payload := events[0].Payload.(ReadEvent)
	require.Equal(t, record.ID, payload.NotificationID)
	require.NotNil(t, payload.ReadAt)

	// Idempotent: a second read succeeds and still broadcasts.
	_, err = svc.MarkAsRead(context.Background(), "user-1", record.ID)
	require.NoError(t, err)
	svc.Wait()
	require.Len(t, sender.Events(), 2)
}

func TestReadStateMarkAsReadNotFound(t *testing.T) {
	svc, store, sender, clock := newReadStateFixture(t)
	record := newRecord("user-1", models.TypeInfo, "hello")
	seedRecords(t, store, clock, record)

	_, err := svc.MarkAsRead(context.Background(), "user-2", record.ID)
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = svc.MarkAsRead(context.Background(), "user-1", "")
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = svc.MarkAsRead(context.Background(), "", record.ID)
	require.True(t, errors.Is(err, apperrors.ErrValidation))
	svc.Wait()
	require.Empty(t, sender.Events())
}

func TestReadStateMarkAllAsRead(t *testing.T) {
	svc, store, sender, clock := newReadStateFixture(t)
	seedRecords(t, store, clock,
		newRecord("user-1", models.TypeInfo, "a"),
		newRecord("user-1", models.TypeInfo, "b"),
	)

	count, err := svc.MarkAllAsRead(context.Background(), "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	svc.Wait()

	events := sender.Events()
	require.Len(t, events, 2)
	require.Equal(t, realtime.EventNotificationRead, events[0].Event)
	require.Equal(t, ReadEvent{All: true, Count: 2}, events[0].Payload)
	require.Equal(t, realtime.EventAllNotificationsRead, events[1].Event)
	require.Equal(t, CountEvent{Count: 2}, events[1].Payload)

	page, err := svc.List(context.Background(), "user-1", ListOptions{})
	require.NoError(t, err)
	require.Zero(t, page.UnreadCount)
}

func TestReadStateDelete(t *testing.T) {
	svc, store, sender, clock := newReadStateFixture(t)
	record := newRecord("user-1", models.TypeInfo, "a")
	seedRecords(t, store, clock, record, newRecord("user-1", models.TypeInfo, "b"))

	require.True(t, errors.Is(svc.Delete(context.Background(), "user-2", record.ID), ErrNotFound))
	svc.Wait()
	require.Empty(t, sender.Events())

	require.NoError(t, svc.Delete(context.Background(), "user-1", record.ID))
	svc.Wait()
	count, err := svc.DeleteAll(context.Background(), "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	svc.Wait()

	events := sender.Events()
	require.Len(t, events, 2)
	require.Equal(t, realtime.EventNotificationDeleted, events[0].Event)
	require.Equal(t, ReadEvent{NotificationID: record.ID}, events[0].Payload)
	require.Equal(t, ReadEvent{All: true, Count: 1}, events[1].Payload)
}

func TestReadStateDoesNotWaitOnSlowTransport(t *testing.T) {
	store, clock := newStoreFixture(t)
	transport := newStalledSender()
	svc, err := NewReadStateService(store, transport)
	require.NoError(t, err)

	record := newRecord("user-1", models.TypeInfo, "hello")
	seedRecords(t, store, clock, record, newRecord("user-1", models.TypeInfo, "other"))

	started := time.Now()
	_, err = svc.MarkAsRead(context.Background(), "user-1", record.ID)
	require.NoError(t, err)
	_, err = svc.MarkAllAsRead(context.Background(), "user-1")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), "user-1", record.ID))
	_, err = svc.DeleteAll(context.Background(), "user-1")
	require.NoError(t, err)
	require.Less(t, time.Since(started), 500*time.Millisecond)

	transport.Release()
	svc.Wait()
	require.Len(t, transport.Events(), 5)
}

func TestStatsServiceClampsWindow(t *testing.T) {
	store, clock := newStoreFixture(t)
	seedRecords(t, store, clock, newRecord("user-1", models.TypeInfo, "a"))

	svc, err := NewStatsService(store, clock.Now)
	require.NoError(t, err)

	stats, err := svc.Summary(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, stats.Since.Equal(clock.Now().AddDate(0, 0, -DefaultStatsDays)))
	require.EqualValues(t, 1, stats.Total)

	stats, err = svc.Summary(context.Background(), 10_000)
	require.NoError(t, err)
	require.True(t, stats.Since.Equal(clock.Now().AddDate(0, 0, -MaxStatsDays)))
}
