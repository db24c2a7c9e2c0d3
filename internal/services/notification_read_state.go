package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/internal/realtime"
	"github.com/roadwatch/roadwatch/pkg/logger"
)

// ReadEvent is the payload of notification:read and notification:deleted.
type ReadEvent struct {
	NotificationID string     `json:"notificationId,omitempty"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	All            bool       `json:"all,omitempty"`
	Count          int64      `json:"count,omitempty"`
}

// CountEvent is the payload of all_notifications_read.
type CountEvent struct {
	Count int64 `json:"count"`
}

// ReadStateService applies a recipient's read and delete actions and mirrors them to the
// recipient's other live sessions in the background.
type ReadStateService struct {
	store  Store
	events *emitter
	log    *zap.Logger
}

// NewReadStateService constructs a ReadStateService.
func NewReadStateService(store Store, sender realtime.Sender) (*ReadStateService, error) {
	if store == nil {
		return nil, errors.New("read state service: store is required")
	}
	if sender == nil {
		return nil, errors.New("read state service: realtime sender is required")
	}
	log := logger.WithModule("notifications")
	return &ReadStateService{
		store:  store,
		events: newEmitter(sender, log),
		log:    log,
	}, nil
}

// Wait blocks until pending realtime mirrors have been handed to the transport.
func (s *ReadStateService) Wait() {
	s.events.wait()
}

// List returns one page of the recipient's unexpired notifications.
func (s *ReadStateService) List(ctx context.Context, recipientID string, opts ListOptions) (*ListResult, error) {
	recipientID, err := requireRecipient(recipientID)
	if err != nil {
		return nil, err
	}
	return s.store.List(ensureContext(ctx), recipientID, opts)
}

// MarkAsRead marks one notification read. Marking an already read notification succeeds
// and keeps the original read time.
func (s *ReadStateService) MarkAsRead(ctx context.Context, recipientID, id string) (*models.Notification, error) {
	recipientID, err := requireRecipient(recipientID)
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	record, err := s.store.MarkRead(ensureContext(ctx), id, recipientID)
	if err != nil {
		return nil, err
	}
	event := ReadEvent{NotificationID: record.ID, ReadAt: record.ReadAt}
	s.emit(recipientID, realtime.EventNotificationRead, event)
	return record, nil
}

// MarkAllAsRead marks every unread notification of the recipient read and returns how many
// changed.
func (s *ReadStateService) MarkAllAsRead(ctx context.Context, recipientID string) (int64, error) {
	recipientID, err := requireRecipient(recipientID)
	if err != nil {
		return 0, err
	}

	count, err := s.store.MarkAllRead(ensureContext(ctx), recipientID)
	if err != nil {
		return 0, err
	}
	room := realtime.UserRoom(recipientID)
	s.events.async(realtime.EventAllNotificationsRead, func(sender realtime.Sender) {
		sender.Send(room, realtime.EventNotificationRead, ReadEvent{All: true, Count: count})
		sender.Send(room, realtime.EventAllNotificationsRead, CountEvent{Count: count})
	})
	s.log.Debug("marked all notifications read", zap.String("recipient", recipientID), zap.Int64("count", count))
	return count, nil
}

// Delete removes one notification owned by the recipient.
func (s *ReadStateService) Delete(ctx context.Context, recipientID, id string) error {
	recipientID, err := requireRecipient(recipientID)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}

	if err := s.store.Delete(ensureContext(ctx), id, recipientID); err != nil {
		return err
	}
	s.emit(recipientID, realtime.EventNotificationDeleted, ReadEvent{NotificationID: id})
	return nil
}

// DeleteAll removes every notification owned by the recipient.
func (s *ReadStateService) DeleteAll(ctx context.Context, recipientID string) (int64, error) {
	recipientID, err := requireRecipient(recipientID)
	if err != nil {
		return 0, err
	}

	count, err := s.store.DeleteAll(ensureContext(ctx), recipientID)
	if err != nil {
		return 0, err
	}
	s.emit(recipientID, realtime.EventNotificationDeleted, ReadEvent{All: true, Count: count})
	return count, nil
}

func (s *ReadStateService) emit(recipientID, event string, payload any) {
	room := realtime.UserRoom(recipientID)
	s.events.async(event, func(sender realtime.Sender) {
		sender.Send(room, event, payload)
	})
}

func requireRecipient(recipientID string) (string, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return "", validationError("recipient id is required")
	}
	return recipientID, nil
}
