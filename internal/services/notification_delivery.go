package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/internal/monitoring"
	"github.com/roadwatch/roadwatch/internal/realtime"
	"github.com/roadwatch/roadwatch/pkg/logger"
)

// EmailSpec requests an email alongside the in-app notification.
type EmailSpec struct {
	Template string
	Subject  string
	Context  map[string]any
	// Only restricts email to these user ids; empty means every resolved recipient.
	Only []string
}

// Notice describes one domain event to fan out.
type Notice struct {
	Type        models.NotificationType
	Title       string
	Message     string
	Recipients  []Recipient
	Data        map[string]any
	Priority    models.Priority
	SenderID    string
	ActionURL   string
	ActionLabel string
	ExpiresAt   *time.Time
	Source      string
	Tags        []string
	Email       *EmailSpec
	// Customize adjusts the record built for one recipient before it is stored.
	Customize func(recipientID string, record *models.Notification)
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithEmailQueue enables email dispatch.
func WithEmailQueue(queue EmailQueue) CoordinatorOption {
	return func(c *Coordinator) {
		c.email = queue
	}
}

// WithEmailBaseURL prefixes relative action links in emails.
func WithEmailBaseURL(baseURL string) CoordinatorOption {
	return func(c *Coordinator) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithCoordinatorClock overrides the time source.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator turns domain events into durable notification records, then pushes them to
// live connections and email on a best-effort basis.
type Coordinator struct {
	store     Store
	directory UserDirectory
	resolver  *RecipientResolver
	events    *emitter
	email     EmailQueue
	baseURL   string
	now       func() time.Time
	log       *zap.Logger
}

// NewCoordinator constructs a Coordinator. sender may be an unattached realtime.Handle.
func NewCoordinator(store Store, directory UserDirectory, sender realtime.Sender, opts ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("notification coordinator: store is required")
	}
	if sender == nil {
		return nil, errors.New("notification coordinator: realtime sender is required")
	}
	resolver, err := NewRecipientResolver(directory)
	if err != nil {
		return nil, err
	}

	log := logger.WithModule("notifications")
	c := &Coordinator{
		store:     store,
		directory: directory,
		resolver:  resolver,
		events:    newEmitter(sender, log),
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Deliver resolves recipients, persists one record per recipient and schedules realtime
// and email delivery. It returns the number of records stored. Nothing is emitted when
// persistence fails.
func (c *Coordinator) Deliver(ctx context.Context, notice Notice) (int, error) {
	ctx = ensureContext(ctx)
	if err := validateNotice(&notice); err != nil {
		return 0, err
	}

	recipients, err := c.resolver.Resolve(ctx, notice.Recipients)
	if err != nil {
		monitoring.RecordPersistenceFailure(string(notice.Type))
		return 0, err
	}
	if len(recipients) == 0 {
		c.log.Debug("no recipients resolved", zap.String("type", string(notice.Type)))
		return 0, nil
	}

	records := c.buildRecords(notice, recipients)
	created, err := c.store.Create(ctx, records)
	if err != nil {
		monitoring.RecordNotificationsPersisted(string(notice.Type), created)
		monitoring.RecordPersistenceFailure(string(notice.Type))
		c.log.Error("persist notifications",
			zap.String("type", string(notice.Type)),
			zap.Int("recipients", len(recipients)),
			zap.Int("created", created),
			zap.Error(err),
		)
		return created, err
	}
	monitoring.RecordNotificationsPersisted(string(notice.Type), created)

	c.dispatch(context.WithoutCancel(ctx), notice, records)
	return created, nil
}

// Wait blocks until scheduled realtime and email hand-offs have finished.
func (c *Coordinator) Wait() {
	c.events.wait()
}

func (c *Coordinator) buildRecords(notice Notice, recipients []string) []*models.Notification {
	records := make([]*models.Notification, 0, len(recipients))
	var sender *string
	if id := strings.TrimSpace(notice.SenderID); id != "" {
		sender = &id
	}

	for _, recipientID := range recipients {
		record := &models.Notification{
			SenderID:    sender,
			RecipientID: recipientID,
			Type:        notice.Type,
			Title:       notice.Title,
			Message:     notice.Message,
			Data:        cloneData(notice.Data),
			Priority:    notice.Priority,
			ActionURL:   notice.ActionURL,
			ActionLabel: notice.ActionLabel,
			ExpiresAt:   notice.ExpiresAt,
			Metadata: models.NotificationMetadata{
				Source:   orDefault(notice.Source, "system"),
				Category: notice.Type.Category(),
				Tags:     append([]string(nil), notice.Tags...),
			},
		}
		if notice.Customize != nil {
			notice.Customize(recipientID, record)
		}
		records = append(records, record)
	}
	return records
}

func (c *Coordinator) dispatch(ctx context.Context, notice Notice, records []*models.Notification) {
	c.events.async(string(notice.Type), func(sender realtime.Sender) {
		for _, record := range records {
			sender.Send(realtime.UserRoom(record.RecipientID), realtime.EventNotificationNew, record)
		}

		if notice.Email != nil && c.email != nil {
			c.enqueueEmails(ctx, notice, records)
		}
	})
}

func (c *Coordinator) enqueueEmails(ctx context.Context, notice Notice, records []*models.Notification) {
	targets := make(map[string]*models.Notification, len(records))
	for _, record := range records {
		targets[record.RecipientID] = record
	}
	if only := normaliseIDs(notice.Email.Only); len(only) > 0 {
		restricted := make(map[string]*models.Notification, len(only))
		for _, id := range only {
			if record, ok := targets[id]; ok {
				restricted[id] = record
			}
		}
		targets = restricted
	}
	if len(targets) == 0 {
		return
	}

	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	users, err := c.directory.Lookup(ctx, ids)
	if err != nil {
		c.log.Warn("email recipient lookup failed", zap.String("type", string(notice.Type)), zap.Error(err))
		return
	}

	for id, record := range targets {
		user, ok := users[id]
		if !ok || !user.IsActive || !user.EmailNotifications || strings.TrimSpace(user.Email) == "" {
			continue
		}
		vars := map[string]any{
			"Name":        user.Name,
			"Title":       record.Title,
			"Message":     record.Message,
			"ActionURL":   record.ActionURL,
			"ActionLabel": record.ActionLabel,
			"BaseURL":     c.baseURL,
		}
		for k, v := range notice.Email.Context {
			vars[k] = v
		}
		c.email.Enqueue(EmailJob{
			NotificationID: record.ID,
			To:             user.Email,
			Subject:        orDefault(notice.Email.Subject, record.Title),
			Template:       notice.Email.Template,
			Context:        vars,
		})
	}
}

func validateNotice(notice *Notice) error {
	if !notice.Type.Valid() {
		return validationError("unknown notification type %q", notice.Type)
	}
	notice.Title = strings.TrimSpace(notice.Title)
	notice.Message = strings.TrimSpace(notice.Message)
	if notice.Title == "" {
		return validationError("title is required")
	}
	if utf8.RuneCountInString(notice.Title) > models.MaxTitleLength {
		return validationError("title exceeds %d characters", models.MaxTitleLength)
	}
	if notice.Message == "" {
		return validationError("message is required")
	}
	if utf8.RuneCountInString(notice.Message) > models.MaxMessageLength {
		return validationError("message exceeds %d characters", models.MaxMessageLength)
	}
	if notice.Priority == "" {
		notice.Priority = models.PriorityNormal
	}
	if !notice.Priority.Valid() {
		return validationError("unknown priority %q", notice.Priority)
	}
	return nil
}

func cloneData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
