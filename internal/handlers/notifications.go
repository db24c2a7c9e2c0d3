package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roadwatch/roadwatch/internal/middleware"
	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/internal/services"
	"github.com/roadwatch/roadwatch/pkg/errors"
	"github.com/roadwatch/roadwatch/pkg/response"
	"github.com/roadwatch/roadwatch/pkg/validator"
)

var (
	enumOnce sync.Once
	enumErr  error
)

func registerNotificationEnums() error {
	enumOnce.Do(func() {
		types := make([]string, 0, len(models.NotificationTypes))
		for _, t := range models.NotificationTypes {
			types = append(types, string(t))
		}
		if enumErr = validator.RegisterEnum("notification_type", types...); enumErr != nil {
			return
		}
		enumErr = validator.RegisterEnum("notification_priority",
			string(models.PriorityLow),
			string(models.PriorityNormal),
			string(models.PriorityHigh),
			string(models.PriorityUrgent),
		)
	})
	return enumErr
}

// NotificationHandler exposes the pull API for notifications.
type NotificationHandler struct {
	readState    *services.ReadStateService
	coordinator  *services.Coordinator
	stats        *services.StatsService
	defaultLimit int
	now          func() time.Time
}

// NotificationHandlerOption customises the handler.
type NotificationHandlerOption func(*NotificationHandler)

// WithDefaultLimit sets the page size used when the limit query parameter is absent.
func WithDefaultLimit(limit int) NotificationHandlerOption {
	return func(h *NotificationHandler) {
		if limit > 0 {
			h.defaultLimit = limit
		}
	}
}

// WithHandlerClock overrides the clock used to validate expiry timestamps.
func WithHandlerClock(now func() time.Time) NotificationHandlerOption {
	return func(h *NotificationHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(readState *services.ReadStateService, coordinator *services.Coordinator, stats *services.StatsService, opts ...NotificationHandlerOption) (*NotificationHandler, error) {
	if readState == nil {
		return nil, fmt.Errorf("notification handler: read state service is required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("notification handler: coordinator is required")
	}
	if stats == nil {
		return nil, fmt.Errorf("notification handler: stats service is required")
	}
	if err := registerNotificationEnums(); err != nil {
		return nil, fmt.Errorf("notification handler: register validators: %w", err)
	}

	h := &NotificationHandler{
		readState:    readState,
		coordinator:  coordinator,
		stats:        stats,
		defaultLimit: services.DefaultPageLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type notificationListPayload struct {
	Count       int                   `json:"count"`
	Total       int64                 `json:"total"`
	UnreadCount int64                 `json:"unreadCount"`
	Pages       int                   `json:"pages"`
	Data        []models.Notification `json:"data"`
}

// List returns a page of the caller's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	opts := services.ListOptions{
		Page:       parseIntQuery(c, "page", 1),
		Limit:      parseIntQuery(c, "limit", h.defaultLimit),
		UnreadOnly: parseBoolQuery(c, "unreadOnly"),
	}

	result, err := h.readState.List(requestContext(c), userID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := result.Items
	if items == nil {
		items = []models.Notification{}
	}

	response.SuccessWithMeta(c, http.StatusOK, notificationListPayload{
		Count:       len(items),
		Total:       result.Total,
		UnreadCount: result.UnreadCount,
		Pages:       result.Pages(),
		Data:        items,
	}, response.NewMeta(result.Page, result.Limit, result.Total))
}

// MarkRead marks one notification read for the caller.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	record, err := h.readState.MarkAsRead(requestContext(c), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, record)
}

// MarkAllRead marks every unread notification of the caller read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	count, err := h.readState.MarkAllAsRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": count})
}

// Delete removes one notification owned by the caller.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.readState.Delete(requestContext(c), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// DeleteAll removes every notification owned by the caller.
func (h *NotificationHandler) DeleteAll(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	count, err := h.readState.DeleteAll(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": count})
}

type broadcastRequest struct {
	Title      string         `json:"title" validate:"required,max=200"`
	Message    string         `json:"message" validate:"required,max=1000"`
	Type       string         `json:"type" validate:"notification_type"`
	Priority   string         `json:"priority" validate:"notification_priority"`
	Recipients []string       `json:"recipients" validate:"omitempty,dive,required"`
	Data       map[string]any `json:"data"`
	ExpiresAt  *time.Time     `json:"expiresAt"`
	ActionURL  string         `json:"actionUrl" validate:"omitempty,max=2048"`
	SendEmail  bool           `json:"sendEmail"`
}

// Broadcast sends an administrator announcement to roles or explicit users.
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req broadcastRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(h.now()) {
		response.Error(c, errors.NewValidation("expiresAt must be in the future"))
		return
	}

	sent, err := h.coordinator.Broadcast(requestContext(c), services.BroadcastInput{
		Title:      req.Title,
		Message:    req.Message,
		Type:       models.NotificationType(strings.TrimSpace(req.Type)),
		Recipients: req.Recipients,
		Data:       req.Data,
		Priority:   models.Priority(strings.TrimSpace(req.Priority)),
		SenderID:   userID,
		ExpiresAt:  req.ExpiresAt,
		ActionURL:  req.ActionURL,
		SendEmail:  req.SendEmail,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"sent": sent})
}

// Stats summarises notification activity over the last days days.
func (h *NotificationHandler) Stats(c *gin.Context) {
	days := parseIntQuery(c, "days", services.DefaultStatsDays)

	stats, err := h.stats.Summary(requestContext(c), days)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

func parseBoolQuery(c *gin.Context, key string) bool {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return parsed
}
