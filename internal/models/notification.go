package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType enumerates the domain events that produce notifications.
type NotificationType string

const (
	TypeReportCreated     NotificationType = "report_created"
	TypeReportAssigned    NotificationType = "report_assigned"
	TypeStatusUpdate      NotificationType = "status_update"
	TypeProgressUpdate    NotificationType = "progress_update"
	TypeReportCompleted   NotificationType = "report_completed"
	TypeReportApproved    NotificationType = "report_approved"
	TypeReportRejected    NotificationType = "report_rejected"
	TypeFeedbackRequest   NotificationType = "feedback_request"
	TypeFeedbackSubmitted NotificationType = "feedback_submitted"
	TypeDonationReceived  NotificationType = "donation_received"
	TypeDonationRefunded  NotificationType = "donation_refunded"
	TypeBroadcast         NotificationType = "broadcast"
	TypeSystem            NotificationType = "system"
	TypeAlert             NotificationType = "alert"
	TypeInfo              NotificationType = "info"
	TypeWarning           NotificationType = "warning"
)

// NotificationTypes lists every accepted type in declaration order.
var NotificationTypes = []NotificationType{
	TypeReportCreated, TypeReportAssigned, TypeStatusUpdate, TypeProgressUpdate,
	TypeReportCompleted, TypeReportApproved, TypeReportRejected, TypeFeedbackRequest,
	TypeFeedbackSubmitted, TypeDonationReceived, TypeDonationRefunded, TypeBroadcast,
	TypeSystem, TypeAlert, TypeInfo, TypeWarning,
}

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Category groups the type for metadata and stats.
func (t NotificationType) Category() string {
	switch t {
	case TypeReportCreated, TypeReportAssigned, TypeStatusUpdate, TypeProgressUpdate,
		TypeReportCompleted, TypeReportApproved, TypeReportRejected:
		return "reports"
	case TypeDonationReceived, TypeDonationRefunded:
		return "donations"
	case TypeFeedbackRequest, TypeFeedbackSubmitted:
		return "feedback"
	default:
		return "system"
	}
}

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Field limits enforced before persistence.
const (
	MaxTitleLength   = 200
	MaxMessageLength = 1000
)

// NotificationMetadata describes where a notification came from.
type NotificationMetadata struct {
	Source   string   `gorm:"type:varchar(64);default:'system'" bson:"source" json:"source"`
	Category string   `gorm:"type:varchar(32);index" bson:"category" json:"category"`
	Tags     []string `gorm:"serializer:json" bson:"tags,omitempty" json:"tags,omitempty"`
}

// Notification is one durable record per (event, recipient). Only Read and ReadAt change
// after creation.
type Notification struct {
	BaseModel `bson:",inline"`

	SenderID    *string              `gorm:"type:varchar(36)" bson:"sender_id,omitempty" json:"sender,omitempty"`
	RecipientID string               `gorm:"type:varchar(36);not null;index:idx_notifications_recipient_read,priority:1" bson:"recipient_id" json:"recipient"`
	Type        NotificationType     `gorm:"type:varchar(32);not null;index" bson:"type" json:"type"`
	Title       string               `gorm:"type:varchar(200);not null" bson:"title" json:"title"`
	Message     string               `gorm:"type:varchar(1000);not null" bson:"message" json:"message"`
	Data        datatypes.JSONMap    `bson:"data,omitempty" json:"data,omitempty"`
	Priority    Priority             `gorm:"type:varchar(16);not null;default:'normal'" bson:"priority" json:"priority"`
	Read        bool                 `gorm:"column:is_read;not null;default:false;index:idx_notifications_recipient_read,priority:2" bson:"read" json:"read"`
	ReadAt      *time.Time           `bson:"read_at,omitempty" json:"readAt,omitempty"`
	ActionURL   string               `gorm:"type:text" bson:"action_url,omitempty" json:"actionUrl,omitempty"`
	ActionLabel string               `gorm:"type:varchar(64)" bson:"action_label,omitempty" json:"actionLabel,omitempty"`
	ExpiresAt   *time.Time           `gorm:"index" bson:"expires_at,omitempty" json:"expiresAt,omitempty"`
	Metadata    NotificationMetadata `gorm:"embedded;embeddedPrefix:meta_" bson:"metadata" json:"metadata"`
}

// Expired reports whether the record is past its expiry at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}
