package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/internal/realtime"
)

// Email template names rendered by the mail renderer.
const (
	TemplateTaskAssigned    = "task_assigned"
	TemplateReportResolved  = "report_resolved"
	TemplateDonationReceipt = "donation_receipt"
	TemplateBroadcast       = "broadcast"
)

// ReportRef carries the report fields notification templates need.
type ReportRef struct {
	ID              string
	Title           string
	OwnerID         string
	AssignedStaffID string
	Category        string
}

// DonationRef carries the donation fields notification templates need.
type DonationRef struct {
	ID          string
	DonorID     string
	DonorName   string
	Amount      float64
	Currency    string
	ReportID    string
	ReportTitle string
}

// FeedbackRef carries the feedback fields notification templates need.
type FeedbackRef struct {
	ID          string
	ReportID    string
	ReportTitle string
	CitizenID   string
	StaffID     string
	Rating      int
	Comment     string
}

// BroadcastInput is an administrator-authored announcement.
type BroadcastInput struct {
	Title      string
	Message    string
	Type       models.NotificationType
	Recipients []string
	Data       map[string]any
	Priority   models.Priority
	SenderID   string
	ExpiresAt  *time.Time
	ActionURL  string
	SendEmail  bool
}

// BroadcastEvent is the payload of notification:broadcast.
type BroadcastEvent struct {
	Title    string                  `json:"title"`
	Message  string                  `json:"message"`
	Type     models.NotificationType `json:"type"`
	Priority models.Priority         `json:"priority"`
	Data     map[string]any          `json:"data,omitempty"`
	SentAt   time.Time               `json:"sentAt"`
}

// NotifyReportCreated tells administrators a new report needs review.
func (c *Coordinator) NotifyReportCreated(ctx context.Context, report ReportRef) (int, error) {
	return c.Deliver(ctx, Notice{
		Type:        models.TypeReportCreated,
		Title:       "New Report Submitted",
		Message:     fmt.Sprintf("A new report %q has been submitted and needs review.", report.Title),
		Recipients:  []Recipient{RoleRecipient(models.RoleAdmin)},
		Priority:    models.PriorityNormal,
		SenderID:    report.OwnerID,
		ActionURL:   "/admin/reports/" + report.ID,
		ActionLabel: "Review Report",
		Source:      "reports",
		Data:        reportData(report),
	})
}

// NotifyReportAssigned tells the assigned staff member and the report owner about an
// assignment. Only the staff member is emailed.
func (c *Coordinator) NotifyReportAssigned(ctx context.Context, report ReportRef, staffID, assignedBy string) (int, error) {
	if strings.TrimSpace(staffID) == "" {
		return 0, validationError("staff id is required")
	}
	data := reportData(report)
	data["staffId"] = staffID

	return c.Deliver(ctx, Notice{
		Type:       models.TypeReportAssigned,
		Title:      "Report Assigned",
		Message:    fmt.Sprintf("Your report %q has been assigned to a staff member.", report.Title),
		Recipients: Users(staffID, report.OwnerID),
		Priority:   models.PriorityNormal,
		SenderID:   assignedBy,
		ActionURL:  "/reports/" + report.ID,
		Source:     "reports",
		Data:       data,
		Email: &EmailSpec{
			Template: TemplateTaskAssigned,
			Subject:  "New task assigned: " + report.Title,
			Only:     []string{staffID},
		},
		Customize: func(recipientID string, record *models.Notification) {
			if recipientID != strings.TrimSpace(staffID) {
				return
			}
			record.Title = "New Task Assigned"
			record.Message = fmt.Sprintf("You have been assigned to report %q.", report.Title)
			record.Priority = models.PriorityHigh
			record.ActionURL = "/staff/tasks/" + report.ID
			record.ActionLabel = "View Task"
		},
	})
}

// NotifyReportStatusChanged tells the owner their report moved to a new status. An
// unchanged status produces nothing.
func (c *Coordinator) NotifyReportStatusChanged(ctx context.Context, report ReportRef, oldStatus, newStatus, changedBy string) (int, error) {
	if strings.EqualFold(strings.TrimSpace(oldStatus), strings.TrimSpace(newStatus)) {
		return 0, nil
	}

	priority := models.PriorityNormal
	switch strings.ToLower(strings.TrimSpace(newStatus)) {
	case "resolved", "completed":
		priority = models.PriorityHigh
	}

	data := reportData(report)
	data["oldStatus"] = oldStatus
	data["newStatus"] = newStatus

	return c.Deliver(ctx, Notice{
		Type:        models.TypeStatusUpdate,
		Title:       "Report Status Updated",
		Message:     fmt.Sprintf("Your report %q changed from %s to %s.", report.Title, humanize(oldStatus), humanize(newStatus)),
		Recipients:  Users(report.OwnerID),
		Priority:    priority,
		SenderID:    changedBy,
		ActionURL:   "/reports/" + report.ID,
		ActionLabel: "View Report",
		Source:      "reports",
		Data:        data,
	})
}

// NotifyProgressUpdate tells the owner how far work on their report has progressed.
func (c *Coordinator) NotifyProgressUpdate(ctx context.Context, report ReportRef, progress int, note, staffID string) (int, error) {
	if progress < 0 || progress > 100 {
		return 0, validationError("progress must be between 0 and 100")
	}

	message := fmt.Sprintf("Work on your report %q is %d%% complete.", report.Title, progress)
	if note = strings.TrimSpace(note); note != "" {
		message += " Note: " + note
	}

	data := reportData(report)
	data["progress"] = progress
	if note != "" {
		data["note"] = note
	}

	return c.Deliver(ctx, Notice{
		Type:        models.TypeProgressUpdate,
		Title:       "Progress Update",
		Message:     truncate(message, models.MaxMessageLength),
		Recipients:  Users(report.OwnerID),
		Priority:    models.PriorityNormal,
		SenderID:    staffID,
		ActionURL:   "/reports/" + report.ID,
		ActionLabel: "View Progress",
		Source:      "reports",
		Data:        data,
	})
}

// NotifyTaskCompleted asks administrators to approve completed work.
func (c *Coordinator) NotifyTaskCompleted(ctx context.Context, report ReportRef, staffID string) (int, error) {
	data := reportData(report)
	data["staffId"] = staffID

	return c.Deliver(ctx, Notice{
		Type:        models.TypeReportCompleted,
		Title:       "Task Awaiting Approval",
		Message:     fmt.Sprintf("Work on report %q has been marked complete and awaits your approval.", report.Title),
		Recipients:  []Recipient{RoleRecipient(models.RoleAdmin)},
		Priority:    models.PriorityHigh,
		SenderID:    staffID,
		ActionURL:   "/admin/reports/" + report.ID,
		ActionLabel: "Review Completion",
		Source:      "reports",
		Data:        data,
	})
}

// NotifyTaskApproved tells the staff member and owner the work was approved, then asks the
// owner for feedback.
func (c *Coordinator) NotifyTaskApproved(ctx context.Context, report ReportRef, staffID, approvedBy string) (int, error) {
	data := reportData(report)
	data["staffId"] = staffID

	owner := strings.TrimSpace(report.OwnerID)
	approved, err := c.Deliver(ctx, Notice{
		Type:       models.TypeReportApproved,
		Title:      "Task Approved",
		Message:    fmt.Sprintf("Your work on report %q has been approved.", report.Title),
		Recipients: Users(staffID, owner),
		Priority:   models.PriorityNormal,
		SenderID:   approvedBy,
		ActionURL:  "/staff/tasks/" + report.ID,
		Source:     "reports",
		Data:       data,
		Email: &EmailSpec{
			Template: TemplateReportResolved,
			Subject:  "Your report has been resolved",
			Only:     []string{owner},
		},
		Customize: func(recipientID string, record *models.Notification) {
			if recipientID != owner {
				return
			}
			record.Title = "Report Resolved"
			record.Message = fmt.Sprintf("Your report %q has been resolved.", report.Title)
			record.ActionURL = "/reports/" + report.ID
			record.ActionLabel = "View Report"
		},
	})
	if err != nil || owner == "" {
		return approved, err
	}

	requested, err := c.Deliver(ctx, Notice{
		Type:        models.TypeFeedbackRequest,
		Title:       "How did we do?",
		Message:     fmt.Sprintf("Please share your feedback on how report %q was resolved.", report.Title),
		Recipients:  Users(owner),
		Priority:    models.PriorityLow,
		SenderID:    approvedBy,
		ActionURL:   "/reports/" + report.ID + "/feedback",
		ActionLabel: "Give Feedback",
		Source:      "feedback",
		Data:        reportData(report),
	})
	return approved + requested, err
}

// NotifyTaskRejected tells the staff member their completion was sent back.
func (c *Coordinator) NotifyTaskRejected(ctx context.Context, report ReportRef, staffID, reason string) (int, error) {
	reason = strings.TrimSpace(reason)
	message := fmt.Sprintf("Your completion of report %q was rejected.", report.Title)
	if reason != "" {
		message = fmt.Sprintf("Your completion of report %q was rejected: %s", report.Title, reason)
	}

	data := reportData(report)
	data["reason"] = reason

	return c.Deliver(ctx, Notice{
		Type:        models.TypeReportRejected,
		Title:       "Task Rejected",
		Message:     truncate(message, models.MaxMessageLength),
		Recipients:  Users(staffID),
		Priority:    models.PriorityHigh,
		ActionURL:   "/staff/tasks/" + report.ID,
		ActionLabel: "View Task",
		Source:      "reports",
		Data:        data,
	})
}

// NotifyDonationReceived tells administrators about a donation and thanks a known donor.
// Only the donor is emailed.
func (c *Coordinator) NotifyDonationReceived(ctx context.Context, donation DonationRef) (int, error) {
	amount := formatAmount(donation.Amount, donation.Currency)
	donor := strings.TrimSpace(donation.DonorID)

	recipients := []Recipient{RoleRecipient(models.RoleAdmin)}
	recipients = append(recipients, Users(donor)...)

	return c.Deliver(ctx, Notice{
		Type:       models.TypeDonationReceived,
		Title:      "New Donation Received",
		Message:    fmt.Sprintf("A donation of %s was received for %q.", amount, donation.ReportTitle),
		Recipients: recipients,
		Priority:   models.PriorityNormal,
		SenderID:   donor,
		ActionURL:  "/admin/donations/" + donation.ID,
		Source:     "donations",
		Data:       donationData(donation),
		Email: &EmailSpec{
			Template: TemplateDonationReceipt,
			Subject:  "Thank you for your donation",
			Context:  map[string]any{"Amount": amount, "ReportTitle": donation.ReportTitle},
			Only:     []string{donor},
		},
		Customize: func(recipientID string, record *models.Notification) {
			if donor == "" || recipientID != donor {
				return
			}
			record.Title = "Thank You for Your Donation"
			record.Message = fmt.Sprintf("Your donation of %s to %q has been received.", amount, donation.ReportTitle)
			record.ActionURL = "/donations/" + donation.ID
			record.ActionLabel = "View Receipt"
		},
	})
}

// NotifyDonationRefunded tells the donor their donation was refunded. Anonymous donations
// produce nothing.
func (c *Coordinator) NotifyDonationRefunded(ctx context.Context, donation DonationRef, reason string) (int, error) {
	if strings.TrimSpace(donation.DonorID) == "" {
		return 0, nil
	}
	amount := formatAmount(donation.Amount, donation.Currency)
	message := fmt.Sprintf("Your donation of %s has been refunded.", amount)
	if reason = strings.TrimSpace(reason); reason != "" {
		message += " Reason: " + reason
	}

	data := donationData(donation)
	data["reason"] = reason

	return c.Deliver(ctx, Notice{
		Type:        models.TypeDonationRefunded,
		Title:       "Donation Refunded",
		Message:     truncate(message, models.MaxMessageLength),
		Recipients:  Users(donation.DonorID),
		Priority:    models.PriorityNormal,
		ActionURL:   "/donations/" + donation.ID,
		ActionLabel: "View Donation",
		Source:      "donations",
		Data:        data,
	})
}

// NotifyFeedbackSubmitted tells administrators and the responsible staff member about new
// citizen feedback.
func (c *Coordinator) NotifyFeedbackSubmitted(ctx context.Context, feedback FeedbackRef) (int, error) {
	recipients := []Recipient{RoleRecipient(models.RoleAdmin)}
	recipients = append(recipients, Users(feedback.StaffID)...)

	return c.Deliver(ctx, Notice{
		Type:       models.TypeFeedbackSubmitted,
		Title:      "New Feedback Received",
		Message:    fmt.Sprintf("A citizen rated the resolution of %q %d/5.", feedback.ReportTitle, feedback.Rating),
		Recipients: recipients,
		Priority:   models.PriorityLow,
		SenderID:   feedback.CitizenID,
		ActionURL:  "/reports/" + feedback.ReportID,
		Source:     "feedback",
		Data: map[string]any{
			"feedbackId":  feedback.ID,
			"reportId":    feedback.ReportID,
			"reportTitle": feedback.ReportTitle,
			"rating":      feedback.Rating,
			"comment":     feedback.Comment,
		},
	})
}

// Broadcast fans an announcement out to the named roles and users. With no recipients it
// targets everyone. Role rooms (or all_users) additionally receive notification:broadcast.
func (c *Coordinator) Broadcast(ctx context.Context, input BroadcastInput) (int, error) {
	recipients := ParseRecipients(input.Recipients)
	if len(recipients) == 0 {
		recipients = []Recipient{RoleRecipient(models.RoleAll)}
	}
	notificationType := input.Type
	if notificationType == "" {
		notificationType = models.TypeBroadcast
	}

	notice := Notice{
		Type:       notificationType,
		Title:      input.Title,
		Message:    input.Message,
		Recipients: recipients,
		Data:       input.Data,
		Priority:   input.Priority,
		SenderID:   input.SenderID,
		ActionURL:  input.ActionURL,
		ExpiresAt:  input.ExpiresAt,
		Source:     "broadcast",
	}
	if input.SendEmail {
		notice.Email = &EmailSpec{Template: TemplateBroadcast}
	}

	created, err := c.Deliver(ctx, notice)
	if err != nil || created == 0 {
		return created, err
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	event := BroadcastEvent{
		Title:    strings.TrimSpace(input.Title),
		Message:  strings.TrimSpace(input.Message),
		Type:     notificationType,
		Priority: priority,
		Data:     input.Data,
		SentAt:   c.now().UTC(),
	}
	rooms := broadcastRooms(recipients)
	c.events.async(realtime.EventNotificationBroadcast, func(sender realtime.Sender) {
		for _, room := range rooms {
			sender.Send(room, realtime.EventNotificationBroadcast, event)
		}
	})
	return created, nil
}

func broadcastRooms(recipients []Recipient) []string {
	var rooms []string
	seen := make(map[string]struct{})
	for _, recipient := range recipients {
		if recipient.Kind != RecipientRole {
			continue
		}
		if recipient.Value == models.RoleAll {
			return []string{realtime.RoomAllUsers}
		}
		room := realtime.RoleRoom(recipient.Value)
		if _, ok := seen[room]; ok {
			continue
		}
		seen[room] = struct{}{}
		rooms = append(rooms, room)
	}
	return rooms
}

func reportData(report ReportRef) map[string]any {
	data := map[string]any{
		"reportId":    report.ID,
		"reportTitle": report.Title,
	}
	if report.Category != "" {
		data["category"] = report.Category
	}
	return data
}

func donationData(donation DonationRef) map[string]any {
	return map[string]any{
		"donationId":  donation.ID,
		"amount":      donation.Amount,
		"currency":    strings.ToUpper(orDefault(donation.Currency, "USD")),
		"reportId":    donation.ReportID,
		"reportTitle": donation.ReportTitle,
	}
}

func formatAmount(amount float64, currency string) string {
	return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(orDefault(currency, "USD")))
}

func humanize(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(status), "_", " ")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
