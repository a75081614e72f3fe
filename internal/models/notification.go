package models

import (
	"fmt"
	"time"
)

// Notification types.
const (
	NotificationValidation = "validation"
	NotificationRejection  = "rejection"
	NotificationComment    = "comment"
	NotificationNewAction  = "new-action"
)

// Notification is a durable, per-recipient record of a workflow event. Only the read
// flag changes after creation.
type Notification struct {
	BaseModel

	UserID       string      `gorm:"type:uuid;not null;index:idx_notification_user_read,priority:1" json:"user_id"`
	User         *User       `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Type         string      `gorm:"type:varchar(32);not null" json:"type"`
	Message      string      `gorm:"type:text;not null" json:"message"`
	IsRead       bool        `gorm:"default:false;index:idx_notification_user_read,priority:2" json:"is_read"`
	ReadAt       *time.Time  `json:"read_at"`
	ActionID     *string     `gorm:"type:uuid;index" json:"action_id,omitempty"`
	Action       *Action     `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	ValidationID *string     `gorm:"type:uuid;index" json:"validation_id,omitempty"`
	Validation   *Validation `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}

// Icon returns the glyph clients render next to the notification.
func (n *Notification) Icon() string {
	switch n.Type {
	case NotificationValidation:
		return "✓"
	case NotificationRejection:
		return "✗"
	case NotificationComment:
		return "💬"
	case NotificationNewAction:
		return "📝"
	default:
		return "📌"
	}
}

// TargetURL points clients at the resource the notification is about.
func (n *Notification) TargetURL() string {
	switch {
	case n.ValidationID != nil && n.ActionID != nil:
		return fmt.Sprintf("/actions/%s/history", *n.ActionID)
	case n.ActionID != nil:
		return fmt.Sprintf("/actions/%s", *n.ActionID)
	default:
		return "/notifications"
	}
}
