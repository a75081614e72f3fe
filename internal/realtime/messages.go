package realtime

import (
	"context"
	"time"
)

// Message types exchanged on the notification channel.
const (
	MessageNewNotification = "new_notification"
	MessageUnreadCount     = "unread_count"

	// RequestUnreadCount is the only inbound message clients may send.
	RequestUnreadCount = "get_unread_count"
)

// NotificationPayload is the client-facing view of a persisted notification.
type NotificationPayload struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
	Icon    string    `json:"icon"`
	URL     string    `json:"url,omitempty"`
}

// Message is one outbound frame. Count is always the durable unread count at send time.
type Message struct {
	Type         string               `json:"type"`
	Notification *NotificationPayload `json:"notification,omitempty"`
	Count        int64                `json:"count"`
}

// NewNotificationMessage builds the frame pushed when a notification is dispatched.
func NewNotificationMessage(payload NotificationPayload, unread int64) Message {
	return Message{Type: MessageNewNotification, Notification: &payload, Count: unread}
}

// UnreadCountMessage builds the frame answering an unread count refresh.
func UnreadCountMessage(unread int64) Message {
	return Message{Type: MessageUnreadCount, Count: unread}
}

type inboundMessage struct {
	Type string `json:"type"`
}

// UnreadCounter reports a user's unread notification count from durable storage.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// Publisher pushes a message to every live connection of a user. Implementations are
// best effort and never report delivery failures to the caller.
type Publisher interface {
	PublishToUser(ctx context.Context, userID string, message Message)
}
