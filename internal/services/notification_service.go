package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/realtime"
	"github.com/charlesng35/shiftlog/internal/validation"
	apperrors "github.com/charlesng35/shiftlog/pkg/errors"
	"github.com/charlesng35/shiftlog/pkg/logger"
	"github.com/charlesng35/shiftlog/pkg/metrics"
)

// DefaultDescriptionPreview is how many characters of a description new-action
// notifications quote.
const DefaultDescriptionPreview = 100

const timestampLayout = "02/01/2006 at 15:04"

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Message      string     `json:"message"`
	Icon         string     `json:"icon"`
	URL          string     `json:"url"`
	IsRead       bool       `json:"is_read"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	ActionID     *string    `json:"action_id,omitempty"`
	ValidationID *string    `json:"validation_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NotifyInput describes a notification to persist and push.
type NotifyInput struct {
	UserID       string
	Type         string
	Message      string
	ActionID     *string
	ValidationID *string
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID string
	Type   string
	Unread *bool
	Limit  int
	Offset int
}

// NotificationConfig tunes message composition.
type NotificationConfig struct {
	DescriptionPreview int
}

// NotificationService persists notifications and pushes them to live connections.
// Persistence is authoritative; pushes are best effort and never fail a call.
type NotificationService struct {
	db        *gorm.DB
	users     UserDirectory
	publisher realtime.Publisher
	preview   int
	log       *zap.Logger
}

// NewNotificationService constructs a NotificationService. publisher may be nil, in
// which case notifications are only persisted.
func NewNotificationService(db *gorm.DB, users UserDirectory, publisher realtime.Publisher, cfg NotificationConfig) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	if users == nil {
		return nil, errors.New("notification service: user directory is required")
	}
	preview := cfg.DescriptionPreview
	if preview <= 0 {
		preview = DefaultDescriptionPreview
	}
	return &NotificationService{
		db:        db,
		users:     users,
		publisher: publisher,
		preview:   preview,
		log:       logger.WithModule("notifications"),
	}, nil
}

// Notify persists a notification and then pushes it with the recipient's unread count.
func (s *NotificationService) Notify(ctx context.Context, input NotifyInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: recipient is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, errors.New("notification service: type is required")
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, errors.New("notification service: message is required")
	}

	notification := models.Notification{
		UserID:       userID,
		Type:         notificationType,
		Message:      message,
		ActionID:     input.ActionID,
		ValidationID: input.ValidationID,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(notificationType).Inc()

	s.pushNotification(ctx, &notification)
	return &notification, nil
}

// OnValidationSubmitted notifies the action author about a ledger entry. Entries made
// by the author themselves produce nothing and return nil.
func (s *NotificationService) OnValidationSubmitted(ctx context.Context, entry *models.Validation, action *models.Action) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	if entry == nil || action == nil {
		return nil, errors.New("notification service: entry and action are required")
	}
	if entry.ValidatorID == action.AuthorID {
		return nil, nil
	}

	validator := entry.Validator
	if validator == nil {
		loaded, err := s.users.GetUser(ctx, entry.ValidatorID)
		if err != nil {
			return nil, fmt.Errorf("notification service: load validator: %w", err)
		}
		validator = loaded
	}

	status, err := validation.ParseStatus(entry.Outcome)
	if err != nil {
		status = validation.StatusPending
	}
	notificationType := validation.NotificationType(status)

	actionID := action.ID
	entryID := entry.ID
	return s.Notify(ctx, NotifyInput{
		UserID:       action.AuthorID,
		Type:         notificationType,
		Message:      ComposeValidationMessage(notificationType, action.CreatedAt, validator.DisplayName(), entry.Comment),
		ActionID:     &actionID,
		ValidationID: &entryID,
	})
}

// OnActionCreated notifies every validated administrator except the author. A failure for
// one recipient does not stop the others; failures are returned combined.
func (s *NotificationService) OnActionCreated(ctx context.Context, action *models.Action) ([]models.Notification, error) {
	ctx = ensureContext(ctx)
	if action == nil {
		return nil, errors.New("notification service: action is required")
	}

	author := action.Author
	if author == nil {
		loaded, err := s.users.GetUser(ctx, action.AuthorID)
		if err != nil {
			return nil, fmt.Errorf("notification service: load author: %w", err)
		}
		author = loaded
	}

	admins, err := s.users.ListValidatedAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("notification service: list recipients: %w", err)
	}

	message := ComposeNewActionMessage(author.DisplayName(), action.CreatedAt, action.Description, s.preview)
	actionID := action.ID

	var (
		created []models.Notification
		errs    error
	)
	for _, admin := range admins {
		if admin.ID == action.AuthorID {
			continue
		}
		notification, err := s.Notify(ctx, NotifyInput{
			UserID:   admin.ID,
			Type:     models.NotificationNewAction,
			Message:  message,
			ActionID: &actionID,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recipient %s: %w", admin.ID, err))
			continue
		}
		created = append(created, *notification)
	}
	return created, errs
}

// ListForUser returns notifications for the user, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, int64, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, 0, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if notificationType := strings.TrimSpace(input.Type); notificationType != "" {
		query = query.Where("type = ?", notificationType)
	}
	if input.Unread != nil {
		query = query.Where("is_read = ?", !*input.Unread)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count notifications: %w", err)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return mapNotificationRows(rows), total, nil
}

// MarkRead sets the read flag on one of the user's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Take(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	if !notification.IsRead {
		now := time.Now().UTC()
		if err := s.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ?", notification.ID).
			Updates(map[string]any{
				"is_read": true,
				"read_at": now,
			}).Error; err != nil {
			return nil, fmt.Errorf("notification service: mark read: %w", err)
		}
		notification.IsRead = true
		notification.ReadAt = &now
		s.pushUnreadCount(ctx, userID)
	}

	dto := mapNotification(notification)
	return &dto, nil
}

// MarkAllRead marks all of the user's notifications read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}

	s.pushUnreadCount(ctx, userID)
	return result.RowsAffected, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.pushUnreadCount(ctx, userID)
	return nil
}

// UnreadCount counts the user's unread notifications in storage.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: unread count: %w", err)
	}
	return count, nil
}

func (s *NotificationService) pushNotification(ctx context.Context, notification *models.Notification) {
	if s.publisher == nil {
		return
	}
	count, err := s.UnreadCount(ctx, notification.UserID)
	if err != nil {
		s.log.Warn("skipping push, unread count failed", zap.String("user_id", notification.UserID), zap.Error(err))
		return
	}
	s.publisher.PublishToUser(ctx, notification.UserID, realtime.NewNotificationMessage(payloadFor(notification), count))
}

func (s *NotificationService) pushUnreadCount(ctx context.Context, userID string) {
	if s.publisher == nil {
		return
	}
	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		s.log.Warn("skipping push, unread count failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.publisher.PublishToUser(ctx, userID, realtime.UnreadCountMessage(count))
}

// ComposeValidationMessage renders the text sent to an author about a ledger entry.
func ComposeValidationMessage(notificationType string, actionCreated time.Time, validator, comment string) string {
	when := actionCreated.UTC().Format(timestampLayout)

	var message string
	switch notificationType {
	case models.NotificationValidation:
		message = fmt.Sprintf("Your action of %s was validated by %s.", when, validator)
	case models.NotificationRejection:
		message = fmt.Sprintf("Your action of %s was rejected by %s.", when, validator)
	default:
		message = fmt.Sprintf("%s commented on your action of %s.", validator, when)
	}

	if comment = strings.TrimSpace(comment); comment != "" {
		message += "\n\nComment: " + comment
	}
	return message
}

// ComposeNewActionMessage renders the text sent to administrators about a new action.
func ComposeNewActionMessage(author string, created time.Time, description string, preview int) string {
	return fmt.Sprintf("New action created by %s on %s.\nDescription: %s",
		author,
		created.UTC().Format(timestampLayout),
		truncateRunes(strings.TrimSpace(description), preview),
	)
}

func payloadFor(notification *models.Notification) realtime.NotificationPayload {
	return realtime.NotificationPayload{
		ID:      notification.ID,
		Type:    notification.Type,
		Message: notification.Message,
		Date:    notification.CreatedAt,
		Icon:    notification.Icon(),
		URL:     notification.TargetURL(),
	}
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for i := range rows {
		items = append(items, mapNotification(rows[i]))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:           row.ID,
		Type:         row.Type,
		Message:      row.Message,
		Icon:         row.Icon(),
		URL:          row.TargetURL(),
		IsRead:       row.IsRead,
		ReadAt:       row.ReadAt,
		ActionID:     row.ActionID,
		ValidationID: row.ValidationID,
		CreatedAt:    row.CreatedAt,
	}
}
