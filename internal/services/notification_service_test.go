package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/realtime"
	"github.com/charlesng35/shiftlog/internal/validation"
	apperrors "github.com/charlesng35/shiftlog/pkg/errors"
)

func TestNotifyPersistsThenPushes(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)

	notification, err := env.notifications.Notify(ctx, NotifyInput{
		UserID:  alice.ID,
		Type:    models.NotificationComment,
		Message: "hello",
	})
	require.NoError(t, err)
	require.False(t, notification.IsRead)

	pushed := env.publisher.For(alice.ID)
	require.Len(t, pushed, 1)
	require.Equal(t, realtime.MessageNewNotification, pushed[0].Type)
	require.EqualValues(t, 1, pushed[0].Count)
	require.Equal(t, notification.ID, pushed[0].Notification.ID)
	require.Equal(t, "💬", pushed[0].Notification.Icon)
	require.Equal(t, "hello", pushed[0].Notification.Message)

	_, err = env.notifications.Notify(ctx, NotifyInput{UserID: alice.ID, Type: models.NotificationComment})
	require.Error(t, err)
}

func TestOnValidationSubmittedRejectionMessage(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "compressor")

	result, err := env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusRejected, "X")
	require.NoError(t, err)

	notification, err := env.notifications.OnValidationSubmitted(ctx, &result.Entry, &result.Action)
	require.NoError(t, err)
	require.NotNil(t, notification)
	require.Equal(t, alice.ID, notification.UserID)
	require.Equal(t, models.NotificationRejection, notification.Type)
	require.Contains(t, notification.Message, "bob")
	require.Contains(t, notification.Message, "X")
	require.Equal(t, action.ID, *notification.ActionID)
	require.Equal(t, result.Entry.ID, *notification.ValidationID)
}

func TestOnValidationSubmittedLoadsValidatorWhenMissing(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleValidator, true)
	action := env.mustAction(t, alice, "compressor")

	result, err := env.ledger.SubmitComment(ctx, action.ID, bob.ID, "call me")
	require.NoError(t, err)
	entry := result.Entry
	entry.Validator = nil

	notification, err := env.notifications.OnValidationSubmitted(ctx, &entry, &result.Action)
	require.NoError(t, err)
	require.Equal(t, models.NotificationComment, notification.Type)
	require.True(t, strings.HasPrefix(notification.Message, "bob commented on your action of"))
	require.Contains(t, notification.Message, "\n\nComment: call me")
}

func TestOnValidationSubmittedSkipsSelfValidation(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, bob, "mine")

	result, err := env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)

	notification, err := env.notifications.OnValidationSubmitted(ctx, &result.Entry, &result.Action)
	require.NoError(t, err)
	require.Nil(t, notification)
	require.Empty(t, env.notificationsFor(t, bob.ID))
	require.Empty(t, env.publisher.For(bob.ID))
}

func TestOnActionCreatedNotifiesValidatedAdminsExceptAuthor(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	author := env.mustUser(t, "author", models.RoleAdmin, true)
	admin1 := env.mustUser(t, "admin1", models.RoleAdmin, true)
	admin2 := env.mustUser(t, "admin2", models.RoleAdmin, true)
	pending := env.mustUser(t, "pending-admin", models.RoleAdmin, false)
	validator := env.mustUser(t, "validator", models.RoleValidator, true)
	operator := env.mustUser(t, "operator", models.RoleUser, true)

	action := env.mustAction(t, author, strings.Repeat("a", 150))

	created, err := env.notifications.OnActionCreated(ctx, action)
	require.NoError(t, err)
	require.Len(t, created, 2)

	for _, admin := range []*models.User{admin1, admin2} {
		rows := env.notificationsFor(t, admin.ID)
		require.Len(t, rows, 1)
		require.Equal(t, models.NotificationNewAction, rows[0].Type)
		require.Contains(t, rows[0].Message, "author")
		require.Contains(t, rows[0].Message, strings.Repeat("a", 100)+"...")
		require.NotContains(t, rows[0].Message, strings.Repeat("a", 101))
	}
	for _, other := range []*models.User{author, pending, validator, operator} {
		require.Empty(t, env.notificationsFor(t, other.ID), other.Username)
	}
}

type failingUserDirectory struct {
	UserDirectory
	admins []models.User
}

func (f failingUserDirectory) ListValidatedAdmins(context.Context) ([]models.User, error) {
	return f.admins, nil
}

func TestOnActionCreatedContinuesPastRecipientFailures(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	author := env.mustUser(t, "author", models.RoleUser, true)
	admin := env.mustUser(t, "admin", models.RoleAdmin, true)
	action := env.mustAction(t, author, "short")
	action.Author = author

	// The first recipient has no user row, so its insert violates the foreign key.
	dir := failingUserDirectory{
		UserDirectory: env.users,
		admins:        []models.User{{ID: "ghost", Role: models.RoleAdmin, IsValidated: true}, *admin},
	}
	svc, err := NewNotificationService(env.db, dir, env.publisher, NotificationConfig{})
	require.NoError(t, err)

	created, err := svc.OnActionCreated(ctx, action)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ghost")
	require.Len(t, created, 1)
	require.Equal(t, admin.ID, created[0].UserID)
}

func TestComposeMessages(t *testing.T) {
	at := time.Date(2026, 1, 9, 14, 5, 0, 0, time.UTC)

	require.Equal(t, "Your action of 09/01/2026 at 14:05 was validated by bob.",
		ComposeValidationMessage(models.NotificationValidation, at, "bob", ""))
	require.Equal(t, "Your action of 09/01/2026 at 14:05 was rejected by bob.\n\nComment: no cause",
		ComposeValidationMessage(models.NotificationRejection, at, "bob", " no cause "))
	require.Equal(t, "bob commented on your action of 09/01/2026 at 14:05.\n\nComment: ok",
		ComposeValidationMessage(models.NotificationComment, at, "bob", "ok"))

	require.Equal(t, "New action created by alice on 09/01/2026 at 14:05.\nDescription: short",
		ComposeNewActionMessage("alice", at, "short", 100))
	require.Equal(t, "New action created by alice on 09/01/2026 at 14:05.\nDescription: éé...",
		ComposeNewActionMessage("alice", at, "éééé", 2))
}

func TestUnreadCountIsDurableAndIdempotent(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)

	for i := 0; i < 3; i++ {
		_, err := env.notifications.Notify(ctx, NotifyInput{UserID: alice.ID, Type: models.NotificationComment, Message: "n"})
		require.NoError(t, err)
	}

	first, err := env.notifications.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	second, err := env.notifications.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, first)
	require.Equal(t, first, second)

	updated, err := env.notifications.MarkAllRead(ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, updated)

	count, err := env.notifications.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	pushed := env.publisher.For(alice.ID)
	last := pushed[len(pushed)-1]
	require.Equal(t, realtime.MessageUnreadCount, last.Type)
	require.Zero(t, last.Count)
}

func TestNotificationReadAndDeleteAreScopedToRecipient(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	mallory := env.mustUser(t, "mallory", models.RoleUser, true)

	notification, err := env.notifications.Notify(ctx, NotifyInput{UserID: alice.ID, Type: models.NotificationValidation, Message: "ok"})
	require.NoError(t, err)

	_, err = env.notifications.MarkRead(ctx, mallory.ID, notification.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.ErrorIs(t, env.notifications.Delete(ctx, mallory.ID, notification.ID), apperrors.ErrNotFound)

	read, err := env.notifications.MarkRead(ctx, alice.ID, notification.ID)
	require.NoError(t, err)
	require.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)
	require.Equal(t, "✓", read.Icon)

	// Marking twice is harmless.
	_, err = env.notifications.MarkRead(ctx, alice.ID, notification.ID)
	require.NoError(t, err)

	require.NoError(t, env.notifications.Delete(ctx, alice.ID, notification.ID))
	require.ErrorIs(t, env.notifications.Delete(ctx, alice.ID, notification.ID), apperrors.ErrNotFound)
}

func TestListForUserFilters(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)

	first, err := env.notifications.Notify(ctx, NotifyInput{UserID: alice.ID, Type: models.NotificationValidation, Message: "a"})
	require.NoError(t, err)
	_, err = env.notifications.Notify(ctx, NotifyInput{UserID: alice.ID, Type: models.NotificationRejection, Message: "b"})
	require.NoError(t, err)
	_, err = env.notifications.Notify(ctx, NotifyInput{UserID: alice.ID, Type: models.NotificationRejection, Message: "c"})
	require.NoError(t, err)
	_, err = env.notifications.MarkRead(ctx, alice.ID, first.ID)
	require.NoError(t, err)

	all, total, err := env.notifications.ListForUser(ctx, ListNotificationsInput{UserID: alice.ID})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, all, 3)

	rejections, total, err := env.notifications.ListForUser(ctx, ListNotificationsInput{UserID: alice.ID, Type: models.NotificationRejection})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, rejections, 2)

	unread := true
	items, total, err := env.notifications.ListForUser(ctx, ListNotificationsInput{UserID: alice.ID, Unread: &unread})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	for _, item := range items {
		require.False(t, item.IsRead)
	}

	page, total, err := env.notifications.ListForUser(ctx, ListNotificationsInput{UserID: alice.ID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, page, 1)

	_, _, err = env.notifications.ListForUser(ctx, ListNotificationsInput{})
	require.Error(t, err)
}

func TestNotificationsSurviveWithoutPublisher(t *testing.T) {
	env := newWorkflowEnv(t)
	alice := env.mustUser(t, "alice", models.RoleUser, true)

	svc, err := NewNotificationService(env.db, env.users, nil, NotificationConfig{DescriptionPreview: 10})
	require.NoError(t, err)

	_, err = svc.Notify(context.Background(), NotifyInput{UserID: alice.ID, Type: models.NotificationComment, Message: "quiet"})
	require.NoError(t, err)
	require.Len(t, env.notificationsFor(t, alice.ID), 1)
}

func TestNewNotificationServiceRequiresDependencies(t *testing.T) {
	_, err := NewNotificationService(nil, nil, nil, NotificationConfig{})
	require.Error(t, err)

	env := newWorkflowEnv(t)
	_, err = NewNotificationService(env.db, nil, nil, NotificationConfig{})
	require.Error(t, err)
}
