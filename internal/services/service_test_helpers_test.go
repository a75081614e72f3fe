package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/database/testutil"
	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/realtime"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type published struct {
	UserID  string
	Message realtime.Message
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
}

func (p *recordingPublisher) PublishToUser(_ context.Context, userID string, message realtime.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{UserID: userID, Message: message})
}

func (p *recordingPublisher) For(userID string) []realtime.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.Message
	for _, m := range p.messages {
		if m.UserID == userID {
			out = append(out, m.Message)
		}
	}
	return out
}

type workflowEnv struct {
	db            *gorm.DB
	clock         *fakeClock
	publisher     *recordingPublisher
	users         *UserService
	shifts        *ShiftService
	ledger        *LedgerService
	actions       *ActionService
	notifications *NotificationService
	workflow      *WorkflowService
}

func newWorkflowEnv(t *testing.T) *workflowEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newFakeClock()
	publisher := &recordingPublisher{}

	stack, err := NewStack(db, publisher, StackConfig{ShiftDuration: 24 * time.Hour, Clock: clock.Now})
	require.NoError(t, err)

	return &workflowEnv{
		db:            db,
		clock:         clock,
		publisher:     publisher,
		users:         stack.Users,
		shifts:        stack.Shifts,
		ledger:        stack.Ledger,
		actions:       stack.Actions,
		notifications: stack.Notifications,
		workflow:      stack.Workflow,
	}
}

// mustUser inserts a user directly; password hashing is covered by the user service tests.
func (e *workflowEnv) mustUser(t *testing.T, username, role string, validated bool) *models.User {
	t.Helper()
	user := &models.User{Username: username, Password: "unused", Role: role, IsValidated: validated}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

// mustAction opens a shift for the author when needed and logs an action without notifications.
func (e *workflowEnv) mustAction(t *testing.T, author *models.User, description string) *models.Action {
	t.Helper()
	ctx := context.Background()
	active, err := e.shifts.Active(ctx, author.ID)
	require.NoError(t, err)
	if active == nil {
		_, err = e.shifts.Open(ctx, author.ID)
		require.NoError(t, err)
	}
	action, err := e.actions.Create(ctx, CreateActionInput{
		AuthorID:    author.ID,
		Category:    models.CategoryFault,
		Description: description,
	})
	require.NoError(t, err)
	return action
}

func (e *workflowEnv) countLedger(t *testing.T, actionID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&models.Validation{}).Where("action_id = ?", actionID).Count(&count).Error)
	return count
}

func (e *workflowEnv) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, e.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error)
	return rows
}
