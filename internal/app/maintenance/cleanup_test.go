package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/charlesng35/shiftlog/internal/database/testutil"
	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/services"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time { return c.current }

type failingSweeper struct{ calls int }

func (s *failingSweeper) CloseExpired(context.Context) ([]models.ShiftSession, error) {
	s.calls++
	return nil, errors.New("sweep failed")
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	users, err := services.NewUserService(db)
	require.NoError(t, err)
	user, err := users.Create(context.Background(), services.CreateUserInput{
		Username:    username,
		Password:    "Password123!",
		IsValidated: true,
	})
	require.NoError(t, err)
	return user
}

func seedNotification(t *testing.T, db *gorm.DB, userID string, readAt *time.Time) models.Notification {
	t.Helper()
	n := models.Notification{
		UserID:  userID,
		Type:    models.NotificationComment,
		Message: "note",
		IsRead:  readAt != nil,
		ReadAt:  readAt,
	}
	require.NoError(t, db.Create(&n).Error)
	return n
}

func TestCleanupReadNotifications(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	user := seedUser(t, db, "reader")
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	oldRead := now.Add(-48 * time.Hour)
	recentRead := now.Add(-time.Hour)
	stale := seedNotification(t, db, user.ID, &oldRead)
	fresh := seedNotification(t, db, user.ID, &recentRead)
	unread := seedNotification(t, db, user.ID, nil)

	removed, err := CleanupReadNotifications(context.Background(), db, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var n models.Notification
	require.ErrorIs(t, db.First(&n, "id = ?", stale.ID).Error, gorm.ErrRecordNotFound)
	require.NoError(t, db.First(&n, "id = ?", fresh.ID).Error)
	require.NoError(t, db.First(&n, "id = ?", unread.ID).Error)

	_, err = CleanupReadNotifications(context.Background(), nil, now)
	require.Error(t, err)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fixedClock{current: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}

	shifts, err := services.NewShiftService(db, time.Hour, services.WithClock(clock.Now))
	require.NoError(t, err)

	user := seedUser(t, db, "operator")
	shift, err := shifts.Open(context.Background(), user.ID)
	require.NoError(t, err)

	readAt := clock.Now().Add(-10 * 24 * time.Hour)
	old := seedNotification(t, db, user.ID, &readAt)

	clock.current = clock.Now().Add(2 * time.Hour)

	c := NewCleaner(db, shifts,
		WithNow(clock.Now),
		WithNotificationRetention(7*24*time.Hour),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, c.RunOnce(context.Background()))

	var stored models.ShiftSession
	require.NoError(t, db.First(&stored, "id = ?", shift.ID).Error)
	require.Equal(t, models.ShiftClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)

	var n models.Notification
	require.ErrorIs(t, db.First(&n, "id = ?", old.ID).Error, gorm.ErrRecordNotFound)
}

func TestCleanerRunOnceCollectsErrors(t *testing.T) {
	sweeper := &failingSweeper{}
	c := NewCleaner(nil, sweeper, WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))))

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, sweeper.calls)
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(nil, &failingSweeper{},
		WithSweepSchedule("not a schedule"),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.Error(t, c.Start())
}

func TestCleanerStartWithoutJobs(t *testing.T) {
	c := NewCleaner(nil, nil)
	require.NoError(t, c.Start())
	<-c.Stop().Done()
}
