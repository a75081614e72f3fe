package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/pkg/logger"
)

const (
	defaultSweepSpec     = "@every 5m"
	defaultRetentionSpec = "@daily"
)

// ShiftSweeper closes shift sessions whose deadline has passed.
type ShiftSweeper interface {
	CloseExpired(ctx context.Context) ([]models.ShiftSession, error)
}

// Cleaner coordinates background maintenance: closing expired shift sessions and
// pruning notifications that were read long ago.
type Cleaner struct {
	db        *gorm.DB
	shifts    ShiftSweeper
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention time.Duration

	sweepSchedule     string
	retentionSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithNotificationRetention keeps read notifications for d before deleting them.
// Zero disables pruning.
func WithNotificationRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d >= 0 {
			cleaner.retention = d
		}
	}
}

// WithSweepSchedule overrides the cron specification for the shift sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithRetentionSchedule overrides the cron specification for notification pruning.
func WithRetentionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.retentionSchedule = spec
		}
	}
}

// NewCleaner builds a Cleaner. Either dependency may be nil to disable its job.
func NewCleaner(db *gorm.DB, shifts ShiftSweeper, opts ...Option) *Cleaner {
	c := &Cleaner{
		db:                db,
		shifts:            shifts,
		cron:              cron.New(),
		now:               time.Now,
		log:               logger.WithModule("maintenance"),
		sweepSchedule:     defaultSweepSpec,
		retentionSchedule: defaultRetentionSpec,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start registers the configured jobs and starts the scheduler.
func (c *Cleaner) Start() error {
	if c.shifts == nil && (c.db == nil || c.retention <= 0) {
		return nil
	}

	if c.shifts != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
			if _, err := c.shifts.CloseExpired(context.Background()); err != nil {
				c.log.Warn("shift sweep failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule shift sweep: %w", err)
		}
	}

	if c.db != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.retentionSchedule, func() {
			removed, err := CleanupReadNotifications(context.Background(), c.db, c.now().Add(-c.retention))
			if err != nil {
				c.log.Warn("notification cleanup failed", zap.Error(err))
				return
			}
			if removed > 0 {
				c.log.Info("pruned read notifications", zap.Int64("count", removed))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule notification cleanup: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and reports the combined errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.shifts != nil {
		if _, err := c.shifts.CloseExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil && c.retention > 0 {
		if _, err := CleanupReadNotifications(ctx, c.db, c.now().Add(-c.retention)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupReadNotifications deletes notifications that were read before the cutoff.
// Unread notifications are never removed.
func CleanupReadNotifications(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup notifications: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("is_read = ? AND read_at IS NOT NULL AND read_at < ?", true, before).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}
