package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/realtime"
)

// StackConfig tunes the services built by NewStack.
type StackConfig struct {
	ShiftDuration      time.Duration
	DescriptionPreview int
	Clock              func() time.Time
}

// Stack holds every workflow service wired against one database and publisher.
type Stack struct {
	Users         *UserService
	Shifts        *ShiftService
	Ledger        *LedgerService
	Actions       *ActionService
	Notifications *NotificationService
	Workflow      *WorkflowService
}

// NewStack builds the services in dependency order. publisher may be nil.
func NewStack(db *gorm.DB, publisher realtime.Publisher, cfg StackConfig) (*Stack, error) {
	var opts []Option
	if cfg.Clock != nil {
		opts = append(opts, WithClock(cfg.Clock))
	}

	users, err := NewUserService(db, opts...)
	if err != nil {
		return nil, err
	}
	shifts, err := NewShiftService(db, cfg.ShiftDuration, opts...)
	if err != nil {
		return nil, err
	}
	ledger, err := NewLedgerService(db, users, shifts, opts...)
	if err != nil {
		return nil, err
	}
	actions, err := NewActionService(db, shifts, ledger)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationService(db, users, publisher, NotificationConfig{DescriptionPreview: cfg.DescriptionPreview})
	if err != nil {
		return nil, err
	}
	workflow, err := NewWorkflowService(actions, ledger, notifications)
	if err != nil {
		return nil, err
	}

	return &Stack{
		Users:         users,
		Shifts:        shifts,
		Ledger:        ledger,
		Actions:       actions,
		Notifications: notifications,
		Workflow:      workflow,
	}, nil
}
