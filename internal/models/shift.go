package models

import "time"

// Shift session states.
const (
	ShiftOpen   = "open"
	ShiftClosed = "closed"
)

// ShiftSession is the bounded service window during which a user may log actions.
type ShiftSession struct {
	BaseModel

	UserID   string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User     *User      `gorm:"constraint:OnDelete:CASCADE;" json:"user,omitempty"`
	OpenedAt time.Time  `gorm:"not null" json:"opened_at"`
	ClosesAt time.Time  `gorm:"not null;index" json:"closes_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	Status   string     `gorm:"type:varchar(10);not null;default:'open';index" json:"status"`
}

// TableName keeps the table name short.
func (ShiftSession) TableName() string {
	return "shifts"
}

// IsActive reports whether the shift is open and has not passed its closing deadline.
func (s *ShiftSession) IsActive(now time.Time) bool {
	return s != nil && s.Status == ShiftOpen && now.Before(s.ClosesAt)
}

// IsExpired reports whether the closing deadline has passed.
func (s *ShiftSession) IsExpired(now time.Time) bool {
	return s != nil && now.After(s.ClosesAt)
}

// Remaining returns the time left before the shift closes; zero when closed or expired.
func (s *ShiftSession) Remaining(now time.Time) time.Duration {
	if s == nil || s.Status != ShiftOpen {
		return 0
	}
	if left := s.ClosesAt.Sub(now); left > 0 {
		return left
	}
	return 0
}
