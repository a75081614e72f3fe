package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles recognised by the platform.
const (
	RoleAdmin     = "admin"
	RoleValidator = "validator"
	RoleUser      = "user"
)

// User is a shift operator, validator or administrator. Accounts start unvalidated and
// must be approved by an administrator before they can use the platform.
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	Email       string `gorm:"index" json:"email"`
	Password    string `gorm:"not null" json:"-"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `gorm:"type:varchar(20);not null;default:'user';index" json:"role"`
	IsValidated bool   `gorm:"default:false;index" json:"is_validated"`

	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CanValidate reports whether the user may append validation ledger entries.
func (u *User) CanValidate() bool {
	return u != nil && (u.Role == RoleAdmin || u.Role == RoleValidator)
}

// DisplayName prefers the username since that is what operators recognise on the floor.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	return u.Username
}
