package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/pkg/crypto"
)

// SeedOptions controls the bootstrap administrator created on first start.
type SeedOptions struct {
	AdminUsername string
	AdminPassword string
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ShiftSession{},
		&models.Action{},
		&models.Validation{},
		&models.Notification{},
		&models.SystemSetting{},
	)
}

// SeedData creates the bootstrap administrator when no administrator exists yet.
// The account is created validated so the first operator can approve everyone else.
func SeedData(db *gorm.DB, opts SeedOptions) error {
	username := strings.TrimSpace(opts.AdminUsername)
	if username == "" || opts.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var existing models.User
	err := db.Where("username = ?", username).Take(&existing).Error
	if err == nil {
		return fmt.Errorf("bootstrap admin %q already exists with role %q", username, existing.Role)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := crypto.HashPassword(opts.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	admin := models.User{
		Username:    username,
		Password:    hash,
		Role:        models.RoleAdmin,
		IsValidated: true,
	}
	return db.Create(&admin).Error
}
