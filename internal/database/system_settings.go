package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/pkg/crypto"
)

// JWTSecretSetting stores the generated token signing secret when none is configured.
const JWTSecretSetting = "auth.jwt_secret"

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// EnsureJWTSecret returns the configured secret when present. Otherwise it loads the
// persisted secret, generating and storing a random one on first use so that tokens
// survive restarts.
func EnsureJWTSecret(ctx context.Context, db *gorm.DB, configured string) (string, error) {
	if secret := strings.TrimSpace(configured); secret != "" {
		return secret, nil
	}

	current, err := GetSystemSetting(ctx, db, JWTSecretSetting)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(current) != "" {
		return current, nil
	}

	secret, err := crypto.GenerateToken(32)
	if err != nil {
		return "", fmt.Errorf("system settings: generate jwt secret: %w", err)
	}
	if err := UpsertSystemSetting(ctx, db, JWTSecretSetting, secret); err != nil {
		return "", err
	}
	return secret, nil
}
