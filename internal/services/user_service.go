package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/pkg/crypto"
	apperrors "github.com/charlesng35/shiftlog/pkg/errors"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)

// UserDirectory answers identity and capability questions for the workflow.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListValidatedAdmins(ctx context.Context) ([]models.User, error)
}

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Role        string
	IsValidated bool
}

// UserService manages accounts, their role and their validation flag.
type UserService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, opts ...Option) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	cfg := buildOptions(opts)
	return &UserService{db: db, now: cfg.now}, nil
}

// Create provisions a new user with a hashed password.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = models.RoleUser
	}
	if !validRole(role) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", role))
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username:    username,
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		Password:    hashed,
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		Role:        role,
		IsValidated: input.IsValidated,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("username already exists")
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}
	return user, nil
}

// GetUser loads a user by identifier.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// GetByUsername loads a user by login name.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "username = ?", strings.TrimSpace(username)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// ListValidatedAdmins returns administrators whose account has been validated.
func (s *UserService) ListValidatedAdmins(ctx context.Context) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("role = ? AND is_validated = ?", models.RoleAdmin, true).
		Order("username ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: list admins: %w", err)
	}
	return users, nil
}

// List returns accounts ordered by username. pendingOnly restricts the result to
// accounts awaiting validation.
func (s *UserService) List(ctx context.Context, pendingOnly bool) ([]models.User, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Order("username ASC")
	if pendingOnly {
		query = query.Where("is_validated = ?", false)
	}

	users := make([]models.User, 0)
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: list users: %w", err)
	}
	return users, nil
}

// SetValidated approves or suspends an account.
func (s *UserService) SetValidated(ctx context.Context, id string, validated bool) (*models.User, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("is_validated", validated)
	if result.Error != nil {
		return nil, fmt.Errorf("user service: set validated: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}

// SetRole changes the user's role.
func (s *UserService) SetRole(ctx context.Context, id, role string) (*models.User, error) {
	ctx = ensureContext(ctx)

	role = strings.TrimSpace(role)
	if !validRole(role) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", role))
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("role", role)
	if result.Error != nil {
		return nil, fmt.Errorf("user service: set role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}

// Authenticate verifies credentials and records the login time.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(user).UpdateColumn("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	user.LastLoginAt = &now
	return user, nil
}

func validRole(role string) bool {
	switch role {
	case models.RoleAdmin, models.RoleValidator, models.RoleUser:
		return true
	default:
		return false
	}
}
