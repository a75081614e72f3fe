package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/models"
	apperrors "github.com/charlesng35/shiftlog/pkg/errors"
	"github.com/charlesng35/shiftlog/pkg/logger"
	"github.com/charlesng35/shiftlog/pkg/metrics"
)

// DefaultShiftDuration is the length of a service session.
const DefaultShiftDuration = 24 * time.Hour

var (
	// ErrNoActiveShift is returned when an operation needs an open service session.
	ErrNoActiveShift = apperrors.New("shift.none_active", "you need an open service session to log actions", http.StatusConflict)
	// ErrShiftAlreadyOpen is returned when opening a second concurrent session.
	ErrShiftAlreadyOpen = apperrors.New("shift.already_open", "a service session is already open", http.StatusConflict)
)

// ShiftLookup resolves service sessions by id.
type ShiftLookup interface {
	GetShift(ctx context.Context, id string) (*models.ShiftSession, error)
}

// ShiftService manages service sessions. A user has at most one open session.
type ShiftService struct {
	db       *gorm.DB
	duration time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewShiftService constructs a ShiftService. A non-positive duration falls back to 24h.
func NewShiftService(db *gorm.DB, duration time.Duration, opts ...Option) (*ShiftService, error) {
	if db == nil {
		return nil, errors.New("shift service: db is required")
	}
	if duration <= 0 {
		duration = DefaultShiftDuration
	}
	cfg := buildOptions(opts)
	return &ShiftService{
		db:       db,
		duration: duration,
		now:      cfg.now,
		log:      logger.WithModule("shifts"),
	}, nil
}

// Open starts a new session for the user. A leftover open session that has already
// expired is closed first.
func (s *ShiftService) Open(ctx context.Context, userID string) (*models.ShiftSession, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	now := s.now()
	var created models.ShiftSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []models.ShiftSession
		if err := tx.Where("user_id = ? AND status = ?", userID, models.ShiftOpen).Find(&open).Error; err != nil {
			return err
		}
		for i := range open {
			if open[i].IsActive(now) {
				return ErrShiftAlreadyOpen
			}
			if err := closeShift(tx, &open[i], open[i].ClosesAt); err != nil {
				return err
			}
			metrics.ShiftsClosed.WithLabelValues("expired").Inc()
		}

		created = models.ShiftSession{
			UserID:   userID,
			OpenedAt: now,
			ClosesAt: now.Add(s.duration),
			Status:   models.ShiftOpen,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("shift service: open: %w", err)
	}

	s.log.Info("service session opened", zap.String("user_id", userID), zap.String("shift_id", created.ID))
	return &created, nil
}

// Close ends the user's open session.
func (s *ShiftService) Close(ctx context.Context, userID string) (*models.ShiftSession, error) {
	ctx = ensureContext(ctx)

	var shift models.ShiftSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.ShiftOpen).
		Order("opened_at DESC").
		Take(&shift).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveShift
	}
	if err != nil {
		return nil, fmt.Errorf("shift service: load open shift: %w", err)
	}

	now := s.now()
	closedAt := now
	reason := "manual"
	if shift.IsExpired(now) {
		closedAt = shift.ClosesAt
		reason = "expired"
	}
	if err := closeShift(s.db.WithContext(ctx), &shift, closedAt); err != nil {
		return nil, fmt.Errorf("shift service: close: %w", err)
	}
	metrics.ShiftsClosed.WithLabelValues(reason).Inc()
	return &shift, nil
}

// Active returns the user's open and unexpired session, or nil when there is none.
func (s *ShiftService) Active(ctx context.Context, userID string) (*models.ShiftSession, error) {
	ctx = ensureContext(ctx)

	now := s.now()
	var shift models.ShiftSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND closes_at > ?", userID, models.ShiftOpen, now).
		Order("opened_at DESC").
		Take(&shift).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shift service: active: %w", err)
	}
	return &shift, nil
}

// GetShift loads a session by id.
func (s *ShiftService) GetShift(ctx context.Context, id string) (*models.ShiftSession, error) {
	ctx = ensureContext(ctx)

	var shift models.ShiftSession
	err := s.db.WithContext(ctx).Take(&shift, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("shift service: get: %w", err)
	}
	return &shift, nil
}

// CloseExpired closes every open session whose deadline has passed and returns them.
func (s *ShiftService) CloseExpired(ctx context.Context) ([]models.ShiftSession, error) {
	ctx = ensureContext(ctx)

	now := s.now()
	var expired []models.ShiftSession
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("status = ? AND closes_at <= ?", models.ShiftOpen, now).
		Order("closes_at ASC").
		Find(&expired).Error; err != nil {
		return nil, fmt.Errorf("shift service: list expired: %w", err)
	}

	for i := range expired {
		if err := closeShift(s.db.WithContext(ctx), &expired[i], expired[i].ClosesAt); err != nil {
			return expired[:i], fmt.Errorf("shift service: close expired %s: %w", expired[i].ID, err)
		}
		metrics.ShiftsClosed.WithLabelValues("expired").Inc()
	}

	if len(expired) > 0 {
		s.log.Info("closed expired service sessions", zap.Int("count", len(expired)))
	}
	return expired, nil
}

// closeShift only transitions sessions that are still open so concurrent closes are harmless.
func closeShift(tx *gorm.DB, shift *models.ShiftSession, closedAt time.Time) error {
	if err := tx.Model(&models.ShiftSession{}).
		Where("id = ? AND status = ?", shift.ID, models.ShiftOpen).
		Updates(map[string]any{
			"status":    models.ShiftClosed,
			"closed_at": closedAt,
		}).Error; err != nil {
		return err
	}
	shift.Status = models.ShiftClosed
	shift.ClosedAt = &closedAt
	return nil
}
