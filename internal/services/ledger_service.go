package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/shiftlog/internal/auditctx"
	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/validation"
	apperrors "github.com/charlesng35/shiftlog/pkg/errors"
	"github.com/charlesng35/shiftlog/pkg/logger"
	"github.com/charlesng35/shiftlog/pkg/metrics"
)

const maxAppendAttempts = 3

// latestEntrySQL selects the authoritative ledger row of the outer action.
const latestEntrySQL = "SELECT MAX(v2.sequence) FROM validations v2 WHERE v2.action_id = "

// LedgerResult is returned for every accepted ledger submission.
type LedgerResult struct {
	Entry    models.Validation `json:"entry"`
	Action   models.Action     `json:"-"`
	Status   validation.Status `json:"status"`
	Warnings []string          `json:"warnings,omitempty"`
}

// LedgerService appends validation decisions and derives approval status from them.
type LedgerService struct {
	db     *gorm.DB
	users  UserDirectory
	shifts ShiftLookup
	now    func() time.Time
	log    *zap.Logger
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(db *gorm.DB, users UserDirectory, shifts ShiftLookup, opts ...Option) (*LedgerService, error) {
	if db == nil {
		return nil, errors.New("ledger service: db is required")
	}
	if users == nil {
		return nil, errors.New("ledger service: user directory is required")
	}
	if shifts == nil {
		return nil, errors.New("ledger service: shift lookup is required")
	}
	cfg := buildOptions(opts)
	return &LedgerService{
		db:     db,
		users:  users,
		shifts: shifts,
		now:    cfg.now,
		log:    logger.WithModule("ledger"),
	}, nil
}

// SubmitValidation records a validate or reject decision.
func (s *LedgerService) SubmitValidation(ctx context.Context, actionID, validatorID string, outcome validation.Status, comment string) (*LedgerResult, error) {
	return s.submit(ctx, actionID, validatorID, outcome, comment, validation.Decide)
}

// SubmitComment records a comment that keeps the action's current status.
func (s *LedgerService) SubmitComment(ctx context.Context, actionID, validatorID, comment string) (*LedgerResult, error) {
	return s.submit(ctx, actionID, validatorID, "", comment, validation.DecideComment)
}

func (s *LedgerService) submit(
	ctx context.Context,
	actionID, validatorID string,
	outcome validation.Status,
	comment string,
	decide func(validation.Submission) (validation.Decision, error),
) (*LedgerResult, error) {
	ctx = ensureContext(ctx)

	validator, err := s.users.GetUser(ctx, validatorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, s.refuse(validation.ErrNotValidator)
		}
		return nil, err
	}

	var result *LedgerResult
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		result, err = s.appendOnce(ctx, actionID, validator, outcome, comment, decide)
		if err == nil || !isUniqueConstraintError(err) {
			break
		}
		s.log.Debug("ledger sequence conflict, retrying", zap.String("action_id", actionID), zap.Int("attempt", attempt))
	}
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, s.refuse(appErr)
		}
		return nil, fmt.Errorf("ledger service: append: %w", err)
	}

	metrics.LedgerEntries.WithLabelValues(string(result.Entry.Outcome), result.Entry.Kind).Inc()
	fields := append([]zap.Field{
		zap.String("action_id", actionID),
		zap.String("validator_id", validator.ID),
		zap.Int64("sequence", result.Entry.Sequence),
		zap.String("outcome", result.Entry.Outcome),
	}, auditctx.Fields(ctx)...)
	if len(result.Warnings) > 0 {
		s.log.Warn("ledger entry recorded with warnings", append(fields, zap.Strings("warnings", result.Warnings))...)
	} else {
		s.log.Info("ledger entry recorded", fields...)
	}
	return result, nil
}

// appendOnce reads the latest entry and appends the next one in a single transaction.
// Timestamps are clamped so that sequence order and timestamp order always agree.
func (s *LedgerService) appendOnce(
	ctx context.Context,
	actionID string,
	validator *models.User,
	outcome validation.Status,
	comment string,
	decide func(validation.Submission) (validation.Decision, error),
) (*LedgerResult, error) {
	var result LedgerResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var action models.Action
		if err := tx.Take(&action, "id = ?", actionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		latest, err := latestEntry(tx, action.ID)
		if err != nil {
			return err
		}
		current := validation.StatusPending
		if latest != nil {
			current = validation.FromModel(*latest).Status
		}

		decision, err := decide(validation.Submission{
			ValidatorID:   validator.ID,
			ValidatorRole: validator.Role,
			AuthorID:      action.AuthorID,
			Outcome:       outcome,
			Comment:       comment,
			Current:       current,
		})
		if err != nil {
			return err
		}

		entry := models.Validation{
			ActionID:    action.ID,
			ValidatorID: validator.ID,
			Outcome:     string(decision.Status),
			Kind:        string(decision.Kind),
			Comment:     decision.Comment,
			Sequence:    1,
		}
		entry.CreatedAt = s.now()
		if latest != nil {
			entry.Sequence = latest.Sequence + 1
			if entry.CreatedAt.Before(latest.CreatedAt) {
				entry.CreatedAt = latest.CreatedAt
			}
		}
		entry.UpdatedAt = entry.CreatedAt

		if err := tx.Omit(clause.Associations).Create(&entry).Error; err != nil {
			return err
		}

		validatorCopy := *validator
		entry.Validator = &validatorCopy
		result = LedgerResult{
			Entry:    entry,
			Action:   action,
			Status:   decision.Status,
			Warnings: decision.Warnings,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *LedgerService) refuse(err *apperrors.AppError) error {
	metrics.LedgerRejections.WithLabelValues(err.Code).Inc()
	return err
}

// CurrentStatus derives the approval status of an action from its ledger.
func (s *LedgerService) CurrentStatus(ctx context.Context, actionID string) (validation.Status, error) {
	ctx = ensureContext(ctx)

	if err := s.ensureAction(ctx, actionID); err != nil {
		return "", err
	}
	latest, err := latestEntry(s.db.WithContext(ctx), actionID)
	if err != nil {
		return "", fmt.Errorf("ledger service: current status: %w", err)
	}
	if latest == nil {
		return validation.StatusPending, nil
	}
	return validation.FromModel(*latest).Status, nil
}

// StatusesFor derives the approval status of several actions at once.
func (s *LedgerService) StatusesFor(ctx context.Context, actionIDs []string) (map[string]validation.Status, error) {
	ctx = ensureContext(ctx)

	out := make(map[string]validation.Status, len(actionIDs))
	if len(actionIDs) == 0 {
		return out, nil
	}
	for _, id := range actionIDs {
		out[id] = validation.StatusPending
	}

	var rows []models.Validation
	if err := s.db.WithContext(ctx).
		Table("validations AS v").
		Select("v.action_id, v.outcome").
		Where("v.action_id IN ?", actionIDs).
		Where("v.sequence = (" + latestEntrySQL + "v.action_id)").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("ledger service: statuses: %w", err)
	}
	for _, row := range rows {
		out[row.ActionID] = validation.FromModel(row).Status
	}
	return out, nil
}

// History returns every ledger entry of the action, oldest first.
func (s *LedgerService) History(ctx context.Context, actionID string) ([]models.Validation, error) {
	ctx = ensureContext(ctx)

	if err := s.ensureAction(ctx, actionID); err != nil {
		return nil, err
	}

	var entries []models.Validation
	if err := s.db.WithContext(ctx).
		Preload("Validator").
		Where("action_id = ?", actionID).
		Order("created_at ASC").
		Order("sequence ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("ledger service: history: %w", err)
	}
	return entries, nil
}

// HistoryFor returns the history when the viewer is the author or can validate.
// Anyone else gets not found so that action ids are not disclosed.
func (s *LedgerService) HistoryFor(ctx context.Context, actionID string, viewer *models.User) ([]models.Validation, error) {
	ctx = ensureContext(ctx)
	if viewer == nil {
		return nil, apperrors.ErrNotFound
	}

	var action models.Action
	if err := s.db.WithContext(ctx).Select("id", "author_id").Take(&action, "id = ?", actionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ledger service: load action: %w", err)
	}
	if action.AuthorID != viewer.ID && !viewer.CanValidate() {
		return nil, apperrors.ErrNotFound
	}
	return s.History(ctx, actionID)
}

// EditBlocker explains why the user may not edit the action, or returns nil.
// The originating session is re-read on every call.
func (s *LedgerService) EditBlocker(ctx context.Context, action *models.Action, userID string) error {
	ctx = ensureContext(ctx)
	if action == nil {
		return apperrors.ErrNotFound
	}

	if strings.TrimSpace(userID) == "" || userID != action.AuthorID {
		return validation.ErrNotAuthor
	}

	status, err := s.CurrentStatus(ctx, action.ID)
	if err != nil {
		return err
	}

	shift, err := s.shifts.GetShift(ctx, action.ShiftID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	return validation.EditBlocker(validation.EditCheck{
		UserID:   userID,
		AuthorID: action.AuthorID,
		Current:  status,
		Shift:    shift,
		Now:      s.now(),
	})
}

// CanEdit reports whether the user may edit the action.
func (s *LedgerService) CanEdit(ctx context.Context, actionID, userID string) (bool, error) {
	ctx = ensureContext(ctx)

	var action models.Action
	if err := s.db.WithContext(ctx).Take(&action, "id = ?", actionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, apperrors.ErrNotFound
		}
		return false, fmt.Errorf("ledger service: load action: %w", err)
	}

	err := s.EditBlocker(ctx, &action, userID)
	if err == nil {
		return true, nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return false, nil
	}
	return false, err
}

// headSequence returns the highest ledger sequence of the action, 0 when the ledger is empty.
func (s *LedgerService) headSequence(ctx context.Context, actionID string) (int64, error) {
	var head int64
	err := s.db.WithContext(ctx).
		Model(&models.Validation{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("action_id = ?", actionID).
		Scan(&head).Error
	if err != nil {
		return 0, fmt.Errorf("ledger service: head sequence: %w", err)
	}
	return head, nil
}

func (s *LedgerService) ensureAction(ctx context.Context, actionID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Action{}).Where("id = ?", actionID).Count(&count).Error; err != nil {
		return fmt.Errorf("ledger service: load action: %w", err)
	}
	if count == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func latestEntry(tx *gorm.DB, actionID string) (*models.Validation, error) {
	var entry models.Validation
	err := tx.Where("action_id = ?", actionID).
		Order("created_at DESC").
		Order("sequence DESC").
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
