package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/validation"
	apperrors "github.com/charlesng35/shiftlog/pkg/errors"
	"github.com/charlesng35/shiftlog/pkg/logger"
)

// CreateActionInput describes a new logged action.
type CreateActionInput struct {
	AuthorID        string
	Category        string
	Description     string
	Cause           *string
	InvolvedPersons []string
	Status          string
	FollowUp        bool
}

// UpdateActionInput enumerates the fields an author may change before approval.
type UpdateActionInput struct {
	Category        *string
	Description     *string
	Cause           *string
	InvolvedPersons *[]string
	Status          *string
	FollowUp        *bool
}

// ListActionsInput controls pagination and filtering of action listings.
type ListActionsInput struct {
	AuthorID string
	Status   validation.Status
	Limit    int
	Offset   int
}

// ActionView pairs an action with its derived approval status.
type ActionView struct {
	models.Action
	ValidationStatus validation.Status `json:"validation_status"`
}

// ActionService manages logged actions. Approval state is owned by the ledger.
type ActionService struct {
	db     *gorm.DB
	shifts *ShiftService
	ledger *LedgerService
	log    *zap.Logger
}

// NewActionService constructs an ActionService.
func NewActionService(db *gorm.DB, shifts *ShiftService, ledger *LedgerService) (*ActionService, error) {
	if db == nil {
		return nil, errors.New("action service: db is required")
	}
	if shifts == nil || ledger == nil {
		return nil, errors.New("action service: shift and ledger services are required")
	}
	return &ActionService{
		db:     db,
		shifts: shifts,
		ledger: ledger,
		log:    logger.WithModule("actions"),
	}, nil
}

// Create records an action against the author's active session.
func (s *ActionService) Create(ctx context.Context, input CreateActionInput) (*models.Action, error) {
	ctx = ensureContext(ctx)

	authorID := strings.TrimSpace(input.AuthorID)
	if authorID == "" {
		return nil, apperrors.NewBadRequest("author is required")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, apperrors.NewBadRequest("description is required")
	}
	category, err := normaliseCategory(input.Category)
	if err != nil {
		return nil, err
	}
	status, err := normaliseActionStatus(input.Status)
	if err != nil {
		return nil, err
	}

	shift, err := s.shifts.Active(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if shift == nil {
		return nil, ErrNoActiveShift
	}

	action := &models.Action{
		AuthorID:        authorID,
		ShiftID:         shift.ID,
		Category:        category,
		Description:     description,
		Cause:           trimmedPtr(input.Cause),
		InvolvedPersons: datatypes.JSONSlice[string](normalisePersons(input.InvolvedPersons)),
		Status:          status,
		FollowUp:        input.FollowUp,
	}
	if err := s.db.WithContext(ctx).Create(action).Error; err != nil {
		return nil, fmt.Errorf("action service: create: %w", err)
	}

	s.log.Info("action created", zap.String("action_id", action.ID), zap.String("author_id", authorID))
	return action, nil
}

// Get loads an action by id.
func (s *ActionService) Get(ctx context.Context, id string) (*models.Action, error) {
	ctx = ensureContext(ctx)

	var action models.Action
	err := s.db.WithContext(ctx).Preload("Author").Take(&action, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("action service: get: %w", err)
	}
	return &action, nil
}

// View loads an action with its derived status. Only the author and users who can
// validate may see it.
func (s *ActionService) View(ctx context.Context, id string, viewer *models.User) (*ActionView, error) {
	action, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer == nil || (viewer.ID != action.AuthorID && !viewer.CanValidate()) {
		return nil, apperrors.ErrNotFound
	}
	status, err := s.ledger.CurrentStatus(ctx, action.ID)
	if err != nil {
		return nil, err
	}
	return &ActionView{Action: *action, ValidationStatus: status}, nil
}

// Update changes description fields while the edit rule allows it.
func (s *ActionService) Update(ctx context.Context, id, userID string, input UpdateActionInput) (*ActionView, error) {
	ctx = ensureContext(ctx)

	action, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Read before the rule check; a ledger append after this point fails the guarded update.
	head, err := s.ledger.headSequence(ctx, action.ID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.EditBlocker(ctx, action, userID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Category != nil {
		category, err := normaliseCategory(*input.Category)
		if err != nil {
			return nil, err
		}
		updates["category"] = category
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, apperrors.NewBadRequest("description is required")
		}
		updates["description"] = description
	}
	if input.Cause != nil {
		updates["cause"] = trimmedPtr(input.Cause)
	}
	if input.InvolvedPersons != nil {
		updates["involved_persons"] = datatypes.JSONSlice[string](normalisePersons(*input.InvolvedPersons))
	}
	if input.Status != nil {
		status, err := normaliseActionStatus(*input.Status)
		if err != nil {
			return nil, err
		}
		updates["status"] = status
	}
	if input.FollowUp != nil {
		updates["follow_up"] = *input.FollowUp
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).
			Model(&models.Action{}).
			Where("id = ?", action.ID).
			Where("COALESCE(("+latestEntrySQL+"actions.id), 0) = ?", head).
			Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("action service: update: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, validation.ErrNotEditable
		}
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	status, err := s.ledger.CurrentStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ActionView{Action: *updated, ValidationStatus: status}, nil
}

// List returns actions newest first, optionally restricted to an author and a derived status.
func (s *ActionService) List(ctx context.Context, input ListActionsInput) ([]ActionView, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Action{})
	if authorID := strings.TrimSpace(input.AuthorID); authorID != "" {
		query = query.Where("actions.author_id = ?", authorID)
	}
	if input.Status != "" {
		query = query.Joins("LEFT JOIN validations AS v ON v.action_id = actions.id AND v.sequence = (" + latestEntrySQL + "actions.id)")
		if input.Status == validation.StatusPending {
			query = query.Where("v.id IS NULL OR v.outcome = ?", string(validation.StatusPending))
		} else {
			query = query.Where("v.outcome = ?", string(input.Status))
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("action service: count: %w", err)
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []models.Action
	if err := query.
		Preload("Author").
		Order("actions.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("action service: list: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	statuses, err := s.ledger.StatusesFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	views := make([]ActionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ActionView{Action: row, ValidationStatus: statuses[row.ID]})
	}
	return views, total, nil
}

// ListPending returns actions still awaiting a decision.
func (s *ActionService) ListPending(ctx context.Context, limit, offset int) ([]ActionView, int64, error) {
	return s.List(ctx, ListActionsInput{Status: validation.StatusPending, Limit: limit, Offset: offset})
}

func normaliseCategory(raw string) (string, error) {
	category := strings.ToLower(strings.TrimSpace(raw))
	switch category {
	case "":
		return models.CategoryOther, nil
	case models.CategoryFault, models.CategoryMaintenance, models.CategoryIncident, models.CategoryFollowUp, models.CategoryOther:
		return category, nil
	default:
		return "", apperrors.NewBadRequest(fmt.Sprintf("unknown category %q", raw))
	}
}

func normaliseActionStatus(raw string) (string, error) {
	status := strings.ToLower(strings.TrimSpace(raw))
	switch status {
	case "":
		return models.ActionPending, nil
	case models.ActionResolved, models.ActionPending, models.ActionInProgress:
		return status, nil
	default:
		return "", apperrors.NewBadRequest(fmt.Sprintf("unknown action status %q", raw))
	}
}
