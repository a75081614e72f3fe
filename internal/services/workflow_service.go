package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/validation"
	"github.com/charlesng35/shiftlog/pkg/logger"
)

// dispatchTimeout bounds notification work once the triggering write has committed.
const dispatchTimeout = 10 * time.Second

// Dispatcher turns workflow events into notifications.
type Dispatcher interface {
	OnValidationSubmitted(ctx context.Context, entry *models.Validation, action *models.Action) (*models.Notification, error)
	OnActionCreated(ctx context.Context, action *models.Action) ([]models.Notification, error)
}

// WorkflowService runs each workflow step and then calls the dispatcher explicitly.
// Dispatch failures are logged and never undo or fail the step that triggered them.
type WorkflowService struct {
	actions    *ActionService
	ledger     *LedgerService
	dispatcher Dispatcher
	log        *zap.Logger
}

// NewWorkflowService constructs a WorkflowService.
func NewWorkflowService(actions *ActionService, ledger *LedgerService, dispatcher Dispatcher) (*WorkflowService, error) {
	if actions == nil || ledger == nil {
		return nil, errors.New("workflow service: action and ledger services are required")
	}
	if dispatcher == nil {
		return nil, errors.New("workflow service: dispatcher is required")
	}
	return &WorkflowService{
		actions:    actions,
		ledger:     ledger,
		dispatcher: dispatcher,
		log:        logger.WithModule("workflow"),
	}, nil
}

// CreateAction records the action and notifies administrators.
func (s *WorkflowService) CreateAction(ctx context.Context, input CreateActionInput) (*models.Action, error) {
	ctx = ensureContext(ctx)

	action, err := s.actions.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	dispatchCtx, cancel := detach(ctx)
	defer cancel()
	if _, err := s.dispatcher.OnActionCreated(dispatchCtx, action); err != nil {
		s.log.Warn("new action notifications incomplete", zap.String("action_id", action.ID), zap.Error(err))
	}
	return action, nil
}

// Validate approves an action.
func (s *WorkflowService) Validate(ctx context.Context, actionID, validatorID, comment string) (*LedgerResult, error) {
	ctx = ensureContext(ctx)
	result, err := s.ledger.SubmitValidation(ctx, actionID, validatorID, validation.StatusValidated, comment)
	if err != nil {
		return nil, err
	}
	s.dispatchEntry(ctx, result)
	return result, nil
}

// Reject refuses an action; a comment is mandatory.
func (s *WorkflowService) Reject(ctx context.Context, actionID, validatorID, comment string) (*LedgerResult, error) {
	ctx = ensureContext(ctx)
	result, err := s.ledger.SubmitValidation(ctx, actionID, validatorID, validation.StatusRejected, comment)
	if err != nil {
		return nil, err
	}
	s.dispatchEntry(ctx, result)
	return result, nil
}

// Comment attaches a comment without changing the action's status.
func (s *WorkflowService) Comment(ctx context.Context, actionID, validatorID, comment string) (*LedgerResult, error) {
	ctx = ensureContext(ctx)
	result, err := s.ledger.SubmitComment(ctx, actionID, validatorID, comment)
	if err != nil {
		return nil, err
	}
	s.dispatchEntry(ctx, result)
	return result, nil
}

func (s *WorkflowService) dispatchEntry(ctx context.Context, result *LedgerResult) {
	dispatchCtx, cancel := detach(ctx)
	defer cancel()
	if _, err := s.dispatcher.OnValidationSubmitted(dispatchCtx, &result.Entry, &result.Action); err != nil {
		s.log.Warn("validation notification failed",
			zap.String("action_id", result.Action.ID),
			zap.String("entry_id", result.Entry.ID),
			zap.Error(err),
		)
	}
}

// detach keeps the caller's values but not its cancellation, so a client that goes away
// after the commit still gets its notification rows written.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
}
