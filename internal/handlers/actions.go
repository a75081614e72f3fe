package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/services"
	"github.com/charlesng35/shiftlog/internal/validation"
	"github.com/charlesng35/shiftlog/pkg/response"
)

// ActionHandler exposes logged actions.
type ActionHandler struct {
	actions  *services.ActionService
	ledger   *services.LedgerService
	workflow *services.WorkflowService
}

// NewActionHandler constructs an action handler.
func NewActionHandler(actions *services.ActionService, ledger *services.LedgerService, workflow *services.WorkflowService) *ActionHandler {
	return &ActionHandler{actions: actions, ledger: ledger, workflow: workflow}
}

type createActionRequest struct {
	Category        string   `json:"category" validate:"omitempty,oneof=fault maintenance incident follow_up other"`
	Description     string   `json:"description" validate:"notblank,max=5000"`
	Cause           *string  `json:"cause" validate:"omitempty,max=2000"`
	InvolvedPersons []string `json:"involved_persons" validate:"omitempty,max=50,dive,max=120"`
	Status          string   `json:"status" validate:"omitempty,oneof=resolved pending in_progress"`
	FollowUp        bool     `json:"follow_up"`
}

type updateActionRequest struct {
	Category        *string   `json:"category" validate:"omitempty,oneof=fault maintenance incident follow_up other"`
	Description     *string   `json:"description" validate:"omitempty,notblank,max=5000"`
	Cause           *string   `json:"cause" validate:"omitempty,max=2000"`
	InvolvedPersons *[]string `json:"involved_persons" validate:"omitempty,max=50,dive,max=120"`
	Status          *string   `json:"status" validate:"omitempty,oneof=resolved pending in_progress"`
	FollowUp        *bool     `json:"follow_up"`
}

type actionResponse struct {
	*services.ActionView
	CanEdit bool `json:"can_edit"`
}

// POST /api/actions
func (h *ActionHandler) Create(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req createActionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	action, err := h.workflow.CreateAction(requestContext(c), services.CreateActionInput{
		AuthorID:        user.ID,
		Category:        req.Category,
		Description:     req.Description,
		Cause:           req.Cause,
		InvolvedPersons: req.InvolvedPersons,
		Status:          req.Status,
		FollowUp:        req.FollowUp,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, actionResponse{
		ActionView: &services.ActionView{Action: *action, ValidationStatus: validation.StatusPending},
		CanEdit:    true,
	})
}

// GET /api/actions lists the caller's own actions.
func (h *ActionHandler) List(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	input := services.ListActionsInput{AuthorID: user.ID}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := validation.ParseStatus(raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		input.Status = status
	}
	input.Limit, input.Offset = paginationFromQuery(c)

	views, total, err := h.actions.List(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, views, response.NewMeta(input.Limit, input.Offset, total))
}

// GET /api/actions/pending
func (h *ActionHandler) Pending(c *gin.Context) {
	limit, offset := paginationFromQuery(c)
	views, total, err := h.actions.ListPending(requestContext(c), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, views, response.NewMeta(limit, offset, total))
}

// GET /api/actions/:id
func (h *ActionHandler) Get(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	id := strings.TrimSpace(c.Param("id"))
	view, err := h.actions.View(ctx, id, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	canEdit, err := h.ledger.CanEdit(ctx, id, user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, actionResponse{ActionView: view, CanEdit: canEdit})
}

// PATCH /api/actions/:id
func (h *ActionHandler) Update(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req updateActionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	id := strings.TrimSpace(c.Param("id"))
	view, err := h.actions.Update(ctx, id, user.ID, services.UpdateActionInput{
		Category:        req.Category,
		Description:     req.Description,
		Cause:           req.Cause,
		InvolvedPersons: req.InvolvedPersons,
		Status:          req.Status,
		FollowUp:        req.FollowUp,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	canEdit, err := h.ledger.CanEdit(ctx, id, user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, actionResponse{ActionView: view, CanEdit: canEdit})
}
