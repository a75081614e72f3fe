package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/services"
	"github.com/charlesng35/shiftlog/pkg/response"
)

// ValidationHandler records decisions and comments on actions.
type ValidationHandler struct {
	workflow *services.WorkflowService
	ledger   *services.LedgerService
}

// NewValidationHandler constructs a validation handler.
func NewValidationHandler(workflow *services.WorkflowService, ledger *services.LedgerService) *ValidationHandler {
	return &ValidationHandler{workflow: workflow, ledger: ledger}
}

// Comment rules live in the state machine so its error codes reach the client.
type decisionRequest struct {
	Comment string `json:"comment" validate:"max=5000"`
}

type submitFunc func(c *gin.Context, actionID, validatorID, comment string) (*services.LedgerResult, error)

func (h *ValidationHandler) submit(c *gin.Context, fn submitFunc) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req decisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := fn(c, strings.TrimSpace(c.Param("id")), user.ID, req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithWarnings(c, http.StatusCreated, result, result.Warnings)
}

// POST /api/actions/:id/validate
func (h *ValidationHandler) Validate(c *gin.Context) {
	h.submit(c, func(c *gin.Context, actionID, validatorID, comment string) (*services.LedgerResult, error) {
		return h.workflow.Validate(requestContext(c), actionID, validatorID, comment)
	})
}

// POST /api/actions/:id/reject
func (h *ValidationHandler) Reject(c *gin.Context) {
	h.submit(c, func(c *gin.Context, actionID, validatorID, comment string) (*services.LedgerResult, error) {
		return h.workflow.Reject(requestContext(c), actionID, validatorID, comment)
	})
}

// POST /api/actions/:id/comment
func (h *ValidationHandler) Comment(c *gin.Context) {
	h.submit(c, func(c *gin.Context, actionID, validatorID, comment string) (*services.LedgerResult, error) {
		return h.workflow.Comment(requestContext(c), actionID, validatorID, comment)
	})
}

// GET /api/actions/:id/history
func (h *ValidationHandler) History(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	entries, err := h.ledger.HistoryFor(requestContext(c), strings.TrimSpace(c.Param("id")), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}
