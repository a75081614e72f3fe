package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/services"
	"github.com/charlesng35/shiftlog/pkg/response"
)

// ShiftHandler exposes the caller's service session.
type ShiftHandler struct {
	shifts *services.ShiftService
	now    func() time.Time
}

// NewShiftHandler constructs a shift handler.
func NewShiftHandler(shifts *services.ShiftService) *ShiftHandler {
	return &ShiftHandler{shifts: shifts, now: time.Now}
}

type shiftResponse struct {
	*models.ShiftSession
	RemainingSeconds int64 `json:"remaining_seconds"`
}

func (h *ShiftHandler) present(shift *models.ShiftSession) shiftResponse {
	return shiftResponse{
		ShiftSession:     shift,
		RemainingSeconds: int64(shift.Remaining(h.now()).Seconds()),
	}
}

// POST /api/shifts/open
func (h *ShiftHandler) Open(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	shift, err := h.shifts.Open(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, h.present(shift))
}

// POST /api/shifts/close
func (h *ShiftHandler) Close(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	shift, err := h.shifts.Close(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, h.present(shift))
}

// GET /api/shifts/active answers null data when no session is open.
func (h *ShiftHandler) Active(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	shift, err := h.shifts.Active(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if shift == nil {
		response.Success(c, http.StatusOK, nil)
		return
	}
	response.Success(c, http.StatusOK, h.present(shift))
}
