package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/services"
	"github.com/charlesng35/shiftlog/pkg/errors"
	"github.com/charlesng35/shiftlog/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List returns notifications for the current user, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	input := services.ListNotificationsInput{
		UserID: user.ID,
		Type:   strings.TrimSpace(c.Query("type")),
	}
	if raw := strings.TrimSpace(c.Query("unread")); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, errors.NewBadRequest("unread must be a boolean"))
			return
		}
		input.Unread = &unread
	}
	input.Limit, input.Offset = paginationFromQuery(c)

	items, total, err := h.service.ListForUser(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, items, response.NewMeta(input.Limit, input.Offset, total))
}

// UnreadCount returns the durable unread counter.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": count})
}

// MarkRead toggles a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	dto, err := h.service.MarkRead(requestContext(c), user.ID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// MarkAllRead marks all notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.service.Delete(requestContext(c), user.ID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
