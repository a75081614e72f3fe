package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/shiftlog/internal/auth"
	"github.com/charlesng35/shiftlog/internal/middleware"
	"github.com/charlesng35/shiftlog/internal/realtime"
	"github.com/charlesng35/shiftlog/pkg/errors"
	"github.com/charlesng35/shiftlog/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into authenticated notification streams.
type RealtimeHandler struct {
	hub     *realtime.Hub
	jwt     *iauth.JWTService
	users   middleware.UserLoader
	counter realtime.UnreadCounter
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, users middleware.UserLoader, counter realtime.UnreadCounter) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jwt: jwt, users: users, counter: counter}
}

// Stream authenticates the caller before upgrading; unauthenticated callers get a
// plain 401 and no socket.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil || h.users == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetUser(requestContext(c), claims.UserID)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	if !user.IsValidated && !user.IsAdmin() {
		response.Error(c, errors.ErrAccountPending)
		return
	}

	h.hub.Serve(user.ID, h.counter, c.Writer, c.Request)
}
