package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/middleware"
	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/pkg/errors"
	"github.com/charlesng35/shiftlog/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireUser returns the user loaded by middleware, writing 401 when absent.
func requireUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}
	return user, true
}
