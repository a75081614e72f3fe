package middleware

import (
	"context"
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/auditctx"
	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/pkg/errors"
	"github.com/charlesng35/shiftlog/pkg/response"
)

// UserLoader resolves the authenticated user on every request.
type UserLoader interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// LoadUser reloads the user named by the token so that role and validation
// changes apply immediately. Must run after Auth.
func LoadUser(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			var appErr *errors.AppError
			if stderrors.As(err, &appErr) && appErr.StatusCode == 404 {
				response.Error(c, errors.ErrUnauthorized)
			} else {
				response.Error(c, err)
			}
			c.Abort()
			return
		}

		c.Set(CtxUserKey, user)
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			UserID:    user.ID,
			Username:  user.Username,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))
		c.Next()
	}
}

// CurrentUser returns the user stored by LoadUser.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

// RequireValidated rejects accounts an administrator has not yet approved.
// Administrators always pass.
func RequireValidated() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !user.IsValidated && !user.IsAdmin() {
			response.Error(c, errors.ErrAccountPending)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireValidator allows only users holding the validating capability.
func RequireValidator() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !user.CanValidate() {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole allows only the listed roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[user.Role]; !ok {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
