package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/handlers"
)

func registerAuthRoutes(engine *gin.Engine, api *gin.RouterGroup, handler *handlers.AuthHandler, limiter gin.HandlerFunc) {
	auth := engine.Group("/api/auth")
	{
		auth.POST("/login", limiter, handler.Login)
	}

	// Pending accounts may still read their own profile.
	api.GET("/auth/me", handler.Me)
}
