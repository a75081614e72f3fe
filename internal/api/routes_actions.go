package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/handlers"
	"github.com/charlesng35/shiftlog/internal/middleware"
)

func registerActionRoutes(api *gin.RouterGroup, actions *handlers.ActionHandler, validations *handlers.ValidationHandler) {
	group := api.Group("/actions")
	{
		group.POST("", actions.Create)
		group.GET("", actions.List)
		group.GET("/pending", middleware.RequireValidator(), actions.Pending)
		group.GET("/:id", actions.Get)
		group.PATCH("/:id", actions.Update)

		// The state machine refuses non-validators with its own error code.
		group.POST("/:id/validate", validations.Validate)
		group.POST("/:id/reject", validations.Reject)
		group.POST("/:id/comment", validations.Comment)
		group.GET("/:id/history", validations.History)
	}
}
