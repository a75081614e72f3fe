package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/handlers"
)

func registerShiftRoutes(api *gin.RouterGroup, handler *handlers.ShiftHandler) {
	group := api.Group("/shifts")
	{
		group.POST("/open", handler.Open)
		group.POST("/close", handler.Close)
		group.GET("/active", handler.Active)
	}
}
