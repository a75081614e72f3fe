package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shiftlog/internal/monitoring"
)

// Health reports readiness. Only a failing critical dependency yields 503; a degraded
// optional dependency still answers 200 with the details.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

// Liveness answers as long as the process serves HTTP.
func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": monitoring.StatusUp})
}
