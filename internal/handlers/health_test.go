package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/shiftlog/internal/monitoring"
)

func serveHealth(t *testing.T, manager *monitoring.HealthManager) (*httptest.ResponseRecorder, monitoring.HealthReport) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	Health(manager)(c)

	var report monitoring.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	return w, report
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	healthy := monitoring.NewHealthManager(0)
	healthy.Register(monitoring.Check{Name: "database", Critical: true, Probe: func(context.Context) (string, error) {
		return "", nil
	}})
	healthy.Register(monitoring.RedisCheck(nil, true))

	w, report := serveHealth(t, healthy)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, monitoring.StatusDegraded, report.Status)

	down := monitoring.NewHealthManager(0)
	down.Register(monitoring.Check{Name: "database", Critical: true, Probe: func(context.Context) (string, error) {
		return "", errors.New("disk I/O error")
	}})

	w, report = serveHealth(t, down)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.False(t, report.Success)
	require.Equal(t, "disk I/O error", report.Checks[0].Details)
}
