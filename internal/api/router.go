package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/shiftlog/internal/auth"
	"github.com/charlesng35/shiftlog/internal/handlers"
	"github.com/charlesng35/shiftlog/internal/middleware"
	"github.com/charlesng35/shiftlog/internal/monitoring"
	"github.com/charlesng35/shiftlog/internal/realtime"
	"github.com/charlesng35/shiftlog/internal/services"
)

// Dependencies carries everything the router needs.
type Dependencies struct {
	DB       *gorm.DB
	JWT      *iauth.JWTService
	Hub      *realtime.Hub
	Services *services.Stack
	// RateStore backs login throttling; nil uses process-local counters.
	RateStore middleware.RateStore
	// LoginRateLimit is the number of login attempts allowed per client per minute.
	LoginRateLimit int
	// Health evaluates /health; nil probes the database and the hub only.
	Health *monitoring.HealthManager
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services must be provided")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}
	if deps.LoginRateLimit <= 0 {
		deps.LoginRateLimit = 20
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	if deps.Health == nil {
		deps.Health = monitoring.NewHealthManager(0)
		deps.Health.Register(monitoring.DatabaseCheck(deps.DB))
		deps.Health.Register(monitoring.RealtimeCheck(deps.Hub))
	}
	registerHealthRoutes(r, deps.Health)

	svc := deps.Services
	authHandler := handlers.NewAuthHandler(svc.Users, deps.JWT)
	loginLimiter := middleware.RateLimit(deps.RateStore, deps.LoginRateLimit, time.Minute)

	// Authenticated routes reload the user so role and validation changes apply at once.
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT), middleware.LoadUser(svc.Users))

	registerAuthRoutes(r, api, authHandler, loginLimiter)

	// Everything else additionally requires a validated account.
	validated := api.Group("")
	validated.Use(middleware.RequireValidated())

	registerShiftRoutes(validated, handlers.NewShiftHandler(svc.Shifts))
	registerActionRoutes(validated,
		handlers.NewActionHandler(svc.Actions, svc.Ledger, svc.Workflow),
		handlers.NewValidationHandler(svc.Workflow, svc.Ledger),
	)
	registerNotificationRoutes(validated, handlers.NewNotificationHandler(svc.Notifications))

	// The socket authenticates from the query string before upgrading.
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT, svc.Users, svc.Notifications)
	r.GET("/ws/notifications", realtimeHandler.Stream)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
