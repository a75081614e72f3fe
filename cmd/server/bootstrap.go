package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/api"
	"github.com/charlesng35/shiftlog/internal/app"
	"github.com/charlesng35/shiftlog/internal/app/maintenance"
	iauth "github.com/charlesng35/shiftlog/internal/auth"
	"github.com/charlesng35/shiftlog/internal/cache"
	"github.com/charlesng35/shiftlog/internal/database"
	"github.com/charlesng35/shiftlog/internal/middleware"
	"github.com/charlesng35/shiftlog/internal/monitoring"
	"github.com/charlesng35/shiftlog/internal/realtime"
	"github.com/charlesng35/shiftlog/internal/services"
	"github.com/charlesng35/shiftlog/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Hub       *realtime.Hub
	Services  *services.Stack
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine

	stopBridge context.CancelFunc
	bridgeDone sync.WaitGroup
}

// bootstrapRuntime initialises the database, optional Redis, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	secret, err := database.EnsureJWTSecret(ctx, stack.DB, cfg.Auth.JWT.Secret)
	if err != nil {
		return nil, fmt.Errorf("resolve jwt secret: %w", err)
	}
	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig(secret))
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub(cfg.Notifications.HubOptions()...)
	var publisher realtime.Publisher = stack.Hub

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; notifications and rate limits stay process-local", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	if stack.Redis != nil {
		bridge, err := realtime.NewRedisBridge(stack.Redis, stack.Hub, cfg.Cache.PubSubChannel())
		if err != nil {
			return nil, fmt.Errorf("initialise realtime bridge: %w", err)
		}
		stack.startBridge(bridge, log)
		publisher = bridge
		stack.RateStore = middleware.NewRedisRateStore(stack.Redis)
	} else {
		stack.RateStore = middleware.NewMemoryRateStore()
	}

	stack.Services, err = services.NewStack(stack.DB, publisher, cfg.StackConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.Services.Shifts,
		maintenance.WithSweepSchedule(cfg.Shifts.SweepSchedule),
		maintenance.WithNotificationRetention(cfg.Notifications.ReadRetention),
		maintenance.WithRetentionSchedule(cfg.Notifications.RetentionSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	health := monitoring.NewHealthManager(0)
	health.Register(monitoring.DatabaseCheck(stack.DB))
	health.Register(monitoring.RedisCheck(redisPinger(stack.Redis), cfg.Cache.Redis.Enabled))
	health.Register(monitoring.RealtimeCheck(stack.Hub))

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:             stack.DB,
		JWT:            jwtSvc,
		Hub:            stack.Hub,
		Services:       stack.Services,
		RateStore:      stack.RateStore,
		LoginRateLimit: cfg.Server.LoginRateLimit,
		Health:         health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

type redisClientPinger struct{ client *redis.Client }

func (p redisClientPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

// redisPinger keeps a nil client a nil interface so the check reports the fallback.
func redisPinger(client *redis.Client) monitoring.RedisPinger {
	if client == nil {
		return nil
	}
	return redisClientPinger{client: client}
}

func (s *runtimeStack) startBridge(bridge *realtime.RedisBridge, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopBridge = cancel
	s.bridgeDone.Add(1)
	go func() {
		defer s.bridgeDone.Done()
		if err := bridge.Run(ctx); err != nil {
			log.Error("realtime bridge stopped", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.stopBridge != nil {
		s.stopBridge()
		s.bridgeDone.Wait()
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseConnection()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, cfg.Bootstrap.SeedOptions()); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
