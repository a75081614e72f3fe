package monitoring

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// DatabaseCheck pings the database handle. The service cannot work without it.
func DatabaseCheck(db *gorm.DB) Check {
	return Check{
		Name:     "database",
		Critical: true,
		Probe: func(ctx context.Context) (string, error) {
			if db == nil {
				return "", errors.New("database not configured")
			}
			sqlDB, err := db.DB()
			if err != nil {
				return "", err
			}
			return "", sqlDB.PingContext(ctx)
		},
	}
}

// RedisPinger is the subset of a Redis client needed to probe it.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// RedisCheck probes the optional Redis backend. Pushes and rate limits fall back to
// process-local state, so failures only degrade the service.
func RedisCheck(client RedisPinger, enabled bool) Check {
	return Check{
		Name: "redis",
		Probe: func(ctx context.Context) (string, error) {
			if !enabled {
				return "disabled", nil
			}
			if client == nil {
				return "", errors.New("redis unavailable, using local fallback")
			}
			return "", client.Ping(ctx)
		},
	}
}

// RealtimeObserver exposes realtime hub occupancy.
type RealtimeObserver interface {
	Stats() (users, connections int)
}

// RealtimeCheck reports hub occupancy. It never fails once a hub is wired.
func RealtimeCheck(observer RealtimeObserver) Check {
	return Check{
		Name: "realtime",
		Probe: func(context.Context) (string, error) {
			if observer == nil {
				return "", errors.New("realtime hub unavailable")
			}
			users, connections := observer.Stats()
			return fmt.Sprintf("%d connections for %d users", connections, users), nil
		},
	}
}
