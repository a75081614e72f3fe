package app

import (
	"strings"

	"github.com/charlesng35/shiftlog/internal/cache"
	"github.com/charlesng35/shiftlog/internal/realtime"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// PubSubChannel returns the channel used by the realtime bridge.
func (c CacheConfig) PubSubChannel() string {
	if channel := strings.TrimSpace(c.Redis.Channel); channel != "" {
		return channel
	}
	return realtime.DefaultRedisChannel
}
