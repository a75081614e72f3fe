package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/charlesng35/shiftlog/pkg/logger"
	"github.com/charlesng35/shiftlog/pkg/metrics"
)

// DefaultRedisChannel carries notification frames between server instances.
const DefaultRedisChannel = "shiftlog:notifications"

type envelope struct {
	UserID  string  `json:"user_id"`
	Message Message `json:"message"`
}

const (
	bridgeQueueSize     = 64
	resubscribeMinDelay = 250 * time.Millisecond
	resubscribeMaxDelay = 30 * time.Second
)

// RedisBridge fans notification frames out through Redis pub/sub so that a user
// connected to another instance still receives them. Every instance runs the bridge
// and delivers what it receives to its local hub. Received frames are queued per user,
// so a stalled connection only delays its own user.
type RedisBridge struct {
	client  *redis.Client
	hub     *Hub
	channel string
	log     *zap.Logger

	live    atomic.Bool
	mu      sync.Mutex
	queues  map[string]chan Message
	workers sync.WaitGroup
}

// NewRedisBridge wires a Redis client to the local hub.
func NewRedisBridge(client *redis.Client, hub *Hub, channel string) (*RedisBridge, error) {
	if client == nil {
		return nil, errors.New("realtime: redis client is required")
	}
	if hub == nil {
		return nil, errors.New("realtime: hub is required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBridge{
		client:  client,
		hub:     hub,
		channel: channel,
		log:     logger.WithModule("realtime.redis"),
		queues:  make(map[string]chan Message),
	}, nil
}

// Live reports whether this instance currently holds a confirmed subscription.
func (b *RedisBridge) Live() bool {
	return b.live.Load()
}

// PublishToUser publishes through Redis. Without a live local subscription, or when
// Redis rejects the publish, the frame is delivered to local connections only.
func (b *RedisBridge) PublishToUser(ctx context.Context, userID string, message Message) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !b.live.Load() {
		b.hub.PublishToUser(ctx, userID, message)
		return
	}
	payload, err := json.Marshal(envelope{UserID: userID, Message: message})
	if err == nil {
		pubCtx, cancel := context.WithTimeout(ctx, b.hub.pushTimeout)
		err = b.client.Publish(pubCtx, b.channel, payload).Err()
		cancel()
	}
	if err != nil {
		b.log.Warn("redis publish failed, delivering locally", zap.String("user_id", userID), zap.Error(err))
		b.hub.PublishToUser(ctx, userID, message)
	}
}

// Run subscribes to the channel and forwards frames to the local hub until ctx ends.
// A failed subscription is retried with a doubling delay.
func (b *RedisBridge) Run(ctx context.Context) error {
	defer b.workers.Wait()

	delay := resubscribeMinDelay
	for {
		if err := b.consume(ctx); err != nil {
			b.log.Warn("redis subscription lost", zap.String("channel", b.channel), zap.Duration("retry_in", delay), zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, resubscribeMaxDelay)
	}
}

func (b *RedisBridge) consume(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	defer b.live.Store(false)

	// Publishes go through Redis only once the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", b.channel, err)
	}
	b.live.Store(true)
	b.log.Info("redis subscription active", zap.String("channel", b.channel))

	frames := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-frames:
			if !ok {
				return errors.New("realtime: subscription channel closed")
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.UserID == "" {
				b.log.Debug("ignoring malformed frame", zap.String("channel", msg.Channel))
				continue
			}
			b.dispatch(ctx, env.UserID, env.Message)
		}
	}
}

// dispatch queues the frame for the user's worker, starting one when none is running.
// A full queue drops the frame.
func (b *RedisBridge) dispatch(ctx context.Context, userID string, message Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue, ok := b.queues[userID]
	if !ok {
		queue = make(chan Message, bridgeQueueSize)
		b.queues[userID] = queue
		b.workers.Add(1)
		go b.drain(ctx, userID, queue)
	}
	select {
	case queue <- message:
	default:
		metrics.RealtimePushes.WithLabelValues("dropped").Inc()
		b.log.Warn("bridge queue full, dropping frame", zap.String("user_id", userID))
	}
}

// drain delivers queued frames in order and exits once the queue is empty.
func (b *RedisBridge) drain(ctx context.Context, userID string, queue chan Message) {
	defer b.workers.Done()
	for {
		select {
		case message := <-queue:
			b.hub.PublishToUser(ctx, userID, message)
			continue
		case <-ctx.Done():
		default:
		}

		b.mu.Lock()
		if len(queue) == 0 || ctx.Err() != nil {
			delete(b.queues, userID)
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
	}
}
