package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/shiftlog/pkg/logger"
	"github.com/charlesng35/shiftlog/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10

	defaultBufferSize  = 16
	defaultPushTimeout = 2 * time.Second
	countQueryTimeout  = 5 * time.Second
)

// Option configures a Hub.
type Option func(*Hub)

// WithPushTimeout bounds how long a publish waits on any single connection.
func WithPushTimeout(timeout time.Duration) Option {
	return func(h *Hub) {
		if timeout > 0 {
			h.pushTimeout = timeout
		}
	}
}

// WithSendBuffer sets the per-connection outbound queue size.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// Hub is the registry of live connections keyed by user id.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]map[*connection]struct{}
	upgrader    websocket.Upgrader
	pushTimeout time.Duration
	sendBuffer  int
	log         *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:     make(map[string]map[*connection]struct{}),
		pushTimeout: defaultPushTimeout,
		sendBuffer:  defaultBufferSize,
		log:         logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve upgrades the HTTP connection, registers it for the user and blocks until the
// connection closes. The current unread count is sent as soon as the socket is live.
// The caller must have authenticated userID.
func (h *Hub) Serve(userID string, counter UnreadCounter, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := newConnection(h, socket, userID, counter)
	h.register(client)

	go client.writeLoop()
	client.pushUnreadCount()
	client.readLoop()
}

// PublishToUser delivers the message to every live connection of the user. Each
// connection gets its own bounded wait; slow or closing connections are skipped.
func (h *Hub) PublishToUser(ctx context.Context, userID string, message Message) {
	h.deliver(ctx, userID, message)
}

func (h *Hub) deliver(ctx context.Context, userID string, message Message) int {
	targets := h.snapshot(userID)
	if len(targets) == 0 {
		metrics.RealtimePushes.WithLabelValues("dropped").Inc()
		return 0
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, client := range targets {
		wg.Add(1)
		go func(c *connection) {
			defer wg.Done()
			pushCtx, cancel := context.WithTimeout(ctx, h.pushTimeout)
			defer cancel()
			if c.enqueue(pushCtx, message) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}(client)
	}
	wg.Wait()
	return delivered
}

// ConnectionCount returns the number of live connections for the user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Stats returns the number of connected users and live connections.
func (h *Hub) Stats() (users, connections int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		connections += len(set)
	}
	return len(h.clients), connections
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*connection
	for _, set := range h.clients {
		for client := range set {
			all = append(all, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range all {
		client.close()
	}
}

func (h *Hub) snapshot(userID string) []*connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.clients[userID]
	out := make([]*connection, 0, len(set))
	for client := range set {
		out = append(out, client)
	}
	return out
}

func (h *Hub) register(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*connection]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
	metrics.RealtimeConnections.Inc()
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[client.userID]
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	metrics.RealtimeConnections.Dec()
}

type connection struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	counter UnreadCounter
	send    chan Message
	done    chan struct{}
	once    sync.Once
}

func newConnection(hub *Hub, socket *websocket.Conn, userID string, counter UnreadCounter) *connection {
	return &connection{
		hub:     hub,
		socket:  socket,
		userID:  userID,
		counter: counter,
		send:    make(chan Message, hub.sendBuffer),
		done:    make(chan struct{}),
	}
}

// enqueue never blocks past ctx and never sends on a closed connection.
func (c *connection) enqueue(ctx context.Context, message Message) bool {
	select {
	case <-c.done:
		metrics.RealtimePushes.WithLabelValues("dropped").Inc()
		return false
	default:
	}

	select {
	case c.send <- message:
		metrics.RealtimePushes.WithLabelValues("delivered").Inc()
		return true
	case <-c.done:
		metrics.RealtimePushes.WithLabelValues("dropped").Inc()
		return false
	case <-ctx.Done():
		metrics.RealtimePushes.WithLabelValues("timeout").Inc()
		c.hub.log.Debug("push timed out", zap.String("user_id", c.userID))
		return false
	}
}

func (c *connection) pushUnreadCount() {
	if c.counter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), countQueryTimeout)
	defer cancel()

	count, err := c.counter.UnreadCount(ctx, c.userID)
	if err != nil {
		c.hub.log.Warn("unread count failed", zap.String("user_id", c.userID), zap.Error(err))
		return
	}

	pushCtx, cancelPush := context.WithTimeout(context.Background(), c.hub.pushTimeout)
	defer cancelPush()
	c.enqueue(pushCtx, UnreadCountMessage(count))
}

func (c *connection) readLoop() {
	defer c.close()

	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		payload, err := c.readFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if payload == nil {
			continue
		}

		var inbound inboundMessage
		if err := json.Unmarshal(payload, &inbound); err != nil {
			continue
		}
		if strings.TrimSpace(inbound.Type) == RequestUnreadCount {
			c.pushUnreadCount()
		}
	}
}

// readFrame returns the next inbound frame, or nil when it exceeds maxMessageSize.
// Oversized frames are drained and skipped so the socket stays open.
func (c *connection) readFrame() ([]byte, error) {
	_, reader, err := c.socket.NextReader()
	if err != nil {
		return nil, err
	}
	payload, err := io.ReadAll(io.LimitReader(reader, maxMessageSize+1))
	if err != nil {
		return nil, err
	}
	if len(payload) <= maxMessageSize {
		return payload, nil
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return nil, err
	}
	c.hub.log.Debug("ignoring oversized frame", zap.String("user_id", c.userID))
	return nil, nil
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
