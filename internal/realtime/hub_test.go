package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type stubCounter struct {
	count atomic.Int64
	calls atomic.Int64
	err   error
}

func (s *stubCounter) UnreadCount(ctx context.Context, userID string) (int64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return s.count.Load(), nil
}

func newTestServer(t *testing.T, hub *Hub, counter UnreadCounter) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(r.URL.Query().Get("user"), counter, w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForConnections(t *testing.T, hub *Hub, userID string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(userID) == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeSendsUnreadCountOnConnect(t *testing.T) {
	hub := NewHub()
	counter := &stubCounter{}
	counter.count.Store(3)
	srv := newTestServer(t, hub, counter)

	conn := dial(t, srv, "alice")

	msg := readMessage(t, conn)
	require.Equal(t, MessageUnreadCount, msg.Type)
	require.EqualValues(t, 3, msg.Count)
	require.Nil(t, msg.Notification)
}

func TestServeAnswersUnreadCountRequestsFromStorage(t *testing.T) {
	hub := NewHub()
	counter := &stubCounter{}
	srv := newTestServer(t, hub, counter)

	conn := dial(t, srv, "alice")
	require.EqualValues(t, 0, readMessage(t, conn).Count)

	// Malformed and unknown frames are ignored without closing the socket.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))

	counter.count.Store(5)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": RequestUnreadCount}))

	msg := readMessage(t, conn)
	require.Equal(t, MessageUnreadCount, msg.Type)
	require.EqualValues(t, 5, msg.Count)
	require.EqualValues(t, 2, counter.calls.Load())
}

func TestServeIgnoresOversizedFrames(t *testing.T) {
	hub := NewHub()
	counter := &stubCounter{}
	srv := newTestServer(t, hub, counter)

	conn := dial(t, srv, "alice")
	require.EqualValues(t, 0, readMessage(t, conn).Count)

	big := `{"type":"get_unread_count","pad":"` + strings.Repeat("x", 64<<10) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	counter.count.Store(2)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": RequestUnreadCount}))

	msg := readMessage(t, conn)
	require.EqualValues(t, 2, msg.Count)
	require.EqualValues(t, 2, counter.calls.Load())
	require.Equal(t, 1, hub.ConnectionCount("alice"))
}

func TestServeSkipsInitialCountWhenCounterFails(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, &stubCounter{err: errors.New("db down")})

	conn := dial(t, srv, "alice")
	waitForConnections(t, hub, "alice", 1)

	hub.PublishToUser(context.Background(), "alice", UnreadCountMessage(9))
	msg := readMessage(t, conn)
	require.EqualValues(t, 9, msg.Count)
}

func TestPublishFansOutToEveryConnectionOfUser(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, nil)

	tabOne := dial(t, srv, "alice")
	tabTwo := dial(t, srv, "alice")
	other := dial(t, srv, "bob")
	waitForConnections(t, hub, "alice", 2)
	waitForConnections(t, hub, "bob", 1)

	payload := NotificationPayload{ID: "n1", Type: "validation", Message: "validated", Date: time.Now().UTC(), Icon: "✓"}
	delivered := hub.deliver(context.Background(), "alice", NewNotificationMessage(payload, 1))
	require.Equal(t, 2, delivered)

	for _, conn := range []*websocket.Conn{tabOne, tabTwo} {
		msg := readMessage(t, conn)
		require.Equal(t, MessageNewNotification, msg.Type)
		require.EqualValues(t, 1, msg.Count)
		require.NotNil(t, msg.Notification)
		require.Equal(t, "n1", msg.Notification.ID)
		require.Equal(t, "✓", msg.Notification.Icon)
	}

	require.NoError(t, other.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := other.ReadMessage()
	require.Error(t, err)
}

func TestPublishWithoutConnectionsIsDropped(t *testing.T) {
	hub := NewHub()
	require.Zero(t, hub.deliver(context.Background(), "nobody", UnreadCountMessage(1)))
}

func TestDisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, nil)

	conn := dial(t, srv, "alice")
	waitForConnections(t, hub, "alice", 1)

	require.NoError(t, conn.Close())
	waitForConnections(t, hub, "alice", 0)
	require.Zero(t, hub.deliver(context.Background(), "alice", UnreadCountMessage(1)))
}

func TestEnqueueTimesOutOnFullBuffer(t *testing.T) {
	hub := NewHub(WithSendBuffer(1), WithPushTimeout(20*time.Millisecond))
	client := &connection{hub: hub, userID: "alice", send: make(chan Message, 1), done: make(chan struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), hub.pushTimeout)
	defer cancel()
	require.True(t, client.enqueue(ctx, UnreadCountMessage(1)))

	start := time.Now()
	require.False(t, client.enqueue(ctx, UnreadCountMessage(2)))
	require.Less(t, time.Since(start), time.Second)
}

func TestEnqueueOnClosedConnectionDrops(t *testing.T) {
	hub := NewHub()
	client := &connection{hub: hub, userID: "alice", send: make(chan Message, 1), done: make(chan struct{})}
	close(client.done)

	require.False(t, client.enqueue(context.Background(), UnreadCountMessage(1)))
	require.Empty(t, client.send)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, nil)

	conn := dial(t, srv, "alice")
	waitForConnections(t, hub, "alice", 1)

	hub.Close()
	waitForConnections(t, hub, "alice", 0)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
