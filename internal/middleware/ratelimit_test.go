package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(nil, 2, 100*time.Millisecond))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	hit := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		return w
	}

	// First two requests should pass
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, hit().Code)
	}

	// Third request within window should be rate-limited
	w := hit()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	time.Sleep(120 * time.Millisecond)

	// After window resets, should pass again
	require.Equal(t, http.StatusOK, hit().Code)
}

func TestRedisRateStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisRateStore(client)
	ctx := context.Background()

	count, ttl, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	count, ttl, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Greater(t, ttl, time.Duration(0))

	mr.FastForward(2 * time.Minute)

	count, _, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRateLimitFailsOpenWhenStoreIsDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	r := gin.New()
	r.Use(RateLimit(NewRedisRateStore(client), 1, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}
