package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRateLimiter_TokenBucket(t *testing.T) {
	rl := PerMinute(3)
	clock := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(ctx, "10.0.0.1"), "request %d", i+1)
	}
	assert.False(t, rl.Allow(ctx, "10.0.0.1"), "burst exhausted")
	assert.True(t, rl.Allow(ctx, "10.0.0.2"), "other clients keep their own bucket")

	clock = clock.Add(20 * time.Second)
	assert.True(t, rl.Allow(ctx, "10.0.0.1"), "one token refills every 20s")
	assert.False(t, rl.Allow(ctx, "10.0.0.1"))
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := PerMinute(5)
	clock := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	rl.Allow(context.Background(), "10.0.0.1")
	clock = clock.Add(time.Hour)
	rl.evictIdle(10 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.buckets)
}

func TestRedisRateLimiter_FixedWindow(t *testing.T) {
	mr, client := setupTestRedis(t)
	rl := NewRedisRateLimiter(client, 2, nil)
	clock := time.Date(2026, 3, 15, 12, 0, 10, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "10.0.0.1"))
	assert.True(t, rl.Allow(ctx, "10.0.0.1"))
	assert.False(t, rl.Allow(ctx, "10.0.0.1"))

	key := "yclients-mcp:ratelimit:10.0.0.1:" + "1773576000"
	require.True(t, mr.Exists(key), "keys: %v", mr.Keys())
	assert.Equal(t, time.Minute, mr.TTL(key))

	clock = clock.Add(time.Minute)
	assert.True(t, rl.Allow(ctx, "10.0.0.1"), "a new window starts fresh")
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	mr, client := setupTestRedis(t)
	rl := NewRedisRateLimiter(client, 1, nil)
	mr.Close()

	assert.True(t, rl.Allow(context.Background(), "10.0.0.1"))
	assert.True(t, rl.Allow(context.Background(), "10.0.0.1"))
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimit(PerMinute(2))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.10:6666"
	req.Header.Set("X-Real-Ip", "198.51.100.7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "X-Real-Ip identifies a different client")
}
