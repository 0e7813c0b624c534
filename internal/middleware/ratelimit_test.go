package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _, _ := limiter.Allow(ctx, "ip")
	assert.True(t, ok)
	now = now.Add(10 * time.Second)
	ok, _, _ = limiter.Allow(ctx, "ip")
	assert.True(t, ok)

	ok, retry, err := limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second, retry)

	// Other keys have their own budget
	ok, _, _ = limiter.Allow(ctx, "other")
	assert.True(t, ok)

	// The first request leaves the window
	now = now.Add(51 * time.Second)
	ok, _, _ = limiter.Allow(ctx, "ip")
	assert.True(t, ok)
}

func TestMemoryLimiter_ForgetsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(5, time.Minute)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		ok, _, err := limiter.Allow(ctx, ip)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 3, limiter.Keys())

	// Once the window has passed, the next call drops every idle client.
	now = now.Add(61 * time.Second)
	ok, _, _ := limiter.Allow(ctx, "10.0.0.4")
	assert.True(t, ok)
	assert.Equal(t, 1, limiter.Keys())

	// An active client survives the sweep.
	now = now.Add(30 * time.Second)
	_, _, _ = limiter.Allow(ctx, "10.0.0.5")
	now = now.Add(31 * time.Second)
	_, _, _ = limiter.Allow(ctx, "10.0.0.5")
	assert.Equal(t, 1, limiter.Keys())
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("rate limit not exceeded", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled = true })

		RateLimit(NewMemoryLimiter(5, time.Minute), "auth")(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rate limit exceeded", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "192.168.1.2:12345"

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled = true })
		rateLimitHandler := RateLimit(NewMemoryLimiter(1, time.Minute), "auth")(handler)

		// First request should succeed
		w := httptest.NewRecorder()
		rateLimitHandler.ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)

		// Second request should be rate limited
		w = httptest.NewRecorder()
		handlerCalled = false
		rateLimitHandler.ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})

	t.Run("limiter failure lets requests through", func(t *testing.T) {
		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled = true })
		w := httptest.NewRecorder()
		RateLimit(failingLimiter{}, "auth")(handler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.True(t, handlerCalled)
	})
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.RemoteAddr = "[::1]:5555"
	assert.Equal(t, "::1", getClientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.9")
	assert.Equal(t, "172.16.0.9", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}

func TestRedisLimiter_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping integration test")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	limiter := NewRedisLimiter(client, "test", 2, time.Minute)
	key := uuid.NewString()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
}
