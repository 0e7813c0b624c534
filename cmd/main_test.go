package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/vehicle-marketplace/internal/cache"
	"github.com/ukydev/vehicle-marketplace/internal/config"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/events"
	"github.com/ukydev/vehicle-marketplace/internal/middleware"
)

func testConfig() *config.Config {
	return &config.Config{
		CachePrefix:       "marketplace:",
		CacheTTL:          time.Minute,
		RateLimitRequests: 10,
		RateLimitWindow:   time.Minute,
		MQTTTopicPrefix:   "marketplace",
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, server) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	server := &http.Server{Addr: "not-an-address", Handler: http.NotFoundHandler()}
	err := serve(context.Background(), server)
	assert.Error(t, err)
}

func TestConnectRedis_Optional(t *testing.T) {
	assert.Nil(t, connectRedis(context.Background(), ""))
	assert.Nil(t, connectRedis(context.Background(), "not a redis url"))
}

func TestNewVehicleCollection(t *testing.T) {
	base := &db.MongoVehicleCollection{}

	assert.Same(t, base, newVehicleCollection(base, nil, testConfig()))

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, ok := newVehicleCollection(base, client, testConfig()).(*cache.Vehicles)
	assert.True(t, ok)
}

func TestNewLimiter(t *testing.T) {
	_, ok := newLimiter(nil, testConfig()).(*middleware.MemoryLimiter)
	assert.True(t, ok)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, ok = newLimiter(client, testConfig()).(*middleware.RedisLimiter)
	assert.True(t, ok)
}

func TestNewPublisher_WithoutBroker(t *testing.T) {
	publisher, closeFn := newPublisher(testConfig())
	require.NotNil(t, closeFn)
	defer closeFn()
	assert.IsType(t, events.Noop{}, publisher)
}
