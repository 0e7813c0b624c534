package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/auth"
	"github.com/ukydev/vehicle-marketplace/internal/cache"
	"github.com/ukydev/vehicle-marketplace/internal/commission"
	"github.com/ukydev/vehicle-marketplace/internal/config"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/events"
	"github.com/ukydev/vehicle-marketplace/internal/handlers"
	"github.com/ukydev/vehicle-marketplace/internal/jobs"
	"github.com/ukydev/vehicle-marketplace/internal/messaging"
	"github.com/ukydev/vehicle-marketplace/internal/middleware"
	"github.com/ukydev/vehicle-marketplace/internal/sales"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	config.SetupLogging(cfg)

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("Server stopped with error")
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	client, err := db.ConnectMongo(cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	if err := db.EnsureIndexes(ctx, client.Database(cfg.MongoDB)); err != nil {
		return err
	}
	store := db.NewStore(client, cfg.MongoDB, cfg.MongoTransactions)

	redisClient := connectRedis(ctx, cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher, closePublisher := newPublisher(cfg)
	defer closePublisher()

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return err
	}

	vehicles := newVehicleCollection(store.Vehicles, redisClient, cfg)
	resolver := commission.NewResolver(store.CommissionRules, cfg.DefaultCommissionRate)
	salesService := sales.NewService(sales.Deps{
		Vehicles:     vehicles,
		Transactions: store.Transactions,
		Commissions:  store.Commissions,
		Users:        store.Users,
		Quoter:       resolver,
		Tx:           store.Tx,
		Events:       publisher,
	})
	messagingService := messaging.NewService(store.Conversations, store.Messages, vehicles, publisher)

	scheduler := jobs.NewScheduler(jobs.NewJobs(salesService, cfg.OfferExpiry))
	if err := scheduler.Start(cfg.OfferSweep); err != nil {
		return err
	}
	defer func() {
		<-scheduler.Stop().Done()
	}()

	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:           handlers.NewAuthHandler(authService, store.Users),
		Vehicles:       handlers.NewVehicleHandler(vehicles),
		Transactions:   handlers.NewTransactionHandler(salesService),
		Commissions:    handlers.NewCommissionHandler(store.CommissionRules, store.Commissions, resolver),
		Conversations:  handlers.NewConversationHandler(messagingService),
		Users:          handlers.NewUserHandler(store.Users),
		AuthMiddleware: middleware.NewAuthMiddleware(authService),
		Limiter:        newLimiter(redisClient, cfg),
		RequestTimeout: requestTimeout,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return serve(sigCtx, server)
}

// serve runs server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// connectRedis returns nil when Redis is not configured or unreachable.
func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		log.Info("REDIS_URL not set, running without cache")
		return nil
	}
	client, err := cache.Connect(ctx, url)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, running without cache")
		return nil
	}
	log.Info("Connected to Redis")
	return client
}

// newVehicleCollection wraps listings in the Redis cache when available.
func newVehicleCollection(next db.VehicleCollection, client *redis.Client, cfg *config.Config) db.VehicleCollection {
	if client == nil {
		return next
	}
	return cache.NewVehicles(next, cache.NewRedisStore(client, cfg.CachePrefix), cfg.CacheTTL)
}

// newLimiter shares the budget across instances through Redis when available.
func newLimiter(client *redis.Client, cfg *config.Config) middleware.Limiter {
	if client == nil {
		return middleware.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	return middleware.NewRedisLimiter(client, cfg.CachePrefix, cfg.RateLimitRequests, cfg.RateLimitWindow)
}

// newPublisher connects to the MQTT broker, falling back to a no-op publisher.
func newPublisher(cfg *config.Config) (events.Publisher, func()) {
	if cfg.MQTTBroker == "" {
		return events.Noop{}, func() {}
	}
	client, err := events.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		log.WithError(err).Warn("MQTT broker unavailable, events disabled")
		return events.Noop{}, func() {}
	}
	log.WithField("broker", cfg.MQTTBroker).Info("Connected to MQTT broker")
	return events.NewMQTTPublisher(client, cfg.MQTTTopicPrefix), func() {
		client.Disconnect(250)
	}
}
