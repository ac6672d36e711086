/**
 * @description
 * This is the main entry point for the payment-service. It loads configuration,
 * opens the order/ledger store, connects the optional Redis and RabbitMQ
 * dependencies, builds the Paytm client and the payment workflow, and serves the
 * /payment routes until it receives SIGINT or SIGTERM.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Rate limiting and per-user order locks.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/paytmclient: Client for the Paytm initiate-transaction API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/transfa/payment-service/internal/api"
	"github.com/transfa/payment-service/internal/app"
	"github.com/transfa/payment-service/internal/config"
	"github.com/transfa/payment-service/internal/store"
	"github.com/transfa/payment-service/pkg/paytmclient"
	rmrabbit "github.com/transfa/payment-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting payment-service\" port=%s store=%s", cfg.ServerPort, cfg.StoreDriver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"store init failed\" driver=%s err=%v", cfg.StoreDriver, err)
	}
	defer repository.Close()
	log.Printf("level=info component=bootstrap msg=\"store ready\" driver=%s", cfg.StoreDriver)

	redisClient := connectRedis(cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher app.EventPublisher = &rmrabbit.EventProducerFallback{}
	if cfg.RabbitMQURL == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; payment events disabled\" env=RABBITMQ_URL")
	} else if producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer producer.Close()
		publisher = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	gateway := paytmclient.NewClient(paytmclient.Config{
		MerchantID:      cfg.PaytmMerchantID,
		MerchantKey:     cfg.PaytmMerchantKey,
		Website:         cfg.PaytmWebsite,
		FallbackWebsite: cfg.PaytmFallbackWebsite,
		CallbackURL:     cfg.PaytmCallbackURL,
		ChannelID:       cfg.PaytmChannelID,
		IndustryType:    cfg.PaytmIndustryType,
		BaseURL:         cfg.PaytmGatewayBaseURL,
		Timeout:         cfg.PaytmTimeout(),
	})
	log.Printf("level=info component=bootstrap msg=\"paytm client ready\" host=%s", paytmclient.HostFor(cfg.PaytmWebsite, cfg.PaytmMerchantID))

	// Initialize the payment workflow.
	catalog := app.NewCatalog(cfg.PaytmCurrency)
	events := app.NewEvents(publisher, cfg.EventsExchange)

	orders := app.NewOrderInitiator(repository, catalog, gateway, events)
	if redisClient != nil {
		orders.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix), cfg.CreateOrderRateLimitPerMinute)
		orders.SetOrderLocker(app.NewRedisOrderLocker(redisClient, cfg.RedisKeyPrefix, cfg.OrderLockTTL()))
	}

	verifier := app.NewCallbackVerifier(repository, cfg.PaytmMerchantKey)
	ledger := app.NewLedger(repository, events, cfg.SubscriptionPeriod())
	paymentService := app.NewService(repository, orders, verifier, ledger)

	// Background job that lapses expired paid subscriptions.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	scheduler := app.NewScheduler(app.NewJobs(repository, logger), logger, cfg.SubscriptionLapseSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler start failed\" schedule=%q err=%v", cfg.SubscriptionLapseSchedule, err)
	}

	handler := api.NewHandler(paymentService)
	router := api.NewRouter(handler, api.NewJWKSKeySource(cfg.ClerkJWKSURL), cfg.AllowedOrigins())

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Wait for a running lapse pass to finish.
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		log.Println("level=warn component=scheduler msg=\"lapse job still running at shutdown\"")
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

func openRepository(ctx context.Context, cfg config.Config) (store.Repository, error) {
	if cfg.StoreDriver == "sqlite" {
		repository, err := store.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repository, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to work behind PgBouncer transaction pooling.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	repository := store.NewPostgresRepository(dbpool)
	if cfg.AutoMigrate {
		if err := repository.EnsureSchema(ctx); err != nil {
			dbpool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return repository, nil
}

// connectRedis returns nil when Redis is not configured or not reachable; the
// rate limiter and order lock are then disabled.
func connectRedis(redisURL string) *redis.Client {
	if redisURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; create-order rate limiting and locking disabled\" env=REDIS_URL")
		return nil
	}

	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; create-order rate limiting and locking disabled\" err=%v", err)
		return nil
	}

	client := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; create-order rate limiting and locking disabled\" err=%v", err)
		client.Close()
		return nil
	}

	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}
