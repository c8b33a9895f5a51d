package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marketsage/journey-engine/internal/api"
	"github.com/marketsage/journey-engine/internal/config"
	"github.com/marketsage/journey-engine/internal/events"
	"github.com/marketsage/journey-engine/internal/repository/postgres"
	"github.com/marketsage/journey-engine/internal/service/analytics"
	"github.com/marketsage/journey-engine/internal/service/journey"
	"github.com/marketsage/journey-engine/internal/service/metrics"
	"github.com/marketsage/journey-engine/internal/service/progression"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	// Connect to Redis if enabled
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unavailable (%v), continuing without cache and event publishing", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
		pingCancel()
	}

	// Stage-change event publishing
	var notifier events.Notifier = events.NopNotifier{}
	if cfg.Events.Enabled && redisClient != nil {
		notifier = events.NewRedisPublisher(redisClient, cfg.Events.Channel)
		log.Printf("Stage-change events publishing to %q", cfg.Events.Channel)
	}

	// Wire services over the Postgres repositories
	journeySvc := journey.NewService(postgres.NewJourneyRepo(db))
	progressionSvc := progression.NewService(postgres.NewProgressionRepo(db), notifier)
	analyticsSvc := analytics.NewService(postgres.NewAnalyticsRepo(db), analytics.Config{
		Cache:    redisClient,
		CacheTTL: cfg.Analytics.CacheTTL(),
		DB:       db,
		LockTTL:  cfg.Analytics.LockTTL(),
	})
	metricsSvc := metrics.NewService(postgres.NewMetricsRepo(db), nil)

	server := api.NewServer(cfg.Server, cfg.CORS, journeySvc, progressionSvc, analyticsSvc, metricsSvc)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Println("Server stopped")
}
