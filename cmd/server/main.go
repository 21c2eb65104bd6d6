package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/game-lobby/internal/config"
	"github.com/game-lobby/internal/handler"
	"github.com/game-lobby/internal/kafka"
	"github.com/game-lobby/internal/logging"
	"github.com/game-lobby/internal/memory"
	"github.com/game-lobby/internal/postgres"
	"github.com/game-lobby/internal/redis"
	"github.com/game-lobby/internal/room"
	"github.com/game-lobby/internal/store"
	"github.com/game-lobby/internal/websocket"
	"github.com/game-lobby/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, loadErr := config.Load(*configPath)
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)
	if loadErr != nil {
		logger.Warn("failed to load config file, using defaults", "path", *configPath, "error", loadErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	registry := room.NewRegistry(st, &cfg.Registry, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(&cfg.Realtime, logger)
	logger.Info("WebSocket hub initialized")

	// Relay game-started events between instances
	if cfg.Realtime.RelayEnabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		relay, err := redis.NewRelay(ctx, &cfg.Redis, cfg.Realtime.RelayChannel, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without relay", "error", err)
		} else {
			defer relay.Close()
			wsHub.SetRelay(relay)
			go func() {
				if err := relay.Run(ctx, wsHub.Deliver); err != nil {
					logger.Error("relay stopped, delivering locally", "error", err)
					wsHub.SetRelay(nil)
				}
			}()
		}
	}

	// Initialize Kafka consumer for score ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, registry, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	// Sweep rooms nobody is in
	janitor := worker.NewJanitor(registry, &cfg.Janitor, logger)
	if cfg.Janitor.Enabled {
		if err := janitor.Start(ctx); err != nil {
			logger.Error("failed to start janitor", "error", err)
			os.Exit(1)
		}
	}

	httpHandler := handler.NewHandler(registry, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server first so no new work arrives
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Disconnect WebSocket clients
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := janitor.Stop(); err != nil {
		logger.Error("failed to stop janitor", "error", err)
	}

	cancel()
	logger.Info("server stopped")
}

// openStore connects the configured store driver.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	case config.DriverPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
