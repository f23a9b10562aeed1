package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arcade-backend/internal/account"
	"github.com/arcade-backend/internal/config"
	"github.com/arcade-backend/internal/handler"
	"github.com/arcade-backend/internal/kafka"
	"github.com/arcade-backend/internal/leaderboard"
	"github.com/arcade-backend/internal/postgres"
	"github.com/arcade-backend/internal/progress"
	"github.com/arcade-backend/internal/session"
	"github.com/arcade-backend/internal/store"
	"github.com/arcade-backend/internal/websocket"
	"github.com/arcade-backend/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the record store
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	recordStore, err := store.NewRedisStore(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer recordStore.Close()
	logger.Info("connected to Redis")

	// Initialize the event archive
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	archive, err := postgres.NewArchive(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer archive.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := archive.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	accounts := account.NewService(recordStore, logger)
	gate := progress.NewGate(recordStore, logger)
	leaderboards := leaderboard.NewEngine(recordStore, cfg.Games, archive, logger)
	sessions := session.NewMachine(recordStore, cfg.Session, archive, logger)

	// Wire live updates
	leaderboards.SetBroadcaster(wsHub)
	sessions.SetBroadcaster(wsHub)

	// Initialize recovery worker
	recoveryWorker := worker.NewRecoveryWorker(
		leaderboards,
		archive,
		&cfg.Recovery,
		logger,
	)

	// Restore materialized high scores from the archive on startup
	logger.Info("restoring high scores from archive")
	recoveryWorker.RepairAll(ctx)

	// Start recovery worker
	if cfg.Recovery.Enabled {
		if err := recoveryWorker.Start(ctx); err != nil {
			logger.Error("failed to start recovery worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for high-volume score ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, leaderboards, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(accounts, gate, sessions, leaderboards, wsHub, logger)

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
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop recovery worker
	if cfg.Recovery.Enabled {
		if err := recoveryWorker.Stop(); err != nil {
			logger.Error("failed to stop recovery worker", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
