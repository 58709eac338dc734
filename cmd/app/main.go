package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"trailsbuddy/internal/config"
	"trailsbuddy/internal/contest"
	"trailsbuddy/internal/db"
	"trailsbuddy/internal/logger"
	"trailsbuddy/internal/notification"
	"trailsbuddy/internal/play"
	"trailsbuddy/internal/server"
	"trailsbuddy/internal/settlement"
	"trailsbuddy/internal/user"
	"trailsbuddy/internal/wallet"
)

func main() {
	logger.Init()
	logger.Info("Starting trailsbuddy application")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	notificationService := notification.NewService(database)
	dispatcher := notification.NewDispatcher(
		database,
		notificationService,
		redisClient,
		cfg.NotificationQueue,
		cfg.NotificationInterval,
		cfg.NotificationMaxRetry,
	)

	contests := contest.NewRepository(database)
	trackers := play.NewRepository(database)
	users := user.NewRepository(database)
	walletRepo := wallet.NewRepository(database)
	walletService := wallet.NewService(database, walletRepo, notificationService)
	playService := play.NewService(database, contests, trackers, walletRepo)

	settler := settlement.NewSettler(
		database,
		contests,
		trackers,
		walletRepo,
		users,
		notificationService,
		cfg.SettlementMaxAttempts,
	)
	scheduler := settlement.NewScheduler(settler, cfg.SettlementInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)
	go scheduler.Run(ctx)

	srv := server.New(database, cfg, walletService, playService, contests, settler)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
