package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"algoTrader/config"
	"algoTrader/internal/adapters/logger"
	"algoTrader/internal/adapters/sqlite"
	"algoTrader/internal/app"
	"algoTrader/internal/broker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	// 3. Initialize Repository for streamed news
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Broker Client
	client, err := broker.New(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize broker client")
		log.Fatalf("FATAL: Failed to initialize broker client: %v", err)
	}

	// 5. Stream until interrupted
	streamer, err := app.NewMarketStreamer(client, appLogger, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize market streamer: %v", err)
	}
	if err := streamer.Run(ctx, cfg.FetchChannels, cfg.Symbols); err != nil {
		appLogger.Error(ctx, err, "Market stream exited with error")
		log.Fatalf("FATAL: Market stream exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Market stream finished", map[string]interface{}{"counts": streamer.Counts()})
}
