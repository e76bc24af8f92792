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

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

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

	client, err := broker.New(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize broker client")
		log.Fatalf("FATAL: Failed to initialize broker client: %v", err)
	}

	handler, err := app.NewStatusHandler(client, repo, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize status handler: %v", err)
	}
	if err := handler.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "Trade update stream exited with error")
		log.Fatalf("FATAL: Trade update stream exited with error: %v", err)
	}
	appLogger.Info(context.Background(), "Trade update stream finished")
}
