package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"algoTrader/config"
	"algoTrader/internal/adapters/logger"
	"algoTrader/internal/adapters/marketaux"
	"algoTrader/internal/adapters/sqlite"
	"algoTrader/internal/newsbot"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if err := cfg.RequireMarketaux(); err != nil {
		log.Fatalf("FATAL: %v", err)
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

	source, err := marketaux.New(marketaux.Config{Token: cfg.MarketauxToken, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Marketaux client: %v", err)
	}

	bot, err := newsbot.New(source, appLogger, repo, cfg.Symbols, cfg.TradingHours, cfg.NewsFrequency)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize news bot: %v", err)
	}
	if err := bot.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "News bot exited with error")
		log.Fatalf("FATAL: News bot exited with error: %v", err)
	}
}
