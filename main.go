package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"algoTrader/config"
	"algoTrader/internal/adapters/logger"
	"algoTrader/internal/adapters/sqlite"
	"algoTrader/internal/app"
	"algoTrader/internal/broker"
	"algoTrader/internal/risk"
	"algoTrader/internal/strategy"
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
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
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
	appLogger.Info(ctx, "Broker client initialized", map[string]interface{}{"broker": cfg.Broker})

	// 5. Initialize Strategy
	strat, err := strategy.New(strategy.Config{
		Name:              cfg.Strategy,
		DemoSymbol:        cfg.DemoSymbol,
		DemoQty:           cfg.DemoQuantity,
		Symbols:           cfg.Symbols,
		OrderQty:          cfg.OrderQuantity,
		ShortTermMAPeriod: cfg.StrategyShortMAPeriod,
		LongTermMAPeriod:  cfg.StrategyLongMAPeriod,
		RSIPeriod:         cfg.StrategyRSIPeriod,
		RSIOverbought:     cfg.StrategyRSIOverbought,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading strategy")
		log.Fatalf("FATAL: Failed to initialize trading strategy: %v", err)
	}
	appLogger.Info(ctx, "Trading strategy initialized", map[string]interface{}{"strategy": strat.Name()})

	// 6. Initialize Risk Manager and Trader
	riskManager, err := risk.NewManager(risk.Config{
		MaxOrderQty:    decimal.NewFromFloat(cfg.RiskMaxOrderQty),
		MaxDailyOrders: cfg.RiskMaxDailyOrders,
		MaxOrderPct:    cfg.RiskMaxOrderPct,
	}, repo, cfg.TradingHours)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize risk manager")
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}
	trader, err := app.NewTrader(cfg, appLogger, client, client, repo, strat, app.WithRiskManager(riskManager))
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trader")
		log.Fatalf("FATAL: Failed to initialize trader: %v", err)
	}

	// 7. Trade until the session closes, then report the day
	if err := trader.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "Trader exited with error")
		log.Fatalf("FATAL: Trader exited with error: %v", err)
	}

	// The report still runs after an interrupt.
	if _, err := trader.ResultsForDay(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error(ctx, err, "Failed to collect results for day")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
