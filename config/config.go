package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TRADING_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"

	"algoTrader/internal/adapters/logger" // Import the logger package for LogLevel
	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

// Supported broker adapters.
const (
	BrokerAlpaca  = "alpaca"
	BrokerBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Broker selection
	Broker string

	// Alpaca API
	AlpacaKey    string
	AlpacaSecret string
	UsingPaper   bool
	AlpacaFeed   string // iex or sip

	// Binance API
	BinanceAPIKey    string
	BinanceSecretKey string
	IsTestnet        bool

	// Universe
	Symbols []string

	// Trading window
	TradingHours    domain.TradingHours
	TradingInterval time.Duration

	// Strategy Parameters
	Strategy              string
	DemoSymbol            string
	DemoQuantity          float64
	OrderQuantity         float64
	StrategyShortMAPeriod int
	StrategyLongMAPeriod  int
	StrategyRSIPeriod     int
	StrategyRSIOverbought float64

	// Risk limits, zero disables
	RiskMaxOrderQty    float64
	RiskMaxDailyOrders int
	RiskMaxOrderPct    float64

	// Historical fetch
	FetchWindow   time.Duration
	FetchDelay    time.Duration
	FetchChannels []domain.Channel

	// Export / Database
	DataDir      string
	ExportFormat string // csv, json, parquet or sqlite
	DBPath       string

	// News
	MarketauxToken string
	NewsFrequency  time.Duration

	// Logging
	LogLevel logger.LogLevel

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
// Credentials are checked separately by RequireBrokerCredentials and RequireMarketaux
// so that each command only demands what it uses.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.Broker = strings.ToLower(getEnv("BROKER", BrokerAlpaca))
	if cfg.Broker != BrokerAlpaca && cfg.Broker != BrokerBinance {
		errs = append(errs, fmt.Sprintf("BROKER must be %q or %q", BrokerAlpaca, BrokerBinance))
	}

	// Alpaca API
	cfg.AlpacaKey = getEnv("ALPACA_KEY", "")
	cfg.AlpacaSecret = getEnv("ALPACA_SECRET", "")
	cfg.UsingPaper = getEnvAsBool("USING_PAPER", true) // Default to paper for safety
	cfg.AlpacaFeed = strings.ToLower(getEnv("ALPACA_FEED", "iex"))
	if cfg.AlpacaFeed != "iex" && cfg.AlpacaFeed != "sip" {
		errs = append(errs, "ALPACA_FEED must be iex or sip")
	}

	// Binance API
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true)

	// Universe
	cfg.Symbols = getEnvAsList("STOCKS")
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "STOCKS must list at least one symbol")
	}

	// Trading window
	loc, locErr := time.LoadLocation(getEnv("TRADING_TIMEZONE", "America/New_York"))
	if locErr != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADING_TIMEZONE: %v", locErr))
		loc = time.UTC
	}
	cfg.TradingHours, err = domain.ParseTradingHours(getEnv("TRADING_START", "09:30"), getEnv("TRADING_END", "16:00"), loc)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid trading hours: %v", err))
	}

	intervalSeconds, err := getEnvAsIntRequired("TRADING_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADING_INTERVAL_SECONDS: %v", err))
	} else if intervalSeconds <= 0 {
		errs = append(errs, "TRADING_INTERVAL_SECONDS must be positive")
	}
	cfg.TradingInterval = time.Duration(intervalSeconds) * time.Second

	// Strategy Parameters (using defaults if not set)
	cfg.Strategy = strings.ToLower(getEnv("STRATEGY", "demo"))
	cfg.DemoSymbol = strings.ToUpper(getEnv("DEMO_SYMBOL", "AAPL"))
	cfg.DemoQuantity, err = getEnvAsFloatRequired("DEMO_QTY", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEMO_QTY: %v", err))
	} else if cfg.DemoQuantity <= 0 {
		errs = append(errs, "DEMO_QTY must be positive")
	}
	cfg.OrderQuantity, err = getEnvAsFloatRequired("ORDER_QTY", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ORDER_QTY: %v", err))
	} else if cfg.OrderQuantity <= 0 {
		errs = append(errs, "ORDER_QTY must be positive")
	}
	cfg.StrategyShortMAPeriod = getEnvAsInt("STRATEGY_SHORT_MA_PERIOD", 5)
	cfg.StrategyLongMAPeriod = getEnvAsInt("STRATEGY_LONG_MA_PERIOD", 20)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)

	if cfg.StrategyShortMAPeriod <= 0 || cfg.StrategyLongMAPeriod <= 0 || cfg.StrategyRSIPeriod <= 0 {
		errs = append(errs, "strategy periods (MA, RSI) must be positive")
	}
	if cfg.StrategyShortMAPeriod >= cfg.StrategyLongMAPeriod {
		errs = append(errs, "STRATEGY_SHORT_MA_PERIOD must be less than STRATEGY_LONG_MA_PERIOD")
	}
	if cfg.StrategyRSIOverbought <= 0 || cfg.StrategyRSIOverbought > 100 {
		errs = append(errs, "STRATEGY_RSI_OVERBOUGHT must be between 0 and 100")
	}

	// Risk limits
	cfg.RiskMaxOrderQty = getEnvAsFloat("RISK_MAX_ORDER_QTY", 0)
	cfg.RiskMaxDailyOrders = getEnvAsInt("RISK_MAX_DAILY_ORDERS", 0)
	cfg.RiskMaxOrderPct = getEnvAsFloat("RISK_MAX_ORDER_PCT", 0)
	if cfg.RiskMaxOrderQty < 0 || cfg.RiskMaxDailyOrders < 0 {
		errs = append(errs, "RISK_MAX_ORDER_QTY and RISK_MAX_DAILY_ORDERS cannot be negative")
	}
	if cfg.RiskMaxOrderPct < 0 || cfg.RiskMaxOrderPct > 1 {
		errs = append(errs, "RISK_MAX_ORDER_PCT must be between 0 and 1")
	}

	// Historical fetch
	cfg.FetchWindow, err = getEnvAsDurationRequired("FETCH_WINDOW", time.Minute)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_WINDOW: %v", err))
	} else if cfg.FetchWindow <= 0 {
		errs = append(errs, "FETCH_WINDOW must be positive")
	}
	cfg.FetchDelay, err = getEnvAsDurationRequired("FETCH_DELAY", 500*time.Millisecond)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_DELAY: %v", err))
	} else if cfg.FetchDelay < 0 {
		errs = append(errs, "FETCH_DELAY cannot be negative")
	}
	cfg.FetchChannels, err = domain.ParseChannels(getEnv("FETCH_CHANNELS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_CHANNELS: %v", err))
	}

	// Export / Database
	cfg.DataDir = getEnv("DATA_DIR", "data")
	cfg.ExportFormat = strings.ToLower(getEnv("EXPORT_FORMAT", "csv"))
	switch cfg.ExportFormat {
	case "csv", "json", "parquet", "sqlite":
	default:
		errs = append(errs, "EXPORT_FORMAT must be one of csv, json, parquet, sqlite")
	}
	cfg.DBPath = getEnv("DB_PATH", "./data/algo_trader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// News
	cfg.MarketauxToken = getEnv("MARKETAUX_TOKEN", "")
	newsMinutes, err := getEnvAsIntRequired("NEWS_FREQUENCY_MINUTES", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid NEWS_FREQUENCY_MINUTES: %v", err))
	} else if newsMinutes <= 0 {
		errs = append(errs, "NEWS_FREQUENCY_MINUTES must be positive")
	}
	cfg.NewsFrequency = time.Duration(newsMinutes) * time.Minute

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: configuration validation failed: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// RequireBrokerCredentials checks that the selected broker has its keys set.
func (c *Config) RequireBrokerCredentials() error {
	var errs []string
	switch c.Broker {
	case BrokerBinance:
		if c.BinanceAPIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if c.BinanceSecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	default:
		if c.AlpacaKey == "" {
			errs = append(errs, "ALPACA_KEY must be set")
		}
		if c.AlpacaSecret == "" {
			errs = append(errs, "ALPACA_SECRET must be set")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return nil
}

// RequireMarketaux checks that the news API token is set.
func (c *Config) RequireMarketaux() error {
	if c.MarketauxToken == "" {
		return fmt.Errorf("%w: MARKETAUX_TOKEN must be set", ports.ErrConfigurationError)
	}
	return nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, trimming and upper-casing entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if v := strings.ToUpper(strings.TrimSpace(part)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDurationRequired(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
