// Package broker builds the market data, trading and streaming adapter selected by configuration.
package broker

import (
	"fmt"

	"algoTrader/config"
	"algoTrader/internal/adapters/alpaca"
	"algoTrader/internal/adapters/binanceclient"
	"algoTrader/internal/ports"
)

// Client is everything a broker adapter provides.
type Client interface {
	ports.MarketDataClient
	ports.TradingClient
	ports.StreamClient
}

var (
	_ Client = (*alpaca.Client)(nil)
	_ Client = (*binanceclient.Client)(nil)
)

// New returns the adapter named by cfg.Broker after checking its credentials.
func New(cfg *config.Config, logger ports.Logger) (Client, error) {
	if err := cfg.RequireBrokerCredentials(); err != nil {
		return nil, err
	}

	switch cfg.Broker {
	case config.BrokerAlpaca, "":
		c, err := alpaca.New(alpaca.Config{
			APIKey:               cfg.AlpacaKey,
			SecretKey:            cfg.AlpacaSecret,
			Paper:                cfg.UsingPaper,
			Feed:                 cfg.AlpacaFeed,
			Logger:               logger,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BrokerBinance:
		c, err := binanceclient.New(binanceclient.Config{
			APIKey:               cfg.BinanceAPIKey,
			SecretKey:            cfg.BinanceSecretKey,
			UseTestnet:           cfg.IsTestnet,
			Logger:               logger,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown broker %q", ports.ErrConfigurationError, cfg.Broker)
	}
}
