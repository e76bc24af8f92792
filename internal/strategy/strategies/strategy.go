// Package strategies holds the concrete ports.Strategy implementations.
package strategies

import (
	"github.com/shopspring/decimal"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

// BaseStrategy provides common functionality for strategies
type BaseStrategy struct {
	logger ports.Logger
}

// NewBaseStrategy creates a new base strategy instance
func NewBaseStrategy(logger ports.Logger) *BaseStrategy {
	return &BaseStrategy{
		logger: logger,
	}
}

// marketIntent builds a market order intent.
func marketIntent(symbol string, side domain.OrderSide, qty decimal.Decimal, reason string) domain.OrderIntent {
	return domain.OrderIntent{
		Symbol: symbol,
		Side:   side,
		Type:   domain.OrderTypeMarket,
		Qty:    qty,
		Reason: reason,
	}
}

// accountBlocked reports whether the state carries an account that cannot trade.
func accountBlocked(state domain.MarketState) bool {
	return state.Account != nil && !state.Account.CanTrade()
}
