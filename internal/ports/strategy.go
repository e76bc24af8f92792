package ports

import (
	"context"

	"algoTrader/internal/domain"
)

// Strategy evaluates market state and proposes orders.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// RequiredBars is the number of recent bars per symbol the strategy needs.
	RequiredBars() int

	// CheckSignals runs once per trading iteration and may return no intents.
	CheckSignals(ctx context.Context, state domain.MarketState) ([]domain.OrderIntent, error)
}

// OrderObserver is implemented by strategies that track their own positions. The
// trader reports the outcome of every intent: order is nil when err is non-nil,
// whether the intent was refused by the risk check or by the broker.
type OrderObserver interface {
	OnOrderResult(ctx context.Context, intent domain.OrderIntent, order *domain.Order, err error)
}
