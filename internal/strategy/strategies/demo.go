package strategies

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"algoTrader/internal/domain"
)

// Demo buys a fixed quantity of one symbol on its first iteration and then stays silent.
type Demo struct {
	*BaseStrategy
	symbol string
	qty    decimal.Decimal
	fired  bool
}

// NewDemo creates the demo strategy.
func NewDemo(symbol string, qty decimal.Decimal, base *BaseStrategy) (*Demo, error) {
	if base == nil || base.logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("demo strategy requires a symbol")
	}
	if !qty.IsPositive() {
		return nil, fmt.Errorf("demo strategy quantity must be positive, got %s", qty)
	}
	return &Demo{BaseStrategy: base, symbol: symbol, qty: qty}, nil
}

// Name returns the name of the strategy
func (d *Demo) Name() string {
	return "demo"
}

// RequiredBars is zero; the demo does not look at prices.
func (d *Demo) RequiredBars() int {
	return 0
}

// CheckSignals returns a single market buy the first time it runs.
func (d *Demo) CheckSignals(ctx context.Context, state domain.MarketState) ([]domain.OrderIntent, error) {
	if d.fired || accountBlocked(state) {
		return nil, nil
	}
	d.fired = true
	d.logger.Info(ctx, "Demo strategy placing its order", map[string]interface{}{"symbol": d.symbol, "qty": d.qty.String()})
	return []domain.OrderIntent{marketIntent(d.symbol, domain.Buy, d.qty, "demo order")}, nil
}
