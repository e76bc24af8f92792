package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

// OrderCounter counts stored orders; ports.OrderRepository satisfies it.
type OrderCounter interface {
	CountSince(ctx context.Context, symbol string, since time.Time) (int, error)
}

// Config holds the pre-trade limits. A zero value disables the limit.
type Config struct {
	MaxOrderQty    decimal.Decimal
	MaxDailyOrders int     // per symbol, counted from the start of the trading day
	MaxOrderPct    float64 // fraction of buying power a single buy may use
}

// Manager checks orders against account state and daily limits before they are sent.
type Manager struct {
	config Config
	orders OrderCounter
	hours  domain.TradingHours
}

// NewManager creates a risk manager. orders may be nil when MaxDailyOrders is 0.
func NewManager(config Config, orders OrderCounter, hours domain.TradingHours) (*Manager, error) {
	if config.MaxOrderQty.IsNegative() || config.MaxDailyOrders < 0 || config.MaxOrderPct < 0 || config.MaxOrderPct > 1 {
		return nil, fmt.Errorf("%w: invalid risk limits %+v", ports.ErrConfigurationError, config)
	}
	if config.MaxDailyOrders > 0 && orders == nil {
		return nil, fmt.Errorf("%w: daily order limit needs an order store", ports.ErrConfigurationError)
	}
	return &Manager{config: config, orders: orders, hours: hours}, nil
}

// CheckOrder returns an error wrapping ports.ErrRiskLimit when req breaks a limit.
// price is the latest known price of the symbol, or 0 when unknown; acct may be nil.
func (m *Manager) CheckOrder(ctx context.Context, req domain.OrderRequest, acct *domain.Account, price float64, now time.Time) error {
	if acct != nil && !acct.CanTrade() {
		return fmt.Errorf("%w: account %s cannot trade (status %s)", ports.ErrRiskLimit, acct.ID, acct.Status)
	}

	if m.config.MaxOrderQty.IsPositive() && req.Qty.GreaterThan(m.config.MaxOrderQty) {
		return fmt.Errorf("%w: quantity %s exceeds maximum %s", ports.ErrRiskLimit, req.Qty, m.config.MaxOrderQty)
	}

	if req.Side == domain.Buy && acct != nil && price > 0 {
		cost := req.Qty.Mul(decimal.NewFromFloat(price))
		budget := acct.BuyingPower
		if m.config.MaxOrderPct > 0 {
			budget = budget.Mul(decimal.NewFromFloat(m.config.MaxOrderPct))
		}
		if cost.GreaterThan(budget) {
			return fmt.Errorf("%w: order cost %s exceeds allowed %s", ports.ErrRiskLimit, cost.StringFixed(2), budget.StringFixed(2))
		}
	}

	if m.config.MaxDailyOrders > 0 {
		n, err := m.orders.CountSince(ctx, req.Symbol, m.hours.StartOfDay(now))
		if err != nil {
			return fmt.Errorf("counting today's orders for %s: %w", req.Symbol, err)
		}
		if n >= m.config.MaxDailyOrders {
			return fmt.Errorf("%w: %d orders for %s today, maximum %d", ports.ErrRiskLimit, n, req.Symbol, m.config.MaxDailyOrders)
		}
	}
	return nil
}
