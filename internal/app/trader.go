package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"algoTrader/config"
	"algoTrader/internal/domain"
	"algoTrader/internal/fetcher"
	"algoTrader/internal/ports"
	"algoTrader/internal/risk"
)

// Trader runs a strategy against a broker during the configured trading hours.
type Trader struct {
	cfg      *config.Config
	logger   ports.Logger
	trading  ports.TradingClient
	orders   ports.OrderRepository
	strategy ports.Strategy
	risk     *risk.Manager // optional
	bars     *fetcher.Fetcher
	validate *validator.Validate
	now      func() time.Time
	sleep    fetcher.Sleeper
}

// TraderOption configures a Trader.
type TraderOption func(*Trader)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TraderOption {
	return func(t *Trader) { t.now = now }
}

// WithSleeper replaces the pause between iterations.
func WithSleeper(s fetcher.Sleeper) TraderOption {
	return func(t *Trader) { t.sleep = s }
}

// WithRiskManager checks every strategy order against pre-trade limits.
func WithRiskManager(m *risk.Manager) TraderOption {
	return func(t *Trader) { t.risk = m }
}

// NewTrader creates a trader. Recent bars are pulled through a windowed fetcher over market.
func NewTrader(
	cfg *config.Config,
	logger ports.Logger,
	trading ports.TradingClient,
	market ports.MarketDataClient,
	orders ports.OrderRepository,
	strat ports.Strategy,
	opts ...TraderOption,
) (*Trader, error) {
	if cfg == nil || logger == nil || trading == nil || market == nil || orders == nil || strat == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for Trader", ports.ErrConfigurationError)
	}
	if cfg.TradingInterval <= 0 {
		return nil, fmt.Errorf("%w: trading interval must be positive", ports.ErrConfigurationError)
	}

	bars, err := fetcher.New(market, logger, fetcher.WithDelay(cfg.FetchDelay))
	if err != nil {
		return nil, err
	}

	t := &Trader{
		cfg:      cfg,
		logger:   logger,
		trading:  trading,
		orders:   orders,
		strategy: strat,
		bars:     bars,
		validate: validator.New(),
		now:      time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// VerifyAccount checks that the broker account is reachable. Any failure wraps ErrConnectionFailed.
func (t *Trader) VerifyAccount(ctx context.Context) (*domain.Account, error) {
	acct, err := t.trading.GetAccount(ctx)
	if err != nil {
		if !errors.Is(err, ports.ErrConnectionFailed) {
			err = fmt.Errorf("%w: %w", ports.ErrConnectionFailed, err)
		}
		t.logger.Error(ctx, err, "Failed to verify broker account")
		return nil, err
	}
	t.logger.Info(ctx, "Broker account verified", map[string]interface{}{
		"accountID":   acct.ID,
		"status":      acct.Status,
		"cash":        acct.Cash.String(),
		"buyingPower": acct.BuyingPower.String(),
		"canTrade":    acct.CanTrade(),
	})
	return acct, nil
}

// PlaceOrder validates and submits an order, then records it.
func (t *Trader) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	if err := t.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}
	if !req.Qty.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive, got %s", ports.ErrInvalidRequest, req.Qty)
	}
	if req.Type == domain.OrderTypeLimit && (req.LimitPrice == nil || !req.LimitPrice.IsPositive()) {
		return nil, fmt.Errorf("%w: limit order requires a positive limit price", ports.ErrInvalidRequest)
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	order, err := t.trading.SubmitOrder(ctx, req)
	if err != nil {
		t.logger.Error(ctx, err, "Order submission failed", map[string]interface{}{
			"symbol": req.Symbol, "side": string(req.Side), "qty": req.Qty.String(), "clientOrderID": req.ClientOrderID,
		})
		return nil, err
	}
	t.logger.Info(ctx, "Order submitted", map[string]interface{}{
		"orderID": order.ID, "symbol": order.Symbol, "side": string(order.Side),
		"qty": order.Qty.String(), "status": string(order.Status),
	})

	if err := t.orders.SaveOrder(ctx, order); err != nil {
		// The order is live at the broker either way.
		t.logger.Error(ctx, err, "Failed to persist submitted order", map[string]interface{}{"orderID": order.ID})
	}
	return order, nil
}

// Run verifies the account and then runs one strategy iteration per trading interval
// while the clock is inside trading hours. It returns nil when the window closes or ctx ends.
func (t *Trader) Run(ctx context.Context) error {
	if _, err := t.VerifyAccount(ctx); err != nil {
		return err
	}
	t.logger.Info(ctx, "Trader started", map[string]interface{}{
		"strategy": t.strategy.Name(),
		"hours":    t.cfg.TradingHours.String(),
		"interval": t.cfg.TradingInterval.String(),
		"symbols":  t.cfg.Symbols,
	})

	for iteration := 1; ; iteration++ {
		now := t.now()
		if !t.cfg.TradingHours.Contains(now) {
			t.logger.Info(ctx, "Outside trading hours, trader stopping", map[string]interface{}{"iterations": iteration - 1})
			return nil
		}

		if err := t.iterate(ctx, now); err != nil {
			if ctx.Err() != nil {
				break
			}
			t.logger.Error(ctx, err, "Trading iteration failed", map[string]interface{}{"iteration": iteration})
		}

		// never sleep past the close
		wait := min(t.cfg.TradingInterval, t.cfg.TradingHours.Remaining(t.now()))
		if err := t.sleep(ctx, wait); err != nil {
			break
		}
	}
	t.logger.Info(ctx, "Trader stopped by context")
	return nil
}

func (t *Trader) iterate(ctx context.Context, now time.Time) error {
	state := domain.MarketState{Now: now, Bars: make(map[string][]domain.Bar)}

	acct, err := t.trading.GetAccount(ctx)
	if err != nil {
		t.logger.Warn(ctx, "Account refresh failed, continuing without account state", map[string]interface{}{"error": err.Error()})
	} else {
		state.Account = acct
	}

	if n := t.strategy.RequiredBars(); n > 0 {
		for _, symbol := range t.cfg.Symbols {
			bars, err := t.recentBars(ctx, symbol, now, n)
			if err != nil {
				return err
			}
			state.Bars[symbol] = bars
		}
	}

	intents, err := t.strategy.CheckSignals(ctx, state)
	if err != nil {
		return fmt.Errorf("strategy %s: %w", t.strategy.Name(), err)
	}

	for _, intent := range intents {
		req := domain.OrderRequest{
			Symbol:      intent.Symbol,
			Qty:         intent.Qty,
			Side:        intent.Side,
			Type:        intent.Type,
			TimeInForce: domain.TimeInForceDay,
			LimitPrice:  intent.LimitPrice,
		}
		t.logger.Info(ctx, "Strategy signal", map[string]interface{}{
			"strategy": t.strategy.Name(), "symbol": intent.Symbol, "side": string(intent.Side), "reason": intent.Reason,
		})
		if t.risk != nil {
			price, _ := state.LatestClose(intent.Symbol)
			if err := t.risk.CheckOrder(ctx, req, state.Account, price, now); err != nil {
				t.logger.Warn(ctx, "Order skipped by risk check", map[string]interface{}{"symbol": intent.Symbol, "error": err.Error()})
				t.report(ctx, intent, nil, err)
				continue
			}
		}
		order, err := t.PlaceOrder(ctx, req)
		t.report(ctx, intent, order, err)
		if err != nil && ctx.Err() != nil {
			return err
		}
	}
	return nil
}

// report tells the strategy what became of an intent, if it wants to know.
func (t *Trader) report(ctx context.Context, intent domain.OrderIntent, order *domain.Order, err error) {
	if obs, ok := t.strategy.(ports.OrderObserver); ok {
		obs.OnOrderResult(ctx, intent, order, err)
	}
}

// recentBars returns up to n one-minute bars ending before now. It asks for twice
// the span to ride over gaps in sparse feeds.
func (t *Trader) recentBars(ctx context.Context, symbol string, now time.Time, n int) ([]domain.Bar, error) {
	lookback := time.Duration(2*n) * time.Minute
	end := now.UTC().Truncate(time.Minute)
	result, err := t.bars.Fetch(ctx, fetcher.Request{
		Symbol:     symbol,
		Start:      end.Add(-lookback),
		End:        end,
		WindowSize: lookback,
		Channels:   []domain.Channel{domain.ChannelBars},
	})
	if err != nil {
		return nil, fmt.Errorf("recent bars for %s: %w", symbol, err)
	}
	bars := result.Bars
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

// ResultsForDay lists the day's orders, records them and summarises fills.
func (t *Trader) ResultsForDay(ctx context.Context) (*domain.DailyResult, error) {
	now := t.now()
	day := t.cfg.TradingHours.StartOfDay(now)

	symbols := slices.Clone(t.cfg.Symbols)
	if t.cfg.DemoSymbol != "" && !slices.Contains(symbols, t.cfg.DemoSymbol) {
		symbols = append(symbols, t.cfg.DemoSymbol)
	}
	orders, err := t.trading.ListOrders(ctx, domain.OrderQuery{Symbols: symbols, After: day, Until: now})
	if err != nil {
		return nil, fmt.Errorf("listing orders for %s: %w", day.Format(time.DateOnly), err)
	}

	result := &domain.DailyResult{Date: day, Orders: orders}
	for _, o := range orders {
		if err := t.orders.SaveOrder(ctx, o); err != nil {
			return nil, err
		}
		switch {
		case o.Status == domain.OrderStatusFilled:
			result.Filled++
		case !o.Status.IsTerminal():
			result.Open++
		}
		if o.Side == domain.Buy {
			result.BuyNotional = result.BuyNotional.Add(o.Notional())
		} else {
			result.SellNotional = result.SellNotional.Add(o.Notional())
		}
	}

	t.logger.Info(ctx, "Results for day", map[string]interface{}{
		"date":         day.Format(time.DateOnly),
		"orders":       len(orders),
		"filled":       result.Filled,
		"open":         result.Open,
		"buyNotional":  result.BuyNotional.String(),
		"sellNotional": result.SellNotional.String(),
	})
	return result, nil
}
