package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoTrader/config"
	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
	"algoTrader/internal/risk"
	"algoTrader/internal/strategy/strategies"
)

type traderFixture struct {
	trader   *Trader
	logger   *mockLogger
	trading  *mockTrading
	market   *mockMarket
	orders   *mockOrders
	strategy ports.Strategy
	now      time.Time
	sleeps   int
	slept    []time.Duration
}

func newTraderFixture(t *testing.T, start time.Time, strat ports.Strategy) *traderFixture {
	t.Helper()
	hours, err := domain.ParseTradingHours("09:30", "16:00", time.UTC)
	require.NoError(t, err)

	cfg := &config.Config{
		Symbols:         []string{"AAPL"},
		DemoSymbol:      "MSFT",
		TradingHours:    hours,
		TradingInterval: 2 * time.Hour,
		FetchDelay:      0,
	}
	f := &traderFixture{
		logger:   &mockLogger{},
		trading:  &mockTrading{account: &domain.Account{ID: "acct", Status: "ACTIVE"}},
		market:   &mockMarket{},
		orders:   newMockOrders(),
		strategy: strat,
		now:      start,
	}
	f.trader, err = NewTrader(cfg, f.logger, f.trading, f.market, f.orders, f.strategy,
		WithClock(func() time.Time { return f.now }),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f.sleeps++
			f.slept = append(f.slept, d)
			f.now = f.now.Add(d)
			return nil
		}),
	)
	require.NoError(t, err)
	return f
}

func TestNewTrader_MissingDependencies(t *testing.T) {
	_, err := NewTrader(nil, &mockLogger{}, &mockTrading{}, &mockMarket{}, newMockOrders(), &mockStrategy{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewTrader(&config.Config{}, &mockLogger{}, &mockTrading{}, &mockMarket{}, newMockOrders(), &mockStrategy{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError, "zero trading interval")
}

func TestTrader_VerifyAccount(t *testing.T) {
	f := newTraderFixture(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), &mockStrategy{})

	acct, err := f.trader.VerifyAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acct", acct.ID)

	f.trading.accountErr = errors.New("dial tcp: connection refused")
	_, err = f.trader.VerifyAccount(context.Background())
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestTrader_RunUntilTradingHoursEnd(t *testing.T) {
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 5)
	for i := range bars {
		bars[i] = domain.Bar{Timestamp: start.Add(time.Duration(i-5) * time.Minute), Close: float64(100 + i)}
	}
	strat := &mockStrategy{
		required: 3,
		intents: [][]domain.OrderIntent{{
			{Symbol: "AAPL", Side: domain.Buy, Type: domain.OrderTypeMarket, Qty: decimal.NewFromInt(1), Reason: "test"},
		}},
	}
	f := newTraderFixture(t, start, strat)
	f.market.bars = bars

	require.NoError(t, f.trader.Run(context.Background()))

	// 10:00, 12:00, 14:00; 16:00 is outside [09:30, 16:00)
	assert.Len(t, strat.states, 3)
	assert.Equal(t, 3, f.sleeps)

	first := strat.states[0]
	assert.Equal(t, start, first.Now)
	require.NotNil(t, first.Account)
	require.Len(t, first.Bars["AAPL"], 3)
	assert.Equal(t, 104.0, first.Bars["AAPL"][2].Close)

	require.NotEmpty(t, f.market.requests)
	req := f.market.requests[0]
	assert.Equal(t, domain.ChannelBars, req.Channel)
	assert.Equal(t, "AAPL", req.Symbol)
	assert.Equal(t, start.Add(-6*time.Minute), req.Window.Start)
	assert.Equal(t, start, req.Window.End)
	assert.Equal(t, "1Min", req.Params["timeframe"])

	require.Len(t, f.trading.submitted, 1)
	sub := f.trading.submitted[0]
	assert.Equal(t, domain.TimeInForceDay, sub.TimeInForce)
	assert.Len(t, sub.ClientOrderID, 36)
	assert.Equal(t, 1, f.orders.count())
}

func TestTrader_RunOutsideHoursDoesNothing(t *testing.T) {
	strat := &mockStrategy{}
	f := newTraderFixture(t, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), strat)

	require.NoError(t, f.trader.Run(context.Background()))
	assert.Empty(t, strat.states)
	assert.Zero(t, f.sleeps)
}

func TestTrader_RunDoesNotSleepPastClose(t *testing.T) {
	strat := &mockStrategy{}
	f := newTraderFixture(t, time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), strat)

	require.NoError(t, f.trader.Run(context.Background()))
	assert.Len(t, strat.states, 1)
	assert.Equal(t, []time.Duration{time.Hour}, f.slept)
	assert.Equal(t, time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC), f.now)
}

func TestTrader_RunFailsWhenAccountUnreachable(t *testing.T) {
	strat := &mockStrategy{}
	f := newTraderFixture(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), strat)
	f.trading.accountErr = errors.New("boom")

	err := f.trader.Run(context.Background())
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
	assert.Empty(t, strat.states)
}

func TestTrader_RunStopsOnCancel(t *testing.T) {
	strat := &mockStrategy{}
	f := newTraderFixture(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), strat)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.trader.Run(ctx))
}

func TestTrader_StrategyErrorIsLoggedAndLoopContinues(t *testing.T) {
	strat := &mockStrategy{err: errors.New("indicator failure")}
	f := newTraderFixture(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), strat)

	require.NoError(t, f.trader.Run(context.Background()))
	assert.Len(t, strat.states, 3)
	assert.Contains(t, f.logger.errors(), "Trading iteration failed")
}

func TestTrader_PlaceOrder(t *testing.T) {
	limit := decimal.NewFromInt(150)
	tests := []struct {
		name    string
		req     domain.OrderRequest
		wantErr error
	}{
		{
			name: "market order",
			req:  domain.OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: domain.Buy, Type: domain.OrderTypeMarket, TimeInForce: domain.TimeInForceDay},
		},
		{
			name: "limit order keeps client id",
			req:  domain.OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: domain.Sell, Type: domain.OrderTypeLimit, TimeInForce: domain.TimeInForceGTC, LimitPrice: &limit, ClientOrderID: "mine"},
		},
		{
			name:    "missing symbol",
			req:     domain.OrderRequest{Qty: decimal.NewFromInt(1), Side: domain.Buy, Type: domain.OrderTypeMarket, TimeInForce: domain.TimeInForceDay},
			wantErr: ports.ErrInvalidRequest,
		},
		{
			name:    "bad side",
			req:     domain.OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: "short", Type: domain.OrderTypeMarket, TimeInForce: domain.TimeInForceDay},
			wantErr: ports.ErrInvalidRequest,
		},
		{
			name:    "zero quantity",
			req:     domain.OrderRequest{Symbol: "AAPL", Qty: decimal.Zero, Side: domain.Buy, Type: domain.OrderTypeMarket, TimeInForce: domain.TimeInForceDay},
			wantErr: ports.ErrInvalidRequest,
		},
		{
			name:    "limit without price",
			req:     domain.OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: domain.Buy, Type: domain.OrderTypeLimit, TimeInForce: domain.TimeInForceDay},
			wantErr: ports.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTraderFixture(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), &mockStrategy{})

			order, err := f.trader.PlaceOrder(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, f.trading.submitted)
				return
			}
			require.NoError(t, err)
			require.Len(t, f.trading.submitted, 1)
			assert.NotEmpty(t, order.ClientOrderID)
			if tt.req.ClientOrderID != "" {
				assert.Equal(t, tt.req.ClientOrderID, order.ClientOrderID)
			}
			assert.Contains(t, f.orders.saved, order.ID)
		})
	}
}

func TestTrader_PlaceOrderSubmitAndSaveFailures(t *testing.T) {
	req := domain.OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: domain.Buy, Type: domain.OrderTypeMarket, TimeInForce: domain.TimeInForceDay}

	f := newTraderFixture(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), &mockStrategy{})
	f.trading.submitErr = ports.ErrInsufficientFunds
	_, err := f.trader.PlaceOrder(context.Background(), req)
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)

	f = newTraderFixture(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), &mockStrategy{})
	f.orders.saveErr = ports.ErrUpdateFailed
	order, err := f.trader.PlaceOrder(context.Background(), req)
	require.NoError(t, err, "a stored-order failure does not undo a live order")
	assert.NotNil(t, order)
	assert.Contains(t, f.logger.errors(), "Failed to persist submitted order")
}

func TestTrader_ResultsForDay(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	f := newTraderFixture(t, now, &mockStrategy{})
	f.trading.listed = []*domain.Order{
		{ID: "a", Symbol: "AAPL", Side: domain.Buy, Status: domain.OrderStatusFilled, FilledQty: decimal.NewFromInt(2), FilledAvgPrice: decimal.NewFromInt(10)},
		{ID: "b", Symbol: "AAPL", Side: domain.Sell, Status: domain.OrderStatusPartiallyFilled, FilledQty: decimal.NewFromInt(1), FilledAvgPrice: decimal.NewFromInt(12)},
		{ID: "c", Symbol: "MSFT", Side: domain.Buy, Status: domain.OrderStatusCanceled},
	}

	res, err := f.trader.ResultsForDay(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), res.Date)
	assert.Len(t, res.Orders, 3)
	assert.Equal(t, 1, res.Filled)
	assert.Equal(t, 1, res.Open)
	assert.True(t, decimal.NewFromInt(20).Equal(res.BuyNotional))
	assert.True(t, decimal.NewFromInt(12).Equal(res.SellNotional))
	assert.Equal(t, 3, f.orders.count())

	assert.Equal(t, []string{"AAPL", "MSFT"}, f.trading.lastQuery.Symbols)
	assert.Equal(t, res.Date, f.trading.lastQuery.After)
	assert.Equal(t, now, f.trading.lastQuery.Until)

	f.trading.listErr = ports.ErrConnectionFailed
	_, err = f.trader.ResultsForDay(context.Background())
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestTrader_RiskManagerSkipsOrders(t *testing.T) {
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	strat := &mockStrategy{intents: [][]domain.OrderIntent{{
		{Symbol: "AAPL", Side: domain.Buy, Type: domain.OrderTypeMarket, Qty: decimal.NewFromInt(50)},
		{Symbol: "AAPL", Side: domain.Buy, Type: domain.OrderTypeMarket, Qty: decimal.NewFromInt(5)},
	}}}
	f := newTraderFixture(t, start, strat)

	manager, err := risk.NewManager(risk.Config{MaxOrderQty: decimal.NewFromInt(10)}, f.orders, f.trader.cfg.TradingHours)
	require.NoError(t, err)
	WithRiskManager(manager)(f.trader)

	require.NoError(t, f.trader.Run(context.Background()))

	require.Len(t, f.trading.submitted, 1)
	assert.True(t, decimal.NewFromInt(5).Equal(f.trading.submitted[0].Qty))
}

func closesBefore(now time.Time, closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		ts := now.Add(time.Duration(i-len(closes)) * time.Minute)
		bars[i] = domain.Bar{Timestamp: ts, Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func TestTrader_RefusedEntryIsNotSoldLater(t *testing.T) {
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	strat, err := strategies.NewMACrossover(strategies.MACrossoverConfig{
		Symbols:       []string{"AAPL"},
		FastMAPeriod:  2,
		SlowMAPeriod:  4,
		RSIPeriod:     3,
		RSIOverbought: 70,
		OrderQty:      decimal.NewFromInt(10),
	}, strategies.NewBaseStrategy(&mockLogger{}))
	require.NoError(t, err)

	f := newTraderFixture(t, start, strat)
	// 10 shares at 11 cost 110, more than the account can spend
	f.trading.account.BuyingPower = decimal.NewFromInt(50)
	f.market.series = [][]domain.Bar{
		closesBefore(start, 10, 9, 8, 7, 11),                  // fast crosses above slow
		closesBefore(start.Add(2*time.Hour), 8, 7, 11, 12, 4), // fast crosses below slow
		closesBefore(start.Add(4*time.Hour), 8, 7, 11, 12, 4),
	}

	manager, err := risk.NewManager(risk.Config{}, f.orders, f.trader.cfg.TradingHours)
	require.NoError(t, err)
	WithRiskManager(manager)(f.trader)

	require.NoError(t, f.trader.Run(context.Background()))

	assert.Empty(t, f.trading.submitted, "no sell for shares never bought")
	assert.Nil(t, strat.Position("AAPL"))
	assert.Contains(t, f.logger.warnMsgs, "Order skipped by risk check")
}

func TestTrader_FailedSubmitKeepsStrategyFlat(t *testing.T) {
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	strat, err := strategies.NewMACrossover(strategies.MACrossoverConfig{
		Symbols:       []string{"AAPL"},
		FastMAPeriod:  2,
		SlowMAPeriod:  4,
		RSIPeriod:     3,
		RSIOverbought: 70,
		OrderQty:      decimal.NewFromInt(10),
	}, strategies.NewBaseStrategy(&mockLogger{}))
	require.NoError(t, err)

	f := newTraderFixture(t, start, strat)
	f.trading.submitErr = ports.ErrBrokerUnavailable
	f.market.series = [][]domain.Bar{
		closesBefore(start, 10, 9, 8, 7, 11),
		closesBefore(start.Add(2*time.Hour), 8, 7, 11, 12, 4),
	}

	require.NoError(t, f.trader.Run(context.Background()))

	assert.Nil(t, strat.Position("AAPL"))
	assert.Zero(t, f.orders.count())
}
