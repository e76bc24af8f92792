package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

// MockLogger implements ports.Logger for testing
type MockLogger struct{}

func (m *MockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *MockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *MockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *MockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var (
	_ ports.Strategy = (*MACrossover)(nil)
	_ ports.Strategy = (*Demo)(nil)

	_ ports.OrderObserver = (*MACrossover)(nil)
)

func validConfig() MACrossoverConfig {
	return MACrossoverConfig{
		Symbols:       []string{"aapl"},
		FastMAPeriod:  2,
		SlowMAPeriod:  4,
		RSIPeriod:     3,
		RSIOverbought: 70,
		OrderQty:      decimal.NewFromInt(10),
	}
}

func stateWith(symbol string, closes ...float64) domain.MarketState {
	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: start.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c}
	}
	return domain.MarketState{
		Now:  start.Add(time.Duration(len(closes)) * time.Minute),
		Bars: map[string][]domain.Bar{symbol: bars},
	}
}

func TestNewMACrossover(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*MACrossoverConfig)
		logger      ports.Logger
		expectError bool
	}{
		{name: "Valid configuration", mutate: func(*MACrossoverConfig) {}, logger: &MockLogger{}},
		{name: "Nil logger", mutate: func(*MACrossoverConfig) {}, logger: nil, expectError: true},
		{name: "Invalid periods", mutate: func(c *MACrossoverConfig) { c.FastMAPeriod = 0 }, logger: &MockLogger{}, expectError: true},
		{name: "Fast period >= slow period", mutate: func(c *MACrossoverConfig) { c.FastMAPeriod = 4 }, logger: &MockLogger{}, expectError: true},
		{name: "Overbought out of range", mutate: func(c *MACrossoverConfig) { c.RSIOverbought = 150 }, logger: &MockLogger{}, expectError: true},
		{name: "Zero quantity", mutate: func(c *MACrossoverConfig) { c.OrderQty = decimal.Zero }, logger: &MockLogger{}, expectError: true},
		{name: "No symbols", mutate: func(c *MACrossoverConfig) { c.Symbols = nil }, logger: &MockLogger{}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			s, err := NewMACrossover(cfg, NewBaseStrategy(tt.logger))
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ma_crossover", s.Name())
			assert.Equal(t, 5, s.RequiredBars())
		})
	}
}

func TestMACrossover_EntryAndCrossExit(t *testing.T) {
	s, err := NewMACrossover(validConfig(), NewBaseStrategy(&MockLogger{}))
	require.NoError(t, err)
	ctx := context.Background()

	// fast 9 > slow 8.75 after being below; RSI(3) is 66.7
	intents, err := s.CheckSignals(ctx, stateWith("AAPL", 10, 9, 8, 7, 11))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.Buy, intents[0].Side)
	assert.Equal(t, domain.OrderTypeMarket, intents[0].Type)
	assert.Equal(t, "AAPL", intents[0].Symbol)
	assert.True(t, decimal.NewFromInt(10).Equal(intents[0].Qty))
	assert.Nil(t, s.Position("AAPL"), "position is recorded only after the order result")

	s.OnOrderResult(ctx, intents[0], &domain.Order{Symbol: "AAPL", Side: domain.Buy, FilledAvgPrice: decimal.NewFromFloat(11.2)}, nil)
	require.True(t, s.Position("AAPL").IsOpen())
	assert.Equal(t, 11.2, s.Position("AAPL").EntryPrice)

	// still above, holding
	intents, err = s.CheckSignals(ctx, stateWith("AAPL", 10, 9, 8, 7, 11, 12))
	require.NoError(t, err)
	assert.Empty(t, intents)

	// fast 8 < slow 8.5
	intents, err = s.CheckSignals(ctx, stateWith("AAPL", 10, 9, 8, 7, 11, 12, 4))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.Sell, intents[0].Side)
	assert.Contains(t, intents[0].Reason, "crossed below")
	require.True(t, s.Position("AAPL").IsOpen())

	s.OnOrderResult(ctx, intents[0], &domain.Order{Symbol: "AAPL", Side: domain.Sell}, nil)
	assert.False(t, s.Position("AAPL").IsOpen())
}

func TestMACrossover_OrderResults(t *testing.T) {
	ctx := context.Background()
	entry := stateWith("AAPL", 10, 9, 8, 7, 11)
	crossDown := stateWith("AAPL", 10, 9, 8, 7, 11, 12, 4)

	t.Run("refused entry stays flat", func(t *testing.T) {
		s, err := NewMACrossover(validConfig(), NewBaseStrategy(&MockLogger{}))
		require.NoError(t, err)

		intents, err := s.CheckSignals(ctx, entry)
		require.NoError(t, err)
		require.Len(t, intents, 1)
		s.OnOrderResult(ctx, intents[0], nil, ports.ErrRiskLimit)
		assert.Nil(t, s.Position("AAPL"))

		intents, err = s.CheckSignals(ctx, crossDown)
		require.NoError(t, err)
		assert.Empty(t, intents)
	})

	t.Run("refused exit keeps position", func(t *testing.T) {
		s, err := NewMACrossover(validConfig(), NewBaseStrategy(&MockLogger{}))
		require.NoError(t, err)

		intents, err := s.CheckSignals(ctx, entry)
		require.NoError(t, err)
		require.Len(t, intents, 1)
		s.OnOrderResult(ctx, intents[0], &domain.Order{Symbol: "AAPL", Side: domain.Buy}, nil)
		require.True(t, s.Position("AAPL").IsOpen())
		assert.Equal(t, 11.0, s.Position("AAPL").EntryPrice)

		intents, err = s.CheckSignals(ctx, crossDown)
		require.NoError(t, err)
		require.Len(t, intents, 1)
		s.OnOrderResult(ctx, intents[0], nil, ports.ErrBrokerUnavailable)
		assert.True(t, s.Position("AAPL").IsOpen())
	})
}

func TestMACrossover_ATRStop(t *testing.T) {
	cfg := validConfig()
	cfg.ATRMultiplier = 0.1
	s, err := NewMACrossover(cfg, NewBaseStrategy(&MockLogger{}))
	require.NoError(t, err)
	ctx := context.Background()

	intents, err := s.CheckSignals(ctx, stateWith("AAPL", 10, 9, 8, 7, 11))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	s.OnOrderResult(ctx, intents[0], &domain.Order{Symbol: "AAPL", Side: domain.Buy}, nil)

	intents, err = s.CheckSignals(ctx, stateWith("AAPL", 10, 9, 8, 7, 11, 10.5))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.Sell, intents[0].Side)
	assert.Contains(t, intents[0].Reason, "ATR stop")
}

func TestMACrossover_NoSignal(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MACrossoverConfig)
		state  domain.MarketState
	}{
		{
			name:   "RSI overbought",
			mutate: func(c *MACrossoverConfig) { c.RSIOverbought = 60 },
			state:  stateWith("AAPL", 10, 9, 8, 7, 11),
		},
		{
			name:   "not enough bars",
			mutate: func(*MACrossoverConfig) {},
			state:  stateWith("AAPL", 7, 11),
		},
		{
			name:   "no bars for symbol",
			mutate: func(*MACrossoverConfig) {},
			state:  stateWith("MSFT", 10, 9, 8, 7, 11),
		},
		{
			name:   "no crossover",
			mutate: func(*MACrossoverConfig) {},
			state:  stateWith("AAPL", 10, 9, 8, 7, 6),
		},
		{
			name:   "account blocked",
			mutate: func(*MACrossoverConfig) {},
			state: func() domain.MarketState {
				s := stateWith("AAPL", 10, 9, 8, 7, 11)
				s.Account = &domain.Account{Status: "ACTIVE", TradingBlocked: true}
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			s, err := NewMACrossover(cfg, NewBaseStrategy(&MockLogger{}))
			require.NoError(t, err)

			intents, err := s.CheckSignals(context.Background(), tt.state)
			require.NoError(t, err)
			assert.Empty(t, intents)
			assert.Nil(t, s.Position("AAPL"))
		})
	}
}

func TestDemo(t *testing.T) {
	_, err := NewDemo("", decimal.NewFromInt(1), NewBaseStrategy(&MockLogger{}))
	assert.Error(t, err)
	_, err = NewDemo("AAPL", decimal.Zero, NewBaseStrategy(&MockLogger{}))
	assert.Error(t, err)
	_, err = NewDemo("AAPL", decimal.NewFromInt(1), NewBaseStrategy(nil))
	assert.Error(t, err)

	d, err := NewDemo(" aapl ", decimal.NewFromInt(3), NewBaseStrategy(&MockLogger{}))
	require.NoError(t, err)
	assert.Equal(t, "demo", d.Name())
	assert.Zero(t, d.RequiredBars())

	blocked := domain.MarketState{Account: &domain.Account{Status: "ACCOUNT_CLOSED"}}
	intents, err := d.CheckSignals(context.Background(), blocked)
	require.NoError(t, err)
	assert.Empty(t, intents)

	intents, err = d.CheckSignals(context.Background(), domain.MarketState{})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "AAPL", intents[0].Symbol)
	assert.Equal(t, domain.Buy, intents[0].Side)
	assert.True(t, decimal.NewFromInt(3).Equal(intents[0].Qty))

	intents, err = d.CheckSignals(context.Background(), domain.MarketState{})
	require.NoError(t, err)
	assert.Empty(t, intents, "demo fires once")
}
