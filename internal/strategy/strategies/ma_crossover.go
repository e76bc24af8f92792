package strategies

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"algoTrader/internal/domain"
	"algoTrader/internal/strategy/indicators"
)

// MACrossoverConfig holds configuration for the MA Crossover strategy
type MACrossoverConfig struct {
	Symbols       []string
	FastMAPeriod  int     // e.g. 5
	SlowMAPeriod  int     // e.g. 20
	RSIPeriod     int     // e.g. 14
	RSIOverbought float64 // entries are skipped at or above this RSI
	ATRPeriod     int     // defaults to RSIPeriod
	ATRMultiplier float64 // stop distance below entry, in ATRs; defaults to 2
	OrderQty      decimal.Decimal
}

// MACrossover goes long when the fast SMA crosses above the slow SMA and RSI is not
// overbought. It exits on the opposite cross or when price falls ATRMultiplier ATRs
// below the entry. Positions are only recorded once the trader reports the entry
// order as submitted.
type MACrossover struct {
	*BaseStrategy
	config    MACrossoverConfig
	fastMA    *indicators.MovingAverage
	slowMA    *indicators.MovingAverage
	rsi       *indicators.RSI
	atr       *indicators.ATR
	positions map[string]*domain.Position
	pending   map[string]*domain.Position // entries awaiting an order result
}

// NewMACrossover creates a new MA Crossover strategy instance
func NewMACrossover(config MACrossoverConfig, base *BaseStrategy) (*MACrossover, error) {
	if base == nil || base.logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if config.FastMAPeriod <= 0 || config.SlowMAPeriod <= 0 || config.RSIPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if config.FastMAPeriod >= config.SlowMAPeriod {
		return nil, fmt.Errorf("fast MA period must be less than slow MA period")
	}
	if config.RSIOverbought <= 0 || config.RSIOverbought > 100 {
		return nil, fmt.Errorf("RSI overbought level must be in (0, 100]")
	}
	if !config.OrderQty.IsPositive() {
		return nil, fmt.Errorf("order quantity must be positive")
	}
	if len(config.Symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}
	if config.ATRPeriod <= 0 {
		config.ATRPeriod = config.RSIPeriod
	}
	if config.ATRMultiplier <= 0 {
		config.ATRMultiplier = 2
	}
	symbols := make([]string, len(config.Symbols))
	for i, s := range config.Symbols {
		symbols[i] = strings.ToUpper(s)
	}
	config.Symbols = symbols

	return &MACrossover{
		BaseStrategy: base,
		config:       config,
		fastMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.FastMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		slowMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.SlowMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.RSIPeriod},
			Overbought:      config.RSIOverbought,
		}),
		atr: indicators.NewATR(indicators.ATRConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: config.ATRPeriod},
		}),
		positions: make(map[string]*domain.Position),
		pending:   make(map[string]*domain.Position),
	}, nil
}

// Name returns the name of the strategy
func (m *MACrossover) Name() string {
	return "ma_crossover"
}

// RequiredBars covers the slow MA one bar back plus the RSI and ATR lookbacks.
func (m *MACrossover) RequiredBars() int {
	return max(m.config.SlowMAPeriod+1, m.rsi.RequiredDataPoints(), m.atr.RequiredDataPoints())
}

// Position returns the tracked position for symbol, or nil.
func (m *MACrossover) Position(symbol string) *domain.Position {
	return m.positions[strings.ToUpper(symbol)]
}

// CheckSignals evaluates every configured symbol independently.
func (m *MACrossover) CheckSignals(ctx context.Context, state domain.MarketState) ([]domain.OrderIntent, error) {
	if accountBlocked(state) {
		m.logger.Warn(ctx, "Account cannot trade, skipping signal check")
		return nil, nil
	}

	var intents []domain.OrderIntent
	for _, symbol := range m.config.Symbols {
		bars := state.Bars[symbol]
		if len(bars) < m.RequiredBars() {
			m.logger.Debug(ctx, "Not enough bars for signal check", map[string]interface{}{
				"symbol": symbol, "have": len(bars), "need": m.RequiredBars(),
			})
			continue
		}
		intent, err := m.evaluate(ctx, symbol, bars, state)
		if err != nil {
			return intents, fmt.Errorf("evaluating %s: %w", symbol, err)
		}
		if intent != nil {
			intents = append(intents, *intent)
		}
	}
	return intents, nil
}

func (m *MACrossover) evaluate(ctx context.Context, symbol string, bars []domain.Bar, state domain.MarketState) (*domain.OrderIntent, error) {
	prev := bars[:len(bars)-1]
	fast, err := m.fastMA.Calculate(ctx, bars)
	if err != nil {
		return nil, err
	}
	slow, err := m.slowMA.Calculate(ctx, bars)
	if err != nil {
		return nil, err
	}
	prevFast, err := m.fastMA.Calculate(ctx, prev)
	if err != nil {
		return nil, err
	}
	prevSlow, err := m.slowMA.Calculate(ctx, prev)
	if err != nil {
		return nil, err
	}
	price := bars[len(bars)-1].Close

	fields := map[string]interface{}{
		"symbol": symbol,
		"price":  price,
		"fastMA": fast,
		"slowMA": slow,
	}

	if pos := m.positions[symbol]; pos.IsOpen() {
		atr, err := m.atr.Calculate(ctx, bars)
		if err != nil {
			return nil, err
		}
		stop := pos.EntryPrice - m.config.ATRMultiplier*atr
		reason := ""
		switch {
		case prevFast >= prevSlow && fast < slow:
			reason = "fast MA crossed below slow MA"
		case price <= stop:
			reason = fmt.Sprintf("price %.4f hit ATR stop %.4f", price, stop)
		default:
			return nil, nil
		}
		fields["reason"] = reason
		m.logger.Info(ctx, "Exit signal", fields)
		intent := marketIntent(symbol, domain.Sell, pos.Qty, reason)
		return &intent, nil
	}

	if !(prevFast <= prevSlow && fast > slow) {
		return nil, nil
	}
	rsi, err := m.rsi.Calculate(ctx, bars)
	if err != nil {
		return nil, err
	}
	fields["rsi"] = rsi
	if m.rsi.IsOverbought(rsi) {
		m.logger.Debug(ctx, "Crossover ignored, RSI overbought", fields)
		return nil, nil
	}

	m.pending[symbol] = &domain.Position{
		Symbol:     symbol,
		Qty:        m.config.OrderQty,
		EntryPrice: price,
		EntryTime:  state.Now,
	}
	reason := "fast MA crossed above slow MA"
	fields["reason"] = reason
	m.logger.Info(ctx, "Entry signal", fields)
	intent := marketIntent(symbol, domain.Buy, m.config.OrderQty, reason)
	return &intent, nil
}

// OnOrderResult confirms or drops the position behind an intent. A refused entry
// leaves the symbol flat and a refused exit keeps the position open.
func (m *MACrossover) OnOrderResult(ctx context.Context, intent domain.OrderIntent, order *domain.Order, err error) {
	symbol := strings.ToUpper(intent.Symbol)
	fields := map[string]interface{}{"symbol": symbol, "side": string(intent.Side)}

	switch intent.Side {
	case domain.Buy:
		pos := m.pending[symbol]
		delete(m.pending, symbol)
		if pos == nil {
			return
		}
		if err != nil || order == nil {
			m.logger.Warn(ctx, "Entry not placed, staying flat", fields)
			return
		}
		if order.FilledAvgPrice.IsPositive() {
			pos.EntryPrice = order.FilledAvgPrice.InexactFloat64()
		}
		m.positions[symbol] = pos
	case domain.Sell:
		if err != nil || order == nil {
			m.logger.Warn(ctx, "Exit not placed, keeping position", fields)
			return
		}
		delete(m.positions, symbol)
	}
}
