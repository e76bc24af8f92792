package indicators

import (
	"context"
	"fmt"

	"algoTrader/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage computes an SMA or EMA of closing prices.
type MovingAverage struct {
	BaseIndicator
	maType MovingAverageType
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		maType:        config.Type,
	}
}

// Name returns e.g. "SMA(20)".
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s(%d)", m.maType, m.Config.Period)
}

// Calculate computes the moving average of the bars' closes.
func (m *MovingAverage) Calculate(ctx context.Context, bars []domain.Bar) (float64, error) {
	closes := domain.Closes(bars)
	switch m.maType {
	case SimpleMovingAverage:
		return SMA(closes, m.Config.Period)
	case ExponentialMovingAverage:
		return EMA(closes, m.Config.Period)
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.maType)
	}
}

// Series returns the indicator value at every bar from the first computable one on.
// Out[i] corresponds to bars[i+period-1].
func (m *MovingAverage) Series(bars []domain.Bar) ([]float64, error) {
	closes := domain.Closes(bars)
	if err := checkLength(string(m.maType), len(closes), m.Config.Period); err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(closes)-m.Config.Period+1)
	for end := m.Config.Period; end <= len(closes); end++ {
		var (
			v   float64
			err error
		)
		switch m.maType {
		case SimpleMovingAverage:
			v, err = SMA(closes[:end], m.Config.Period)
		case ExponentialMovingAverage:
			v, err = EMA(closes[:end], m.Config.Period)
		default:
			err = fmt.Errorf("unsupported moving average type: %s", m.maType)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SMA is the mean of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if err := checkLength("SMA", len(values), period); err != nil {
		return 0, err
	}
	total := 0.0
	for _, v := range values[len(values)-period:] {
		total += v
	}
	return total / float64(period), nil
}

// EMA seeds with the SMA of the first period values and smooths over the rest.
func EMA(values []float64, period int) (float64, error) {
	if err := checkLength("EMA", len(values), period); err != nil {
		return 0, err
	}
	multiplier := 2.0 / float64(period+1)

	ema, err := SMA(values[:period], period)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate initial SMA for EMA: %w", err)
	}
	for _, v := range values[period:] {
		ema = (v-ema)*multiplier + ema
	}
	return ema, nil
}
