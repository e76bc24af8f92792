package indicators

import (
	"context"
	"math"

	"algoTrader/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// RequiredDataPoints is one more than the period; true range needs a previous close.
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the Average True Range with Wilder's smoothing.
func (a *ATR) Calculate(ctx context.Context, bars []domain.Bar) (float64, error) {
	period := a.Config.Period
	if err := checkLength("ATR", len(bars), period+1); err != nil {
		return 0, err
	}

	atr := 0.0
	for i := range bars {
		tr := trueRange(bars, i)
		if i < period {
			atr += tr / float64(period)
			continue
		}
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, nil
}

// trueRange is high-low for the first bar, otherwise the widest of high-low and
// the gaps from the previous close.
func trueRange(bars []domain.Bar, i int) float64 {
	b := bars[i]
	if i == 0 {
		return b.High - b.Low
	}
	prevClose := bars[i-1].Close
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}
