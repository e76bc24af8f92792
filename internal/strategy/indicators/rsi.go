package indicators

import (
	"context"

	"algoTrader/internal/domain"
)

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements the Relative Strength Index indicator
type RSI struct {
	BaseIndicator
	overbought float64
	oversold   float64
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		overbought:    config.Overbought,
		oversold:      config.Oversold,
	}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// RequiredDataPoints is one more than the period; RSI works on price changes.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate computes RSI of the bars' closes.
func (r *RSI) Calculate(ctx context.Context, bars []domain.Bar) (float64, error) {
	return RelativeStrength(domain.Closes(bars), r.Config.Period)
}

// IsOverbought checks if the RSI value indicates an overbought condition
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.overbought
}

// IsOversold checks if the RSI value indicates an oversold condition
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.oversold
}

// RelativeStrength computes RSI with Wilder's smoothing. It returns 50 for a flat
// series and 100 when there were no losses.
func RelativeStrength(values []float64, period int) (float64, error) {
	if err := checkLength("RSI", len(values), period+1); err != nil {
		return 0, err
	}

	var avgGain, avgLoss float64
	p := float64(period)
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		if i <= period {
			avgGain += gain / p
			avgLoss += loss / p
			continue
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}

	rsi := 100 - 100/(1+avgGain/avgLoss)
	switch {
	case rsi > 100:
		return 100, nil
	case rsi < 0:
		return 0, nil
	}
	return rsi, nil
}
