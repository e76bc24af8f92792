// Package indicators computes technical indicators over minute bars.
package indicators

import (
	"context"
	"fmt"

	"algoTrader/internal/domain"
)

// Indicator computes a single value from a series of bars, oldest first.
type Indicator interface {
	Calculate(ctx context.Context, bars []domain.Bar) (float64, error)
	// RequiredDataPoints is the minimum number of bars Calculate accepts.
	RequiredDataPoints() int
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the configured period.
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

// ErrNotEnoughData is returned when a series is shorter than an indicator needs.
type ErrNotEnoughData struct {
	Indicator string
	Have      int
	Need      int
}

func (e *ErrNotEnoughData) Error() string {
	return fmt.Sprintf("not enough data (%d) to calculate %s, need %d", e.Have, e.Indicator, e.Need)
}

func checkLength(name string, have, need int) error {
	if need <= 0 {
		return fmt.Errorf("%s period must be positive", name)
	}
	if have < need {
		return &ErrNotEnoughData{Indicator: name, Have: have, Need: need}
	}
	return nil
}
