// Package strategy selects and builds the configured trading strategy.
package strategy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"algoTrader/internal/ports"
	"algoTrader/internal/strategy/strategies"
)

const (
	NameDemo        = "demo"
	NameMACrossover = "ma_crossover"
)

// Config holds parameters for every strategy variant; each variant reads its own fields.
type Config struct {
	Name string

	// demo
	DemoSymbol string
	DemoQty    float64

	// ma_crossover
	Symbols           []string
	OrderQty          float64
	ShortTermMAPeriod int     // e.g., 5
	LongTermMAPeriod  int     // e.g., 20
	RSIPeriod         int     // e.g., 14
	RSIOverbought     float64 // e.g., 70.0
}

// New creates the strategy named by cfg.Name.
func New(cfg Config, logger ports.Logger) (ports.Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	base := strategies.NewBaseStrategy(logger)

	switch strings.ToLower(cfg.Name) {
	case NameDemo, "":
		s, err := strategies.NewDemo(cfg.DemoSymbol, decimal.NewFromFloat(cfg.DemoQty), base)
		if err != nil {
			return nil, err
		}
		return s, nil
	case NameMACrossover:
		s, err := strategies.NewMACrossover(strategies.MACrossoverConfig{
			Symbols:       cfg.Symbols,
			FastMAPeriod:  cfg.ShortTermMAPeriod,
			SlowMAPeriod:  cfg.LongTermMAPeriod,
			RSIPeriod:     cfg.RSIPeriod,
			RSIOverbought: cfg.RSIOverbought,
			OrderQty:      decimal.NewFromFloat(cfg.OrderQty),
		}, base)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want %s or %s)", cfg.Name, NameDemo, NameMACrossover)
	}
}
