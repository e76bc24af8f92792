package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a holding tracked by a strategy between iterations.
type Position struct {
	Symbol     string
	Qty        decimal.Decimal
	EntryPrice float64
	EntryTime  time.Time
}

// IsOpen reports whether the position still holds shares.
func (p *Position) IsOpen() bool {
	return p != nil && p.Qty.IsPositive()
}

// MarketState is the view of the market handed to a strategy on each iteration.
type MarketState struct {
	Now     time.Time
	Account *Account
	Bars    map[string][]Bar // keyed by symbol, oldest first
}

// LatestClose returns the last close for symbol, or false when no bars are known.
func (s MarketState) LatestClose(symbol string) (float64, bool) {
	bars := s.Bars[symbol]
	if len(bars) == 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close, true
}
