package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StreamMessage is one live market-data event.
// Exactly one of the payload pointers is set, matching Channel.
type StreamMessage struct {
	Channel Channel
	Symbol  string
	Bar     *Bar
	Quote   *Quote
	Trade   *Trade
	News    *NewsItem
}

// TradeUpdate is an account event about one of our orders (fill, cancel, ...).
type TradeUpdate struct {
	Event       string
	At          time.Time
	Price       decimal.Decimal
	Qty         decimal.Decimal
	PositionQty decimal.Decimal
	Order       Order
}
