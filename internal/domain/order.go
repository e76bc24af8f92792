package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest describes an order to submit to a broker.
type OrderRequest struct {
	Symbol        string `validate:"required"`
	Qty           decimal.Decimal
	Side          OrderSide   `validate:"required,oneof=buy sell"`
	Type          OrderType   `validate:"required,oneof=market limit"`
	TimeInForce   TimeInForce `validate:"required,oneof=day gtc ioc fok"`
	LimitPrice    *decimal.Decimal
	ClientOrderID string
}

// Order is the broker's view of a submitted order.
type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	TimeInForce    TimeInForce
	Qty            decimal.Decimal
	FilledQty      decimal.Decimal
	FilledAvgPrice decimal.Decimal
	LimitPrice     *decimal.Decimal
	Status         OrderStatus
	CreatedAt      time.Time
	SubmittedAt    time.Time
	FilledAt       time.Time // zero until filled
}

// Notional returns filled quantity times average fill price.
func (o *Order) Notional() decimal.Decimal {
	return o.FilledQty.Mul(o.FilledAvgPrice)
}

// OrderIntent is what a strategy asks the trader to do.
type OrderIntent struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Qty        decimal.Decimal
	LimitPrice *decimal.Decimal
	Reason     string
}

// OrderQuery filters orders listed from a broker.
type OrderQuery struct {
	Symbols []string
	After   time.Time
	Until   time.Time
	Limit   int
}

// DailyResult summarises one trading day's orders.
type DailyResult struct {
	Date         time.Time
	Orders       []*Order
	Filled       int
	Open         int
	BuyNotional  decimal.Decimal
	SellNotional decimal.Decimal
}
