package domain

import "github.com/shopspring/decimal"

// Account is a snapshot of the brokerage account.
type Account struct {
	ID               string
	Number           string
	Status           string
	Currency         string
	Cash             decimal.Decimal
	BuyingPower      decimal.Decimal
	Equity           decimal.Decimal
	PatternDayTrader bool
	TradingBlocked   bool
}

// CanTrade reports whether the broker will accept orders for this account.
func (a *Account) CanTrade() bool {
	return !a.TradingBlocked && (a.Status == "" || a.Status == "ACTIVE")
}
