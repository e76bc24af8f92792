package alpaca

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

type accountDTO struct {
	ID               string          `json:"id"`
	AccountNumber    string          `json:"account_number"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	Cash             decimal.Decimal `json:"cash"`
	BuyingPower      decimal.Decimal `json:"buying_power"`
	Equity           decimal.Decimal `json:"equity"`
	PatternDayTrader bool            `json:"pattern_day_trader"`
	TradingBlocked   bool            `json:"trading_blocked"`
}

type orderRequestDTO struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type orderDTO struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Symbol         string              `json:"symbol"`
	Side           string              `json:"side"`
	Type           string              `json:"type"`
	TimeInForce    string              `json:"time_in_force"`
	Qty            decimal.NullDecimal `json:"qty"`
	FilledQty      decimal.NullDecimal `json:"filled_qty"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	LimitPrice     decimal.NullDecimal `json:"limit_price"`
	Status         string              `json:"status"`
	CreatedAt      *time.Time          `json:"created_at"`
	SubmittedAt    *time.Time          `json:"submitted_at"`
	FilledAt       *time.Time          `json:"filled_at"`
}

// GetAccount retrieves the account. Any failure is reported as ErrConnectionFailed.
func (c *Client) GetAccount(ctx context.Context) (*domain.Account, error) {
	op := "GetAccount"

	var acct accountDTO
	resp, err := c.trading.R().
		SetContext(ctx).
		SetResult(&acct).
		SetError(&apiError{}).
		Get("/v2/account")
	if err == nil && resp.IsError() {
		err = responseError(resp)
	}
	if err != nil {
		err = c.handleError(ctx, err, op)
		if !errors.Is(err, ports.ErrConnectionFailed) {
			err = fmt.Errorf("%w: %w", ports.ErrConnectionFailed, err)
		}
		return nil, err
	}

	return &domain.Account{
		ID:               acct.ID,
		Number:           acct.AccountNumber,
		Status:           acct.Status,
		Currency:         acct.Currency,
		Cash:             acct.Cash,
		BuyingPower:      acct.BuyingPower,
		Equity:           acct.Equity,
		PatternDayTrader: acct.PatternDayTrader,
		TradingBlocked:   acct.TradingBlocked,
	}, nil
}

// SubmitOrder places an order.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	op := "SubmitOrder"

	body := orderRequestDTO{
		Symbol:        req.Symbol,
		Qty:           req.Qty.String(),
		Side:          string(req.Side),
		Type:          string(req.Type),
		TimeInForce:   string(req.TimeInForce),
		ClientOrderID: req.ClientOrderID,
	}
	if req.LimitPrice != nil {
		body.LimitPrice = req.LimitPrice.String()
	}

	var out orderDTO
	resp, err := c.trading.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiError{}).
		Post("/v2/orders")
	if err == nil && resp.IsError() {
		err = responseError(resp)
	}
	if err != nil {
		err = c.handleError(ctx, err, op)
		if !errors.Is(err, ports.ErrInsufficientFunds) {
			err = fmt.Errorf("%w: %w", ports.ErrOrderPlacementFailed, err)
		}
		return nil, err
	}

	c.logger.Info(ctx, op+": Order accepted", map[string]interface{}{
		"orderID": out.ID,
		"symbol":  out.Symbol,
		"side":    out.Side,
		"qty":     body.Qty,
		"status":  out.Status,
	})
	return translateOrder(&out), nil
}

// ListOrders returns orders of any status matching q, newest first.
func (c *Client) ListOrders(ctx context.Context, q domain.OrderQuery) ([]*domain.Order, error) {
	op := "ListOrders"

	params := map[string]string{
		"status":    "all",
		"direction": "desc",
	}
	if !q.After.IsZero() {
		params["after"] = q.After.UTC().Format(time.RFC3339)
	}
	if !q.Until.IsZero() {
		params["until"] = q.Until.UTC().Format(time.RFC3339)
	}
	if len(q.Symbols) > 0 {
		params["symbols"] = strings.Join(q.Symbols, ",")
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}

	var out []orderDTO
	resp, err := c.trading.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		SetError(&apiError{}).
		Get("/v2/orders")
	if err == nil && resp.IsError() {
		err = responseError(resp)
	}
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	orders := make([]*domain.Order, 0, len(out))
	for i := range out {
		orders = append(orders, translateOrder(&out[i]))
	}
	return orders, nil
}

func translateOrder(o *orderDTO) *domain.Order {
	order := &domain.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           domain.OrderSide(o.Side),
		Type:           domain.OrderType(o.Type),
		TimeInForce:    domain.TimeInForce(o.TimeInForce),
		Qty:            o.Qty.Decimal,
		FilledQty:      o.FilledQty.Decimal,
		FilledAvgPrice: o.FilledAvgPrice.Decimal,
		Status:         translateStatus(o.Status),
	}
	if o.LimitPrice.Valid {
		lp := o.LimitPrice.Decimal
		order.LimitPrice = &lp
	}
	if o.CreatedAt != nil {
		order.CreatedAt = *o.CreatedAt
	}
	if o.SubmittedAt != nil {
		order.SubmittedAt = *o.SubmittedAt
	}
	if o.FilledAt != nil {
		order.FilledAt = *o.FilledAt
	}
	return order
}

func translateStatus(s string) domain.OrderStatus {
	switch domain.OrderStatus(s) {
	case domain.OrderStatusNew, domain.OrderStatusAccepted, domain.OrderStatusPartiallyFilled,
		domain.OrderStatusFilled, domain.OrderStatusCanceled, domain.OrderStatusExpired, domain.OrderStatusRejected:
		return domain.OrderStatus(s)
	case "pending_new", "accepted_for_bidding", "pending_replace", "replaced", "held", "calculated":
		return domain.OrderStatusAccepted
	case "pending_cancel", "done_for_day", "stopped", "suspended":
		return domain.OrderStatusCanceled
	default:
		return domain.OrderStatusUnknown
	}
}
