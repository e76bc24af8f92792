package binanceclient

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

const settlementAsset = "USDT"

// GetAccount retrieves the futures account and maps wallet balances onto domain.Account.
func (c *Client) GetAccount(ctx context.Context) (*domain.Account, error) {
	op := "GetAccount"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConnectionFailed, c.handleError(ctx, err, op))
	}

	status := "ACTIVE"
	if !account.CanTrade {
		status = "INACTIVE"
	}
	return &domain.Account{
		ID:             "binance-futures",
		Status:         status,
		Currency:       settlementAsset,
		Cash:           parseDecimal(account.TotalWalletBalance),
		BuyingPower:    parseDecimal(account.AvailableBalance),
		Equity:         parseDecimal(account.TotalMarginBalance),
		TradingBlocked: !account.CanTrade,
	}, nil
}

// SubmitOrder places a market or limit order.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	op := "SubmitOrder"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(toSideType(req.Side)).
		Quantity(req.Qty.String())
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	switch req.Type {
	case domain.OrderTypeLimit:
		if req.LimitPrice == nil {
			return nil, fmt.Errorf("%s: %w: limit order without limit price", op, ports.ErrInvalidRequest)
		}
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(toTimeInForce(req.TimeInForce)).
			Price(req.LimitPrice.String())
	default:
		svc = svc.Type(futures.OrderTypeMarket)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	order := translateCreateOrderResponse(resp)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   order.Symbol,
		"side":     string(order.Side),
		"quantity": order.Qty.String(),
		"orderID":  order.ID,
		"status":   string(order.Status),
	})
	return order, nil
}

// ListOrders lists orders per symbol and merges them newest first.
// Binance requires a symbol, so q.Symbols must not be empty.
func (c *Client) ListOrders(ctx context.Context, q domain.OrderQuery) ([]*domain.Order, error) {
	op := "ListOrders"
	if len(q.Symbols) == 0 {
		return nil, fmt.Errorf("%s: %w: at least one symbol is required", op, ports.ErrInvalidRequest)
	}

	var orders []*domain.Order
	for _, symbol := range q.Symbols {
		svc := c.futuresClient.NewListOrdersService().Symbol(symbol)
		if !q.After.IsZero() {
			svc = svc.StartTime(q.After.UnixMilli())
		}
		if !q.Until.IsZero() {
			svc = svc.EndTime(q.Until.UnixMilli())
		}
		if q.Limit > 0 {
			svc = svc.Limit(q.Limit)
		}
		resp, err := svc.Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		for _, o := range resp {
			orders = append(orders, translateOrder(o))
		}
	}

	slices.SortStableFunc(orders, func(a, b *domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if q.Limit > 0 && len(orders) > q.Limit {
		orders = orders[:q.Limit]
	}
	return orders, nil
}

// --- Translation Helpers ---

func toSideType(side domain.OrderSide) futures.SideType {
	if side == domain.Sell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

// toTimeInForce maps to futures values; futures have no day orders so day becomes GTC.
func toTimeInForce(tif domain.TimeInForce) futures.TimeInForceType {
	switch tif {
	case domain.TimeInForceIOC:
		return futures.TimeInForceTypeIOC
	case domain.TimeInForceFOK:
		return futures.TimeInForceTypeFOK
	default:
		return futures.TimeInForceTypeGTC
	}
}

func fromTimeInForce(tif futures.TimeInForceType) domain.TimeInForce {
	switch tif {
	case futures.TimeInForceTypeIOC:
		return domain.TimeInForceIOC
	case futures.TimeInForceTypeFOK:
		return domain.TimeInForceFOK
	default:
		return domain.TimeInForceGTC
	}
}

func fromSideType(side futures.SideType) domain.OrderSide {
	if side == futures.SideTypeSell {
		return domain.Sell
	}
	return domain.Buy
}

func fromOrderType(t futures.OrderType) domain.OrderType {
	if t == futures.OrderTypeLimit {
		return domain.OrderTypeLimit
	}
	return domain.OrderTypeMarket
}

func translateStatus(s futures.OrderStatusType) domain.OrderStatus {
	switch s {
	case futures.OrderStatusTypeNew:
		return domain.OrderStatusNew
	case futures.OrderStatusTypePartiallyFilled:
		return domain.OrderStatusPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return domain.OrderStatusFilled
	case futures.OrderStatusTypeCanceled:
		return domain.OrderStatusCanceled
	case futures.OrderStatusTypeRejected:
		return domain.OrderStatusRejected
	case futures.OrderStatusTypeExpired:
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusUnknown
	}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func limitPrice(orderType futures.OrderType, price string) *decimal.Decimal {
	if orderType != futures.OrderTypeLimit {
		return nil
	}
	p := parseDecimal(price)
	return &p
}

func translateCreateOrderResponse(o *futures.CreateOrderResponse) *domain.Order {
	if o == nil {
		return nil
	}
	updated := time.UnixMilli(o.UpdateTime).UTC()
	order := &domain.Order{
		ID:             fmt.Sprint(o.OrderID),
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           fromSideType(o.Side),
		Type:           fromOrderType(o.Type),
		TimeInForce:    fromTimeInForce(o.TimeInForce),
		Qty:            parseDecimal(o.OrigQuantity),
		FilledQty:      parseDecimal(o.ExecutedQuantity),
		FilledAvgPrice: parseDecimal(o.AvgPrice),
		LimitPrice:     limitPrice(o.Type, o.Price),
		Status:         translateStatus(o.Status),
		CreatedAt:      updated,
		SubmittedAt:    updated,
	}
	if order.Status == domain.OrderStatusFilled {
		order.FilledAt = updated
	}
	return order
}

func translateOrder(o *futures.Order) *domain.Order {
	order := &domain.Order{
		ID:             fmt.Sprint(o.OrderID),
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           fromSideType(o.Side),
		Type:           fromOrderType(o.Type),
		TimeInForce:    fromTimeInForce(o.TimeInForce),
		Qty:            parseDecimal(o.OrigQuantity),
		FilledQty:      parseDecimal(o.ExecutedQuantity),
		FilledAvgPrice: parseDecimal(o.AvgPrice),
		LimitPrice:     limitPrice(o.Type, o.Price),
		Status:         translateStatus(o.Status),
		CreatedAt:      time.UnixMilli(o.Time).UTC(),
		SubmittedAt:    time.UnixMilli(o.Time).UTC(),
	}
	if order.Status == domain.OrderStatusFilled {
		order.FilledAt = time.UnixMilli(o.UpdateTime).UTC()
	}
	return order
}
