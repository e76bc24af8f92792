package ports

import (
	"context"
	"encoding/json"

	"algoTrader/internal/domain"
)

// HistoricalRequest is one paginated request for one channel, symbol and window.
type HistoricalRequest struct {
	Channel domain.Channel
	Symbol  string
	Window  domain.Window
	// Params holds the query parameters (limit, timeframe, start, end) already formatted.
	Params map[string]string
}

// HistoricalPage is the broker's answer to a HistoricalRequest.
type HistoricalPage struct {
	OK         bool
	StatusCode int
	// Records is the channel's record array; nil when the body carried null or no array.
	Records       []json.RawMessage
	NextPageToken string
	Body          string // raw response body, kept for failure logging
}

// MarketDataClient retrieves historical market data.
type MarketDataClient interface {
	// GetHistorical issues a single request. A non-OK HTTP status is reported through
	// HistoricalPage.OK, not as an error; errors are reserved for transport failures
	// and channels the broker cannot serve (ErrUnsupportedChannel).
	GetHistorical(ctx context.Context, req HistoricalRequest) (*HistoricalPage, error)
}

// TradingClient covers account and order endpoints.
type TradingClient interface {
	// GetAccount returns the account snapshot. Failures wrap ErrConnectionFailed.
	GetAccount(ctx context.Context) (*domain.Account, error)
	// SubmitOrder sends an order and returns the broker's view of it.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error)
	// ListOrders returns orders matching the query, newest first.
	ListOrders(ctx context.Context, q domain.OrderQuery) ([]*domain.Order, error)
}

// StreamClient delivers live market data and account events.
// Both methods return once connected; doneCh is closed when the stream ends.
type StreamClient interface {
	StreamMarketData(ctx context.Context, channels []domain.Channel, symbols []string,
		handler func(msg domain.StreamMessage), errHandler func(err error)) (doneCh chan struct{}, err error)
	StreamTradeUpdates(ctx context.Context,
		handler func(update domain.TradeUpdate), errHandler func(err error)) (doneCh chan struct{}, err error)
}

// NewsSource fetches recent news articles for a set of symbols.
type NewsSource interface {
	LatestNews(ctx context.Context, symbols []string) ([]domain.NewsItem, error)
}
