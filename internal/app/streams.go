package app

import (
	"context"
	"fmt"
	"sync"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

// MarketStreamer logs live market data and, when a repository is set, stores news.
type MarketStreamer struct {
	client ports.StreamClient
	logger ports.Logger
	news   ports.NewsRepository

	mu     sync.Mutex
	counts map[domain.Channel]int
}

// NewMarketStreamer creates a streamer; news may be nil.
func NewMarketStreamer(client ports.StreamClient, logger ports.Logger, news ports.NewsRepository) (*MarketStreamer, error) {
	if client == nil || logger == nil {
		return nil, fmt.Errorf("%w: stream client and logger are required", ports.ErrConfigurationError)
	}
	return &MarketStreamer{client: client, logger: logger, news: news, counts: make(map[domain.Channel]int)}, nil
}

// Run subscribes and blocks until ctx ends or the stream closes for good.
func (m *MarketStreamer) Run(ctx context.Context, channels []domain.Channel, symbols []string) error {
	done, err := m.client.StreamMarketData(ctx, channels, symbols,
		func(msg domain.StreamMessage) { m.handle(ctx, msg) },
		func(err error) { m.logger.Error(ctx, err, "Market data stream error") },
	)
	if err != nil {
		return fmt.Errorf("starting market data stream: %w", err)
	}
	m.logger.Info(ctx, "Market data stream started", map[string]interface{}{"channels": channels, "symbols": symbols})
	return waitStream(ctx, done, "market data")
}

// Counts returns how many messages were received per channel.
func (m *MarketStreamer) Counts() map[domain.Channel]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.Channel]int, len(m.counts))
	for ch, n := range m.counts {
		out[ch] = n
	}
	return out
}

func (m *MarketStreamer) handle(ctx context.Context, msg domain.StreamMessage) {
	m.mu.Lock()
	m.counts[msg.Channel]++
	m.mu.Unlock()

	fields := map[string]interface{}{"channel": string(msg.Channel), "symbol": msg.Symbol}
	switch {
	case msg.Bar != nil:
		fields["time"] = msg.Bar.Timestamp
		fields["open"] = msg.Bar.Open
		fields["high"] = msg.Bar.High
		fields["low"] = msg.Bar.Low
		fields["close"] = msg.Bar.Close
		fields["volume"] = msg.Bar.Volume
	case msg.Quote != nil:
		fields["time"] = msg.Quote.Timestamp
		fields["bid"] = msg.Quote.BidPrice
		fields["ask"] = msg.Quote.AskPrice
		fields["spread"] = msg.Quote.Spread()
	case msg.Trade != nil:
		fields["time"] = msg.Trade.Timestamp
		fields["price"] = msg.Trade.Price
		fields["size"] = msg.Trade.Size
	case msg.News != nil:
		fields["headline"] = msg.News.Headline
		fields["source"] = msg.News.Source
		fields["url"] = msg.News.URL
		m.storeNews(ctx, *msg.News)
	}
	m.logger.Info(ctx, "Market data", fields)
}

// storeNews saves the article once per symbol it mentions.
func (m *MarketStreamer) storeNews(ctx context.Context, item domain.NewsItem) {
	if m.news == nil {
		return
	}
	for _, symbol := range item.Symbols {
		if err := m.news.SaveNews(ctx, symbol, []domain.NewsItem{item}); err != nil {
			m.logger.Error(ctx, err, "Failed to store streamed news", map[string]interface{}{"symbol": symbol, "url": item.URL})
		}
	}
}

// StatusHandler follows account trade updates and keeps the order repository current.
type StatusHandler struct {
	client ports.StreamClient
	orders ports.OrderRepository
	logger ports.Logger
}

// NewStatusHandler creates a handler; orders may be nil to only log.
func NewStatusHandler(client ports.StreamClient, orders ports.OrderRepository, logger ports.Logger) (*StatusHandler, error) {
	if client == nil || logger == nil {
		return nil, fmt.Errorf("%w: stream client and logger are required", ports.ErrConfigurationError)
	}
	return &StatusHandler{client: client, orders: orders, logger: logger}, nil
}

// Run listens for trade updates until ctx ends or the stream closes for good.
func (s *StatusHandler) Run(ctx context.Context) error {
	done, err := s.client.StreamTradeUpdates(ctx,
		func(u domain.TradeUpdate) { s.handle(ctx, u) },
		func(err error) { s.logger.Error(ctx, err, "Trade update stream error") },
	)
	if err != nil {
		return fmt.Errorf("starting trade update stream: %w", err)
	}
	s.logger.Info(ctx, "Trade update stream started")
	return waitStream(ctx, done, "trade update")
}

func (s *StatusHandler) handle(ctx context.Context, u domain.TradeUpdate) {
	s.logger.Info(ctx, "Trade update", map[string]interface{}{
		"event":       u.Event,
		"orderID":     u.Order.ID,
		"symbol":      u.Order.Symbol,
		"side":        string(u.Order.Side),
		"status":      string(u.Order.Status),
		"price":       u.Price.String(),
		"qty":         u.Qty.String(),
		"positionQty": u.PositionQty.String(),
	})
	if s.orders == nil || u.Order.ID == "" {
		return
	}
	order := u.Order
	if err := s.orders.SaveOrder(ctx, &order); err != nil {
		s.logger.Error(ctx, err, "Failed to store order update", map[string]interface{}{"orderID": order.ID})
	}
}

// waitStream blocks until ctx is done (nil) or the stream ends on its own (ErrStreamClosed).
func waitStream(ctx context.Context, done <-chan struct{}, name string) error {
	select {
	case <-ctx.Done():
		<-done
		return nil
	case <-done:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s stream: %w", name, ports.ErrStreamClosed)
	}
}
