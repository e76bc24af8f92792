package ports

import (
	"context"
	"time"

	"algoTrader/internal/domain"
)

// ResultSink persists the outcome of a historical fetch.
type ResultSink interface {
	Save(ctx context.Context, result *domain.FetchResult) error
}

// OrderRepository stores orders submitted by the trader and their later updates.
type OrderRepository interface {
	// SaveOrder inserts the order or updates the stored row with the same ID.
	SaveOrder(ctx context.Context, order *domain.Order) error
	// FindBySymbol retrieves the most recent orders for a symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Order, error)
	// CountSince counts orders for a symbol created at or after since.
	CountSince(ctx context.Context, symbol string, since time.Time) (int, error)
}

// NewsRepository stores news articles keyed by symbol.
type NewsRepository interface {
	SaveNews(ctx context.Context, symbol string, items []domain.NewsItem) error
}
