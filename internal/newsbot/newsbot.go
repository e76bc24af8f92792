// Package newsbot polls a news source on a fixed schedule while the market is open.
package newsbot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

// DefaultCheckInterval is how often Run re-checks trading hours.
const DefaultCheckInterval = 15 * time.Second

// Bot fetches news for a set of symbols every frequency and keeps articles it has not seen.
type Bot struct {
	source    ports.NewsSource
	logger    ports.Logger
	repo      ports.NewsRepository
	symbols   []string
	hours     domain.TradingHours
	frequency time.Duration

	now        func() time.Time
	checkEvery time.Duration

	mu   sync.Mutex
	seen map[string]struct{}
}

// Option configures a Bot.
type Option func(*Bot)

// WithClock replaces time.Now for the trading-hours check.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// WithCheckInterval changes how often trading hours are re-checked.
func WithCheckInterval(d time.Duration) Option {
	return func(b *Bot) { b.checkEvery = d }
}

// New creates a news bot. repo may be nil, in which case articles are only logged.
func New(source ports.NewsSource, logger ports.Logger, repo ports.NewsRepository, symbols []string,
	hours domain.TradingHours, frequency time.Duration, opts ...Option) (*Bot, error) {
	if source == nil || logger == nil {
		return nil, fmt.Errorf("%w: news source and logger are required", ports.ErrConfigurationError)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol is required", ports.ErrConfigurationError)
	}
	if frequency < time.Second {
		return nil, fmt.Errorf("%w: news frequency must be at least 1s, got %s", ports.ErrConfigurationError, frequency)
	}

	b := &Bot{
		source:     source,
		logger:     logger,
		repo:       repo,
		symbols:    symbols,
		hours:      hours,
		frequency:  frequency,
		now:        time.Now,
		checkEvery: DefaultCheckInterval,
		seen:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Run schedules polling and blocks until trading hours end or ctx is cancelled.
// It returns immediately when started outside trading hours.
func (b *Bot) Run(ctx context.Context) error {
	if !b.hours.Contains(b.now()) {
		b.logger.Info(ctx, "Outside trading hours, news bot not started", map[string]interface{}{"hours": b.hours.String()})
		return nil
	}

	clog := cronLogger{ctx: ctx, logger: b.logger}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.SkipIfStillRunning(clog)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", b.frequency), func() {
		if _, err := b.Poll(ctx); err != nil {
			b.logger.Error(ctx, err, "News poll failed")
		}
	}); err != nil {
		return fmt.Errorf("register news job: %w", err)
	}
	c.Start()
	b.logger.Info(ctx, "News bot started", map[string]interface{}{
		"symbols": b.symbols, "frequency": b.frequency.String(), "hours": b.hours.String(),
	})
	defer func() {
		<-c.Stop().Done()
		b.logger.Info(ctx, "News bot stopped")
	}()

	ticker := time.NewTicker(b.checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !b.hours.Contains(b.now()) {
				b.logger.Info(ctx, "Trading hours ended")
				return nil
			}
		}
	}
}

// Poll fetches the latest news once and handles the articles not seen before.
// It returns the number of new articles.
func (b *Bot) Poll(ctx context.Context) (int, error) {
	items, err := b.source.LatestNews(ctx, b.symbols)
	if err != nil {
		return 0, err
	}

	fresh := b.unseen(items)
	bySymbol := make(map[string][]domain.NewsItem)
	for _, item := range fresh {
		b.logger.Info(ctx, "News", map[string]interface{}{
			"headline":  item.Headline,
			"source":    item.Source,
			"symbols":   item.Symbols,
			"url":       item.URL,
			"published": item.CreatedAt,
		})
		for _, symbol := range item.Symbols {
			bySymbol[symbol] = append(bySymbol[symbol], item)
		}
	}

	if b.repo != nil {
		for symbol, batch := range bySymbol {
			if err := b.repo.SaveNews(ctx, symbol, batch); err != nil {
				b.logger.Error(ctx, err, "Failed to store news", map[string]interface{}{"symbol": symbol, "count": len(batch)})
			}
		}
	}
	b.logger.Debug(ctx, "News poll complete", map[string]interface{}{"received": len(items), "new": len(fresh)})
	return len(fresh), nil
}

// unseen filters items to those whose URL (or headline, when there is no URL) is new.
func (b *Bot) unseen(items []domain.NewsItem) []domain.NewsItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	var fresh []domain.NewsItem
	for _, item := range items {
		key := item.URL
		if key == "" {
			key = item.Headline
		}
		if _, ok := b.seen[key]; ok {
			continue
		}
		b.seen[key] = struct{}{}
		fresh = append(fresh, item)
	}
	return fresh
}

// cronLogger routes cron's own logging through ports.Logger.
type cronLogger struct {
	ctx    context.Context
	logger ports.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(l.ctx, "cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(l.ctx, err, "cron: "+msg, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
