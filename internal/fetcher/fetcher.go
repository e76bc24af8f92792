// Package fetcher walks a time range in fixed-size windows and collects historical
// bars, quotes, trades and news for one symbol from a MarketDataClient.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

const (
	// TimestampLayout is the wire format for the start and end query parameters.
	TimestampLayout = "2006-01-02T15:04:05Z"

	DefaultWindowSize = time.Minute
	DefaultDelay      = 500 * time.Millisecond
	DefaultTimeframe  = "1Min"

	defaultSeriesLimit = 5000
	defaultNewsLimit   = 5
)

// Request describes one fetch for one symbol.
type Request struct {
	Symbol string    `validate:"required"`
	Start  time.Time `validate:"required"`
	End    time.Time `validate:"required"`
	// WindowSize of zero means the fetcher's default.
	WindowSize time.Duration    `validate:"gte=0"`
	Channels   []domain.Channel `validate:"dive,oneof=bars quotes trades news"`
}

// Progress is reported after every request.
type Progress struct {
	Symbol  string
	Channel domain.Channel
	Window  domain.Window
	Done    int
	Total   int
	Records int
	Failed  bool
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithDelay sets the pause inserted after every request.
func WithDelay(d time.Duration) Option {
	return func(f *Fetcher) { f.delay = d }
}

// WithWindowSize sets the window length used when a Request leaves it zero.
func WithWindowSize(d time.Duration) Option {
	return func(f *Fetcher) { f.windowSize = d }
}

// WithLimits overrides the per-channel page size.
func WithLimits(limits map[domain.Channel]int) Option {
	return func(f *Fetcher) {
		for ch, n := range limits {
			f.limits[ch] = n
		}
	}
}

// WithTimeframe sets the bar aggregation period, e.g. "1Min" or "1Hour".
func WithTimeframe(tf string) Option {
	return func(f *Fetcher) { f.timeframe = tf }
}

// WithProgress registers a callback invoked after each request.
func WithProgress(fn func(Progress)) Option {
	return func(f *Fetcher) { f.onProgress = fn }
}

// WithSleeper replaces the pause implementation.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) { f.sleep = s }
}

// Fetcher is the windowed historical-data collector.
// It issues one request at a time and waits a fixed delay after each one.
type Fetcher struct {
	client     ports.MarketDataClient
	logger     ports.Logger
	validate   *validator.Validate
	windowSize time.Duration
	delay      time.Duration
	timeframe  string
	limits     map[domain.Channel]int
	onProgress func(Progress)
	sleep      Sleeper
}

// New creates a Fetcher with default window size, delay and page limits.
func New(client ports.MarketDataClient, logger ports.Logger, opts ...Option) (*Fetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: market data client is required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}

	f := &Fetcher{
		client:     client,
		logger:     logger,
		validate:   validator.New(),
		windowSize: DefaultWindowSize,
		delay:      DefaultDelay,
		timeframe:  DefaultTimeframe,
		limits: map[domain.Channel]int{
			domain.ChannelBars:   defaultSeriesLimit,
			domain.ChannelQuotes: defaultSeriesLimit,
			domain.ChannelTrades: defaultSeriesLimit,
			domain.ChannelNews:   defaultNewsLimit,
		},
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.windowSize <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive", ports.ErrConfigurationError)
	}
	if f.delay < 0 {
		return nil, fmt.Errorf("%w: delay cannot be negative", ports.ErrConfigurationError)
	}
	if f.timeframe == "" {
		return nil, fmt.Errorf("%w: bar timeframe is required", ports.ErrConfigurationError)
	}
	return f, nil
}

// Fetch walks every requested channel over every window of the range and returns
// what the broker served. Failed windows are logged, listed in Failures and skipped.
// Only an invalid request is an error; if ctx is cancelled the partial result is
// returned together with ctx.Err().
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*domain.FetchResult, error) {
	const op = "Fetch"

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := f.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrConfigurationError, err)
	}
	r, err := domain.NewTimeRange(req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrConfigurationError, err)
	}

	size := req.WindowSize
	if size == 0 {
		size = f.windowSize
	}
	channels := req.Channels
	if len(channels) == 0 {
		channels = domain.AllChannels()
	}

	result := domain.NewFetchResult(req.Symbol, r)
	perChannel := r.WindowCount(size)
	total := perChannel * len(channels)
	done := 0

	f.logger.Info(ctx, op+": Starting historical fetch", map[string]interface{}{
		"symbol":   req.Symbol,
		"start":    r.Start.Format(TimestampLayout),
		"end":      r.End.Format(TimestampLayout),
		"window":   size.String(),
		"windows":  perChannel,
		"channels": len(channels),
	})

	for _, ch := range channels {
		for w := range r.Windows(size) {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			n, ok := f.fetchWindow(ctx, result, ch, w)
			if err := ctx.Err(); err != nil {
				return result, err
			}
			done++
			if f.onProgress != nil {
				f.onProgress(Progress{
					Symbol: req.Symbol, Channel: ch, Window: w,
					Done: done, Total: total, Records: n, Failed: !ok,
				})
			}

			if err := f.sleep(ctx, f.delay); err != nil {
				return result, err
			}
		}
	}

	f.logger.Info(ctx, op+": Historical fetch finished", map[string]interface{}{
		"symbol":   req.Symbol,
		"bars":     len(result.Bars),
		"quotes":   len(result.Quotes),
		"trades":   len(result.Trades),
		"news":     len(result.News),
		"failures": len(result.Failures),
	})
	return result, nil
}

// fetchWindow issues the request for one window and appends its records.
// It returns the number of records appended and whether the window succeeded.
func (f *Fetcher) fetchWindow(ctx context.Context, result *domain.FetchResult, ch domain.Channel, w domain.Window) (int, bool) {
	fields := map[string]interface{}{
		"channel": string(ch),
		"symbol":  result.Symbol,
		"start":   w.Start.Format(TimestampLayout),
		"end":     w.End.Format(TimestampLayout),
	}

	page, err := f.client.GetHistorical(ctx, ports.HistoricalRequest{
		Channel: ch,
		Symbol:  result.Symbol,
		Window:  w,
		Params:  f.params(ch, w),
	})
	if err != nil {
		if ctx.Err() != nil {
			// cancelled, not a broker failure
			return 0, false
		}
		f.logger.Error(ctx, err, "Failed to fetch window", fields)
		f.fail(result, ch, w, 0, err.Error())
		return 0, false
	}
	if !page.OK {
		fields["status"] = page.StatusCode
		fields["body"] = page.Body
		f.logger.Warn(ctx, "Broker returned non-OK status for window", fields)
		f.fail(result, ch, w, page.StatusCode, fmt.Sprintf("status %d", page.StatusCode))
		return 0, false
	}

	n, err := appendRecords(result, ch, page.Records)
	if err != nil {
		f.logger.Error(ctx, err, "Failed to decode window records", fields)
		f.fail(result, ch, w, page.StatusCode, err.Error())
		return 0, false
	}
	if page.NextPageToken != "" {
		fields["limit"] = f.limits[ch]
		f.logger.Warn(ctx, "Window hit page limit, later records in it were not fetched", fields)
	}

	fields["records"] = n
	f.logger.Debug(ctx, "Window fetched", fields)
	return n, true
}

func (f *Fetcher) fail(result *domain.FetchResult, ch domain.Channel, w domain.Window, status int, reason string) {
	result.Failures = append(result.Failures, domain.WindowFailure{
		Channel:    ch,
		Window:     w,
		StatusCode: status,
		Reason:     fmt.Sprintf("%v: %s", ports.ErrTransientFetch, reason),
	})
}

func (f *Fetcher) params(ch domain.Channel, w domain.Window) map[string]string {
	p := map[string]string{
		"start": w.Start.UTC().Format(TimestampLayout),
		"end":   w.End.UTC().Format(TimestampLayout),
		"limit": strconv.Itoa(f.limits[ch]),
	}
	if ch == domain.ChannelBars {
		p["timeframe"] = f.timeframe
	}
	return p
}

func appendRecords(result *domain.FetchResult, ch domain.Channel, raw []json.RawMessage) (int, error) {
	switch ch {
	case domain.ChannelBars:
		recs, err := decodeRecords[domain.Bar](raw)
		if err != nil {
			return 0, err
		}
		result.Bars = append(result.Bars, recs...)
		return len(recs), nil
	case domain.ChannelQuotes:
		recs, err := decodeRecords[domain.Quote](raw)
		if err != nil {
			return 0, err
		}
		result.Quotes = append(result.Quotes, recs...)
		return len(recs), nil
	case domain.ChannelTrades:
		recs, err := decodeRecords[domain.Trade](raw)
		if err != nil {
			return 0, err
		}
		result.Trades = append(result.Trades, recs...)
		return len(recs), nil
	case domain.ChannelNews:
		recs, err := decodeRecords[domain.NewsItem](raw)
		if err != nil {
			return 0, err
		}
		result.News = append(result.News, recs...)
		return len(recs), nil
	default:
		return 0, fmt.Errorf("%w: %s", ports.ErrUnsupportedChannel, ch)
	}
}

// decodeRecords decodes every record or none.
func decodeRecords[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
