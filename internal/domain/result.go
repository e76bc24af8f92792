package domain

// WindowFailure records a window whose request did not produce data.
type WindowFailure struct {
	Channel    Channel
	Window     Window
	StatusCode int // 0 when the request never got a response
	Reason     string
}

// FetchResult accumulates every record fetched for one symbol over one range.
// Records appear in window order; nothing is deduplicated across windows.
type FetchResult struct {
	Symbol   string
	Range    TimeRange
	Bars     []Bar
	Quotes   []Quote
	Trades   []Trade
	News     []NewsItem
	Failures []WindowFailure
}

// NewFetchResult creates an empty result for symbol over r.
func NewFetchResult(symbol string, r TimeRange) *FetchResult {
	return &FetchResult{Symbol: symbol, Range: r}
}

// Count returns the number of records stored for ch.
func (r *FetchResult) Count(ch Channel) int {
	switch ch {
	case ChannelBars:
		return len(r.Bars)
	case ChannelQuotes:
		return len(r.Quotes)
	case ChannelTrades:
		return len(r.Trades)
	case ChannelNews:
		return len(r.News)
	default:
		return 0
	}
}

// Total returns the number of records across all channels.
func (r *FetchResult) Total() int {
	return len(r.Bars) + len(r.Quotes) + len(r.Trades) + len(r.News)
}
