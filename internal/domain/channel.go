package domain

import (
	"fmt"
	"strings"
)

// Channel is a category of historical or live market data.
type Channel string

const (
	ChannelBars   Channel = "bars"
	ChannelQuotes Channel = "quotes"
	ChannelTrades Channel = "trades"
	ChannelNews   Channel = "news"
)

// AllChannels returns every channel in the canonical walk order.
func AllChannels() []Channel {
	return []Channel{ChannelBars, ChannelQuotes, ChannelTrades, ChannelNews}
}

// IsValid reports whether c is one of the known channels.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelBars, ChannelQuotes, ChannelTrades, ChannelNews:
		return true
	default:
		return false
	}
}

// IsTimeSeries is true for the per-symbol stock data channels.
func (c Channel) IsTimeSeries() bool {
	return c == ChannelBars || c == ChannelQuotes || c == ChannelTrades
}

// ParseChannels parses a comma-separated channel list such as "bars,news".
// Order is preserved and duplicates are dropped. An empty string yields AllChannels.
func ParseChannels(s string) ([]Channel, error) {
	if strings.TrimSpace(s) == "" {
		return AllChannels(), nil
	}
	seen := make(map[Channel]bool)
	var channels []Channel
	for _, part := range strings.Split(s, ",") {
		ch := Channel(strings.ToLower(strings.TrimSpace(part)))
		if ch == "" {
			continue
		}
		if !ch.IsValid() {
			return nil, fmt.Errorf("unknown channel %q", part)
		}
		if seen[ch] {
			continue
		}
		seen[ch] = true
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		return AllChannels(), nil
	}
	return channels, nil
}
