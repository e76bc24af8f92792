package binanceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

const (
	maxKlineLimit    = 1500
	maxAggTradeLimit = 1000
)

// intervals maps bar timeframes to Binance kline intervals.
var intervals = map[string]string{
	"1Min":  "1m",
	"5Min":  "5m",
	"15Min": "15m",
	"30Min": "30m",
	"1Hour": "1h",
	"4Hour": "4h",
	"1Day":  "1d",
}

// GetHistorical serves bars from klines and trades from aggregate trades.
// Records are re-encoded as domain JSON so they decode like any other broker's.
// Binance has no public quote history or news feed.
func (c *Client) GetHistorical(ctx context.Context, req ports.HistoricalRequest) (*ports.HistoricalPage, error) {
	op := "GetHistorical"
	var (
		records []json.RawMessage
		err     error
	)
	switch req.Channel {
	case domain.ChannelBars:
		records, err = c.historicalBars(ctx, req)
	case domain.ChannelTrades:
		records, err = c.historicalTrades(ctx, req)
	default:
		return nil, fmt.Errorf("%s: %w: %s", op, ports.ErrUnsupportedChannel, req.Channel)
	}

	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			// The server answered; report it like a non-OK status.
			return &ports.HistoricalPage{
				OK:         false,
				StatusCode: statusForAPIError(apiErr.Code),
				Body:       apiErr.Error(),
			}, nil
		}
		return nil, c.handleError(ctx, err, op)
	}
	return &ports.HistoricalPage{OK: true, StatusCode: 200, Records: records}, nil
}

func (c *Client) historicalBars(ctx context.Context, req ports.HistoricalRequest) ([]json.RawMessage, error) {
	interval, ok := intervals[req.Params["timeframe"]]
	if !ok {
		interval = "1m"
	}
	klines, err := c.futuresClient.NewKlinesService().
		Symbol(req.Symbol).
		Interval(interval).
		StartTime(req.Window.Start.UnixMilli()).
		EndTime(endMillis(req.Window.End)).
		Limit(pageLimit(req.Params, maxKlineLimit)).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]json.RawMessage, 0, len(klines))
	for _, k := range klines {
		bar, err := translateKline(k)
		if err != nil {
			return nil, fmt.Errorf("failed to translate historical kline: %w", err)
		}
		raw, err := json.Marshal(bar)
		if err != nil {
			return nil, err
		}
		records = append(records, raw)
	}
	return records, nil
}

func (c *Client) historicalTrades(ctx context.Context, req ports.HistoricalRequest) ([]json.RawMessage, error) {
	trades, err := c.futuresClient.NewAggTradesService().
		Symbol(req.Symbol).
		StartTime(req.Window.Start.UnixMilli()).
		EndTime(endMillis(req.Window.End)).
		Limit(pageLimit(req.Params, maxAggTradeLimit)).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]json.RawMessage, 0, len(trades))
	for _, t := range trades {
		trade, err := translateAggTrade(t)
		if err != nil {
			return nil, fmt.Errorf("failed to translate aggregate trade: %w", err)
		}
		raw, err := json.Marshal(trade)
		if err != nil {
			return nil, err
		}
		records = append(records, raw)
	}
	return records, nil
}

// endMillis makes the window end exclusive; Binance treats endTime as inclusive.
func endMillis(end time.Time) int64 {
	return end.UnixMilli() - 1
}

func pageLimit(params map[string]string, ceiling int) int {
	n, err := strconv.Atoi(params["limit"])
	if err != nil || n <= 0 || n > ceiling {
		return ceiling
	}
	return n
}

// --- Translation Helpers ---

func parseFloats(values ...string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing '%s': %w", v, err)
		}
		out[i] = f
	}
	return out, nil
}

func translateKline(k *futures.Kline) (domain.Bar, error) {
	if k == nil {
		return domain.Bar{}, errors.New("received nil kline")
	}
	f, err := parseFloats(k.Open, k.High, k.Low, k.Close, k.Volume, k.QuoteAssetVolume)
	if err != nil {
		return domain.Bar{}, err
	}
	bar := domain.Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      f[0],
		High:      f[1],
		Low:       f[2],
		Close:     f[3],
		Volume:    f[4],
	}
	if k.TradeNum > 0 {
		bar.TradeCount = uint64(k.TradeNum)
	}
	if bar.Volume > 0 {
		bar.VWAP = f[5] / bar.Volume
	}
	return bar, nil
}

func translateWsKline(event *futures.WsKlineEvent) (*domain.Bar, error) {
	if event == nil {
		return nil, errors.New("received nil kline event")
	}
	k := event.Kline
	f, err := parseFloats(k.Open, k.High, k.Low, k.Close, k.Volume, k.QuoteVolume)
	if err != nil {
		return nil, err
	}
	bar := &domain.Bar{
		Timestamp: time.UnixMilli(k.StartTime).UTC(),
		Open:      f[0],
		High:      f[1],
		Low:       f[2],
		Close:     f[3],
		Volume:    f[4],
	}
	if k.TradeNum > 0 {
		bar.TradeCount = uint64(k.TradeNum)
	}
	if bar.Volume > 0 {
		bar.VWAP = f[5] / bar.Volume
	}
	return bar, nil
}

func translateAggTrade(t *futures.AggTrade) (domain.Trade, error) {
	if t == nil {
		return domain.Trade{}, errors.New("received nil aggregate trade")
	}
	f, err := parseFloats(t.Price, t.Quantity)
	if err != nil {
		return domain.Trade{}, err
	}
	return domain.Trade{
		Timestamp: time.UnixMilli(t.Timestamp).UTC(),
		ID:        t.AggTradeID,
		Price:     f[0],
		Size:      f[1],
		Exchange:  "BINANCE",
	}, nil
}
