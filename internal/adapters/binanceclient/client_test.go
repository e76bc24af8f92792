package binanceclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var (
	_ ports.MarketDataClient = (*Client)(nil)
	_ ports.TradingClient    = (*Client)(nil)
	_ ports.StreamClient     = (*Client)(nil)
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "key", SecretKey: "secret", BaseURL: srv.URL, Logger: &mockLogger{}})
	require.NoError(t, err)
	return c
}

func testWindow() domain.Window {
	start := time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)
	return domain.Window{Start: start, End: start.Add(time.Minute)}
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestGetHistorical_Bars(t *testing.T) {
	var query map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/klines"))
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`[[1704204000000,"1.0","2.0","0.5","1.5","100",1704204059999,"150",7,"50","75","0"]]`))
	})

	page, err := c.GetHistorical(context.Background(), ports.HistoricalRequest{
		Channel: domain.ChannelBars,
		Symbol:  "BTCUSDT",
		Window:  testWindow(),
		Params:  map[string]string{"limit": "5000", "timeframe": "1Min"},
	})
	require.NoError(t, err)
	require.True(t, page.OK)
	require.Len(t, page.Records, 1)

	assert.Equal(t, "BTCUSDT", query["symbol"])
	assert.Equal(t, "1m", query["interval"])
	assert.Equal(t, "1500", query["limit"])
	assert.Equal(t, "1704204000000", query["startTime"])
	assert.Equal(t, "1704204059999", query["endTime"])

	var bar domain.Bar
	require.NoError(t, json.Unmarshal(page.Records[0], &bar))
	assert.Equal(t, 1.5, bar.Close)
	assert.Equal(t, uint64(7), bar.TradeCount)
	assert.InDelta(t, 1.5, bar.VWAP, 1e-9)
	assert.True(t, bar.Timestamp.Equal(time.UnixMilli(1704204000000)))
}

func TestGetHistorical_Trades(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/aggTrades"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"a":26129,"p":"43000.5","q":"0.25","f":1,"l":2,"T":1704204001000,"m":true}]`))
	})

	page, err := c.GetHistorical(context.Background(), ports.HistoricalRequest{
		Channel: domain.ChannelTrades,
		Symbol:  "BTCUSDT",
		Window:  testWindow(),
		Params:  map[string]string{"limit": "5"},
	})
	require.NoError(t, err)
	require.True(t, page.OK)
	require.Len(t, page.Records, 1)

	var trade domain.Trade
	require.NoError(t, json.Unmarshal(page.Records[0], &trade))
	assert.Equal(t, int64(26129), trade.ID)
	assert.Equal(t, 43000.5, trade.Price)
	assert.Equal(t, 0.25, trade.Size)
}

func TestGetHistorical_APIErrorIsNotOK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	})

	page, err := c.GetHistorical(context.Background(), ports.HistoricalRequest{
		Channel: domain.ChannelBars, Symbol: "BTCUSDT", Window: testWindow(),
	})
	require.NoError(t, err)
	assert.False(t, page.OK)
	assert.Equal(t, http.StatusTooManyRequests, page.StatusCode)
	assert.Contains(t, page.Body, "Too many requests")
}

func TestGetHistorical_UnsupportedChannels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})
	for _, ch := range []domain.Channel{domain.ChannelQuotes, domain.ChannelNews} {
		_, err := c.GetHistorical(context.Background(), ports.HistoricalRequest{Channel: ch, Symbol: "BTCUSDT", Window: testWindow()})
		assert.ErrorIs(t, err, ports.ErrUnsupportedChannel, ch)
	}
}

func TestGetAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		_, _ = w.Write([]byte(`{"canTrade":true,"totalWalletBalance":"1000.5","availableBalance":"800","totalMarginBalance":"1010","assets":[],"positions":[]}`))
	})

	acct, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.True(t, acct.CanTrade())
	assert.Equal(t, "USDT", acct.Currency)
	assert.True(t, decimal.RequireFromString("1000.5").Equal(acct.Cash))
	assert.True(t, decimal.NewFromInt(800).Equal(acct.BuyingPower))
	assert.True(t, decimal.NewFromInt(1010).Equal(acct.Equity))
}

func TestGetAccount_FailureIsConnectionFailed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key"}`))
	})

	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
	assert.ErrorIs(t, err, ports.ErrAuthenticationFailed)
}

func TestSubmitOrder(t *testing.T) {
	var form map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}
		_, _ = w.Write([]byte(`{"orderId":42,"symbol":"BTCUSDT","clientOrderId":"cid-1","price":"0","avgPrice":"43000.5","origQty":"0.01","executedQty":"0.01","status":"FILLED","timeInForce":"GTC","type":"MARKET","side":"BUY","updateTime":1704204000000}`))
	})

	order, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		Symbol:        "BTCUSDT",
		Qty:           decimal.RequireFromString("0.01"),
		Side:          domain.Buy,
		Type:          domain.OrderTypeMarket,
		TimeInForce:   domain.TimeInForceDay,
		ClientOrderID: "cid-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", form["symbol"])
	assert.Equal(t, "BUY", form["side"])
	assert.Equal(t, "MARKET", form["type"])
	assert.Equal(t, "0.01", form["quantity"])
	assert.Equal(t, "cid-1", form["newClientOrderId"])

	assert.Equal(t, "42", order.ID)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.Equal(t, domain.Buy, order.Side)
	assert.True(t, decimal.RequireFromString("43000.5").Equal(order.FilledAvgPrice))
	assert.False(t, order.FilledAt.IsZero())
	assert.Nil(t, order.LimitPrice)
}

func TestSubmitOrder_LimitWithoutPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})
	_, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Qty: decimal.NewFromInt(1), Side: domain.Sell, Type: domain.OrderTypeLimit, TimeInForce: domain.TimeInForceGTC,
	})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestSubmitOrder_InsufficientMargin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})
	_, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Qty: decimal.NewFromInt(1), Side: domain.Buy, Type: domain.OrderTypeMarket, TimeInForce: domain.TimeInForceDay,
	})
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
}

func TestListOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			_, _ = w.Write([]byte(`[{"orderId":1,"symbol":"BTCUSDT","status":"FILLED","type":"LIMIT","side":"BUY","price":"42000","origQty":"1","executedQty":"1","avgPrice":"42000","time":1704204000000,"updateTime":1704204005000}]`))
		default:
			_, _ = w.Write([]byte(`[{"orderId":2,"symbol":"ETHUSDT","status":"CANCELED","type":"MARKET","side":"SELL","origQty":"2","executedQty":"0","avgPrice":"0","time":1704207600000,"updateTime":1704207600000}]`))
		}
	})

	orders, err := c.ListOrders(context.Background(), domain.OrderQuery{Symbols: []string{"BTCUSDT", "ETHUSDT"}})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "2", orders[0].ID, "newest first")
	assert.Equal(t, domain.OrderStatusCanceled, orders[0].Status)
	assert.Equal(t, "1", orders[1].ID)
	require.NotNil(t, orders[1].LimitPrice)
	assert.True(t, decimal.NewFromInt(42000).Equal(*orders[1].LimitPrice))
	assert.False(t, orders[1].FilledAt.IsZero())

	_, err = c.ListOrders(context.Background(), domain.OrderQuery{})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestMapAPIError(t *testing.T) {
	tests := []struct {
		code int64
		want error
	}{
		{-1003, ports.ErrRateLimited},
		{-1021, ports.ErrTimeout},
		{-2015, ports.ErrAuthenticationFailed},
		{-1121, ports.ErrInvalidRequest},
		{-2010, ports.ErrOrderPlacementFailed},
		{-2013, ports.ErrNotFound},
		{-2019, ports.ErrInsufficientFunds},
		{-9999, ports.ErrUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapAPIError(tt.code), tt.code)
	}
}

func TestHandleError(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}})
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, c.handleError(ctx, nil, "op"))
	assert.ErrorIs(t, c.handleError(ctx, &common.APIError{Code: -1003, Message: "slow down"}, "op"), ports.ErrRateLimited)
	assert.ErrorIs(t, c.handleError(ctx, context.DeadlineExceeded, "op"), ports.ErrTimeout)
	assert.ErrorIs(t, c.handleError(ctx, context.Canceled, "op"), ports.ErrContextCanceled)
	assert.ErrorIs(t, c.handleError(ctx, errors.New("dial tcp: connection refused"), "op"), ports.ErrConnectionFailed)
	assert.ErrorIs(t, c.handleError(ctx, errors.New("boom"), "op"), ports.ErrUnknown)
}

func TestTranslateWsKline(t *testing.T) {
	event := &futures.WsKlineEvent{Kline: futures.WsKline{
		StartTime: 1704204000000, Open: "1", High: "3", Low: "0.5", Close: "2", Volume: "10", QuoteVolume: "20", TradeNum: 4, IsFinal: true,
	}}
	bar, err := translateWsKline(event)
	require.NoError(t, err)
	assert.Equal(t, 2.0, bar.Close)
	assert.Equal(t, 2.0, bar.VWAP)
	assert.Equal(t, uint64(4), bar.TradeCount)

	_, err = translateWsKline(&futures.WsKlineEvent{Kline: futures.WsKline{Open: "x"}})
	assert.Error(t, err)
	_, err = translateWsKline(nil)
	assert.Error(t, err)
}

func TestStreamMarketData(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}, ReconnectDelay: time.Millisecond, MaxReconnectAttempts: 2})
	require.NoError(t, err)

	_, err = c.StreamMarketData(context.Background(), []domain.Channel{domain.ChannelQuotes}, []string{"BTCUSDT"}, nil, nil)
	assert.ErrorIs(t, err, ports.ErrUnsupportedChannel)

	_, err = c.StreamTradeUpdates(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ports.ErrUnsupportedChannel)

	orig := klineServe
	t.Cleanup(func() { klineServe = orig })

	var (
		mu  sync.Mutex
		got []domain.StreamMessage
	)
	klineServe = func(symbol, interval string, handler futures.WsKlineHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
		assert.Equal(t, "BTCUSDT", symbol)
		assert.Equal(t, "1m", interval)
		handler(&futures.WsKlineEvent{Kline: futures.WsKline{Open: "1", High: "1", Low: "1", Close: "1", Volume: "0", QuoteVolume: "0", IsFinal: false}})
		handler(&futures.WsKlineEvent{Kline: futures.WsKline{Open: "1", High: "2", Low: "1", Close: "2", Volume: "1", QuoteVolume: "2", IsFinal: true}})
		return make(chan struct{}), make(chan struct{}, 1), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done, err := c.StreamMarketData(ctx, []domain.Channel{domain.ChannelBars}, []string{"btcusdt"}, func(msg domain.StreamMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after cancel")
	}
	assert.Equal(t, domain.ChannelBars, got[0].Channel)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.Equal(t, 2.0, got[0].Bar.Close)
}

func TestStreamMarketData_GivesUp(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}, ReconnectDelay: time.Millisecond, MaxReconnectAttempts: 2})
	require.NoError(t, err)

	orig := klineServe
	t.Cleanup(func() { klineServe = orig })
	attempts := 0
	klineServe = func(symbol, interval string, handler futures.WsKlineHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
		attempts++
		return nil, nil, errors.New("connection refused")
	}

	var streamErr error
	done, err := c.StreamMarketData(context.Background(), []domain.Channel{domain.ChannelBars}, []string{"BTCUSDT"}, func(domain.StreamMessage) {}, func(err error) {
		streamErr = err
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not give up")
	}
	assert.Equal(t, 2, attempts)
	assert.ErrorIs(t, streamErr, ports.ErrStreamClosed)
}
