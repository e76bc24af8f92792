package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

// streamSession describes one WebSocket endpoint: how to authenticate and
// subscribe after dialing, and what to do with each frame afterwards.
type streamSession struct {
	name      string
	url       string
	handshake func(conn *websocket.Conn) error
	onMessage func(data []byte) error
}

// controlMessage covers the success/error/subscription frames of the data streams.
type controlMessage struct {
	T    string `json:"T"`
	Msg  string `json:"msg"`
	Code int    `json:"code"`

	// declared so that a data message's "t" key is not folded onto T
	Timestamp json.RawMessage `json:"t"`
}

type barMessage struct {
	T string `json:"T"`
	S string `json:"S"`
	domain.Bar
}

type quoteMessage struct {
	T string `json:"T"`
	S string `json:"S"`
	domain.Quote
}

type tradeMessage struct {
	T string `json:"T"`
	S string `json:"S"`
	domain.Trade
}

type newsMessage struct {
	T string `json:"T"`
	domain.NewsItem
}

type tradingStreamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tradeUpdateDTO struct {
	Event       string              `json:"event"`
	Timestamp   time.Time           `json:"timestamp"`
	Price       decimal.NullDecimal `json:"price"`
	Qty         decimal.NullDecimal `json:"qty"`
	PositionQty decimal.NullDecimal `json:"position_qty"`
	Order       orderDTO            `json:"order"`
}

// StreamMarketData subscribes to live bars, quotes, trades and news for symbols.
// Stock channels and news live on different endpoints, so up to two connections are
// opened; doneCh closes once every connection has stopped for good.
func (c *Client) StreamMarketData(ctx context.Context, channels []domain.Channel, symbols []string,
	handler func(msg domain.StreamMessage), errHandler func(err error)) (chan struct{}, error) {
	op := "StreamMarketData"

	subscribe := map[string]interface{}{"action": "subscribe"}
	wantNews := false
	for _, ch := range channels {
		switch {
		case ch.IsTimeSeries():
			subscribe[string(ch)] = symbols
		case ch == domain.ChannelNews:
			wantNews = true
		default:
			return nil, fmt.Errorf("%s: %w: %s", op, ports.ErrUnsupportedChannel, ch)
		}
	}

	onMessage := func(data []byte) error {
		msgs, err := decodeMarketMessages(data)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			handler(m)
		}
		return nil
	}

	var sessions []streamSession
	if len(subscribe) > 1 {
		sessions = append(sessions, streamSession{
			name:      "stocks",
			url:       c.dataStreamURL,
			handshake: c.dataHandshake(subscribe),
			onMessage: onMessage,
		})
	}
	if wantNews {
		sessions = append(sessions, streamSession{
			name:      "news",
			url:       c.newsStreamURL,
			handshake: c.dataHandshake(map[string]interface{}{"action": "subscribe", "news": symbols}),
			onMessage: onMessage,
		})
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%s: %w: no channels requested", op, ports.ErrInvalidRequest)
	}

	// sessions already up are torn down if a later one fails to connect
	streamCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	var dones []chan struct{}
	for _, s := range sessions {
		done, err := c.serve(streamCtx, op, s, errHandler)
		if err != nil {
			cancel()
			for _, d := range dones {
				<-d
			}
			return nil, err
		}
		dones = append(dones, done)
	}

	doneCh := make(chan struct{})
	for _, d := range dones {
		wg.Add(1)
		go func(d chan struct{}) {
			defer wg.Done()
			<-d
		}(d)
	}
	go func() {
		wg.Wait()
		cancel()
		close(doneCh)
	}()
	return doneCh, nil
}

// StreamTradeUpdates listens for order events on the account.
func (c *Client) StreamTradeUpdates(ctx context.Context,
	handler func(update domain.TradeUpdate), errHandler func(err error)) (chan struct{}, error) {
	s := streamSession{
		name:      "trade_updates",
		url:       c.tradingStreamURL,
		handshake: c.tradingHandshake,
		onMessage: func(data []byte) error {
			update, ok, err := decodeTradeUpdate(data)
			if err != nil || !ok {
				return err
			}
			handler(update)
			return nil
		},
	}
	return c.serve(ctx, "StreamTradeUpdates", s, errHandler)
}

// serve dials once synchronously and then keeps the session alive in the background,
// reconnecting with exponential backoff until ctx ends or attempts run out.
func (c *Client) serve(ctx context.Context, op string, s streamSession, errHandler func(error)) (chan struct{}, error) {
	fields := map[string]interface{}{"stream": s.name, "url": s.url}

	conn, err := c.connect(ctx, s)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+": WebSocket connection established.", fields)

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)

		b := &backoff.Backoff{Min: c.reconnectDelay, Max: 32 * c.reconnectDelay, Factor: 2, Jitter: true}
		for {
			readErr := c.readLoop(ctx, conn, s, errHandler)
			if ctx.Err() != nil {
				c.logger.Info(ctx, op+": Context cancelled, stopping WebSocket.", fields)
				return
			}
			errHandler(fmt.Errorf("%w: %w", ports.ErrStreamClosed, readErr))
			c.logger.Warn(ctx, op+": WebSocket connection closed unexpectedly. Reconnecting...", fields)

			conn = nil
			for attempt := 1; conn == nil; attempt++ {
				if attempt > c.maxReconnectAttempts {
					c.logger.Error(ctx, readErr, op+": Max reconnection attempts exceeded, giving up.",
						map[string]interface{}{"stream": s.name, "maxAttempts": c.maxReconnectAttempts})
					return
				}
				delay := b.Duration()
				c.logger.Info(ctx, op+": Reconnecting after delay", map[string]interface{}{
					"stream": s.name, "attempt": attempt, "delay": delay.String(),
				})
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
				conn, err = c.connect(ctx, s)
				if err != nil {
					_ = c.handleError(ctx, err, op+" reconnect")
				}
			}
			b.Reset()
			c.logger.Info(ctx, op+": WebSocket connection re-established.", fields)
		}
	}()
	return doneCh, nil
}

func (c *Client) connect(ctx context.Context, s streamSession) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.url, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	if err := s.handshake(conn); err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn, nil
}

// readLoop reads frames until the connection fails or ctx is cancelled.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, s streamSession, errHandler func(error)) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.onMessage(data); err != nil {
			c.logger.Warn(ctx, "Dropped undecodable stream frame", map[string]interface{}{"stream": s.name, "error": err.Error()})
			errHandler(err)
		}
	}
}

// dataHandshake performs the market-data stream sequence:
// connected -> auth -> authenticated -> subscribe -> subscription.
func (c *Client) dataHandshake(subscribe map[string]interface{}) func(conn *websocket.Conn) error {
	return func(conn *websocket.Conn) error {
		if err := expectControl(conn, "success", "connected"); err != nil {
			return err
		}
		auth := map[string]string{"action": "auth", "key": c.apiKey, "secret": c.secretKey}
		if err := writeJSON(conn, auth); err != nil {
			return err
		}
		if err := expectControl(conn, "success", "authenticated"); err != nil {
			return err
		}
		if err := writeJSON(conn, subscribe); err != nil {
			return err
		}
		return expectControl(conn, "subscription", "")
	}
}

// tradingHandshake authenticates on the trading stream and listens to trade_updates.
func (c *Client) tradingHandshake(conn *websocket.Conn) error {
	auth := map[string]string{"action": "auth", "key": c.apiKey, "secret": c.secretKey}
	if err := writeJSON(conn, auth); err != nil {
		return err
	}
	var authResp struct {
		Stream string `json:"stream"`
		Data   struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&authResp); err != nil {
		return fmt.Errorf("read authorization: %w", err)
	}
	if authResp.Stream != "authorization" || authResp.Data.Status != "authorized" {
		return fmt.Errorf("%w: trading stream status %q", ports.ErrAuthenticationFailed, authResp.Data.Status)
	}

	listen := map[string]interface{}{
		"action": "listen",
		"data":   map[string][]string{"streams": {"trade_updates"}},
	}
	if err := writeJSON(conn, listen); err != nil {
		return err
	}
	var listening tradingStreamMessage
	if err := conn.ReadJSON(&listening); err != nil {
		return fmt.Errorf("read listening ack: %w", err)
	}
	if listening.Stream != "listening" {
		return fmt.Errorf("unexpected trading stream reply %q", listening.Stream)
	}
	return nil
}

// expectControl reads one frame and checks it carries the wanted control message.
// An empty msg matches any message of type t.
func expectControl(conn *websocket.Conn, t, msg string) error {
	var frames []controlMessage
	if err := conn.ReadJSON(&frames); err != nil {
		return fmt.Errorf("read %s %s: %w", t, msg, err)
	}
	for _, f := range frames {
		if f.T == "error" {
			if f.Code == 402 || f.Code == 401 {
				return fmt.Errorf("%w: %s", ports.ErrAuthenticationFailed, f.Msg)
			}
			return fmt.Errorf("stream error %d: %s", f.Code, f.Msg)
		}
		if f.T == t && (msg == "" || f.Msg == msg) {
			return nil
		}
	}
	return fmt.Errorf("expected %s %q from stream", t, msg)
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// decodeMarketMessages turns one data-stream frame (a JSON array) into stream messages.
// Control frames are skipped; an error frame is returned as an error.
func decodeMarketMessages(data []byte) ([]domain.StreamMessage, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode stream frame: %w", err)
	}

	var out []domain.StreamMessage
	for _, raw := range raws {
		var head controlMessage
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("decode stream message: %w", err)
		}
		switch head.T {
		case "b", "u", "d":
			var m barMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode bar: %w", err)
			}
			out = append(out, domain.StreamMessage{Channel: domain.ChannelBars, Symbol: m.S, Bar: &m.Bar})
		case "q":
			var m quoteMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode quote: %w", err)
			}
			out = append(out, domain.StreamMessage{Channel: domain.ChannelQuotes, Symbol: m.S, Quote: &m.Quote})
		case "t":
			var m tradeMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode trade: %w", err)
			}
			out = append(out, domain.StreamMessage{Channel: domain.ChannelTrades, Symbol: m.S, Trade: &m.Trade})
		case "n":
			var m newsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode news: %w", err)
			}
			symbol := ""
			if len(m.Symbols) > 0 {
				symbol = m.Symbols[0]
			}
			out = append(out, domain.StreamMessage{Channel: domain.ChannelNews, Symbol: symbol, News: &m.NewsItem})
		case "error":
			return out, errors.New("stream error: " + head.Msg)
		default:
			// success, subscription and unknown control frames carry no data
		}
	}
	return out, nil
}

// decodeTradeUpdate decodes a trading-stream frame. ok is false for frames
// that are not trade updates.
func decodeTradeUpdate(data []byte) (domain.TradeUpdate, bool, error) {
	var msg tradingStreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.TradeUpdate{}, false, fmt.Errorf("decode trading frame: %w", err)
	}
	if msg.Stream != "trade_updates" {
		return domain.TradeUpdate{}, false, nil
	}
	var dto tradeUpdateDTO
	if err := json.Unmarshal(msg.Data, &dto); err != nil {
		return domain.TradeUpdate{}, false, fmt.Errorf("decode trade update: %w", err)
	}
	return domain.TradeUpdate{
		Event:       dto.Event,
		At:          dto.Timestamp,
		Price:       dto.Price.Decimal,
		Qty:         dto.Qty.Decimal,
		PositionQty: dto.PositionQty.Decimal,
		Order:       *translateOrder(&dto.Order),
	}, true, nil
}
