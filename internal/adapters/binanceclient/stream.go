package binanceclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

const streamInterval = "1m"

// klineServe is futures.WsKlineServe; replaced in tests.
var klineServe = futures.WsKlineServe

// StreamMarketData streams closed one-minute bars for each symbol.
// Only the bars channel exists on Binance; doneCh closes once every symbol's stream has stopped.
func (c *Client) StreamMarketData(ctx context.Context, channels []domain.Channel, symbols []string,
	handler func(msg domain.StreamMessage), errHandler func(err error)) (chan struct{}, error) {
	op := "StreamMarketData"
	for _, ch := range channels {
		if ch != domain.ChannelBars {
			return nil, fmt.Errorf("%s: %w: %s", op, ports.ErrUnsupportedChannel, ch)
		}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%s: %w: no symbols requested", op, ports.ErrInvalidRequest)
	}

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		done := c.streamKlines(ctx, strings.ToUpper(symbol), handler, errHandler)
		go func() {
			defer wg.Done()
			<-done
		}()
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	return doneCh, nil
}

// StreamTradeUpdates is not offered for Binance futures accounts.
func (c *Client) StreamTradeUpdates(ctx context.Context,
	handler func(update domain.TradeUpdate), errHandler func(err error)) (chan struct{}, error) {
	return nil, fmt.Errorf("StreamTradeUpdates: %w: trade updates", ports.ErrUnsupportedChannel)
}

// streamKlines keeps a kline WebSocket open for symbol, reconnecting with backoff until
// ctx is cancelled or maxReconnectAttempts consecutive connects fail.
func (c *Client) streamKlines(ctx context.Context, symbol string,
	handler func(msg domain.StreamMessage), errHandler func(err error)) chan struct{} {
	op := "StreamKlines"
	wsCtx, cancelWs := context.WithCancel(ctx)
	fields := map[string]interface{}{"symbol": symbol, "interval": streamInterval}

	binanceHandler := func(event *futures.WsKlineEvent) {
		if !event.Kline.IsFinal {
			return
		}
		bar, err := translateWsKline(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": Failed to translate WebSocket kline event", fields)
			return
		}
		handler(domain.StreamMessage{Channel: domain.ChannelBars, Symbol: symbol, Bar: bar})
	}

	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		if errHandler != nil {
			errHandler(translatedErr)
		}
	}

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		defer cancelWs()

		b := &backoff.Backoff{
			Min:    c.reconnectDelay,
			Max:    c.reconnectDelay * 32,
			Factor: 2,
			Jitter: true,
		}
		for {
			if wsCtx.Err() != nil {
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts.", fields)
				return
			}

			c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", fields)
			innerDoneCh, innerStopCh, connectErr := klineServe(symbol, streamInterval, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				c.handleError(wsCtx, connectErr, op+" connection attempt")
				if int(b.Attempt()) >= c.maxReconnectAttempts-1 {
					err := fmt.Errorf("%s: %w: max reconnection attempts exceeded: %w", op, ports.ErrStreamClosed, connectErr)
					c.logger.Error(wsCtx, err, op+": Giving up.", fields)
					if errHandler != nil {
						errHandler(err)
					}
					return
				}
				delay := b.Duration()
				c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{"symbol": symbol, "attempt": int(b.Attempt()), "delay": delay.String()})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established.", fields)
			b.Reset()

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...", fields)
			case <-wsCtx.Done():
				select {
				case innerStopCh <- struct{}{}:
				default:
				}
				c.logger.Info(wsCtx, op+": Context cancelled, stopping WebSocket.", fields)
				return
			}
		}
	}()
	return doneCh
}
