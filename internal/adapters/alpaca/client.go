package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"algoTrader/internal/ports"
)

const (
	// Base URLs
	dataBaseURL        = "https://data.alpaca.markets"
	paperTradingURL    = "https://paper-api.alpaca.markets"
	liveTradingURL     = "https://api.alpaca.markets"
	dataStreamBaseURL  = "wss://stream.data.alpaca.markets/v2/"
	newsStreamURL      = "wss://stream.data.alpaca.markets/v1beta1/news"
	paperTradingStream = "wss://paper-api.alpaca.markets/stream"
	liveTradingStream  = "wss://api.alpaca.markets/stream"

	headerKeyID  = "APCA-API-KEY-ID"
	headerSecret = "APCA-API-SECRET-KEY"
)

// Client implements ports.MarketDataClient, ports.TradingClient and ports.StreamClient
// against the Alpaca REST and WebSocket APIs.
type Client struct {
	data                 *resty.Client
	trading              *resty.Client
	apiKey               string
	secretKey            string
	dataStreamURL        string
	newsStreamURL        string
	tradingStreamURL     string
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Alpaca client adapter.
// The URL fields default to the public endpoints; tests point them at local servers.
type Config struct {
	APIKey               string
	SecretKey            string
	Paper                bool
	Feed                 string // iex (default) or sip
	Logger               ports.Logger
	HTTPTimeout          time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	DataBaseURL      string
	TradingBaseURL   string
	DataStreamURL    string
	NewsStreamURL    string
	TradingStreamURL string
}

// New creates a new Alpaca client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Alpaca client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: Alpaca API key and secret are required", ports.ErrConfigurationError)
	}

	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.DataBaseURL == "" {
		cfg.DataBaseURL = dataBaseURL
	}
	if cfg.TradingBaseURL == "" {
		cfg.TradingBaseURL = liveTradingURL
		if cfg.Paper {
			cfg.TradingBaseURL = paperTradingURL
		}
	}
	if cfg.DataStreamURL == "" {
		cfg.DataStreamURL = dataStreamBaseURL + cfg.Feed
	}
	if cfg.NewsStreamURL == "" {
		cfg.NewsStreamURL = newsStreamURL
	}
	if cfg.TradingStreamURL == "" {
		cfg.TradingStreamURL = liveTradingStream
		if cfg.Paper {
			cfg.TradingStreamURL = paperTradingStream
		}
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	cfg.Logger.Info(context.Background(), "Alpaca client configured", map[string]interface{}{
		"paper":      cfg.Paper,
		"tradingURL": cfg.TradingBaseURL,
		"feed":       cfg.Feed,
	})

	return &Client{
		data:                 newRestClient(cfg.DataBaseURL, cfg),
		trading:              newRestClient(cfg.TradingBaseURL, cfg),
		apiKey:               cfg.APIKey,
		secretKey:            cfg.SecretKey,
		dataStreamURL:        cfg.DataStreamURL,
		newsStreamURL:        cfg.NewsStreamURL,
		tradingStreamURL:     cfg.TradingStreamURL,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

func newRestClient(baseURL string, cfg Config) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.HTTPTimeout).
		SetHeader(headerKeyID, cfg.APIKey).
		SetHeader(headerSecret, cfg.SecretKey).
		SetHeader("accept", "application/json")
}

// apiError is the error body Alpaca returns on non-2xx responses.
type apiError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("alpaca API error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// responseError builds an apiError from a failed response.
func responseError(resp *resty.Response) error {
	apiErr, ok := resp.Error().(*apiError)
	if !ok || apiErr == nil {
		apiErr = &apiError{Message: resp.String()}
	}
	apiErr.StatusCode = resp.StatusCode()
	return apiErr
}

// handleError translates Alpaca API and transport errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		fields["statusCode"] = apiErr.StatusCode
		fields["apiErrorCode"] = apiErr.Code

		var mappedErr error
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			mappedErr = ports.ErrAuthenticationFailed
		case apiErr.StatusCode == http.StatusForbidden && apiErr.Code == 40310000:
			mappedErr = ports.ErrInsufficientFunds
		case apiErr.StatusCode == http.StatusForbidden:
			mappedErr = ports.ErrAuthenticationFailed
		case apiErr.StatusCode == http.StatusNotFound:
			mappedErr = ports.ErrNotFound
		case apiErr.StatusCode == http.StatusUnprocessableEntity, apiErr.StatusCode == http.StatusBadRequest:
			mappedErr = ports.ErrInvalidRequest
		case apiErr.StatusCode == http.StatusTooManyRequests:
			mappedErr = ports.ErrRateLimited
		case apiErr.StatusCode >= 500:
			mappedErr = ports.ErrBrokerUnavailable
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrContextCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with timeout", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed with connection error", operation), fields)
	return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
}
