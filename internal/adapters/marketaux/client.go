package marketaux

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

const defaultBaseURL = "https://api.marketaux.com/v1"

// Client implements ports.NewsSource against the Marketaux REST API.
type Client struct {
	http   *resty.Client
	token  string
	logger ports.Logger
}

// Config holds configuration for the Marketaux client.
type Config struct {
	Token       string
	Logger      ports.Logger
	HTTPTimeout time.Duration
	BaseURL     string // defaults to the public API
}

// New creates a Marketaux client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Marketaux client")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: Marketaux API token is required", ports.ErrConfigurationError)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}

	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.HTTPTimeout).
			SetHeader("accept", "application/json"),
		token:  cfg.Token,
		logger: cfg.Logger,
	}, nil
}

type newsResponse struct {
	Meta struct {
		Found    int `json:"found"`
		Returned int `json:"returned"`
		Limit    int `json:"limit"`
		Page     int `json:"page"`
	} `json:"meta"`
	Data []article `json:"data"`
}

type article struct {
	UUID        string    `json:"uuid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Snippet     string    `json:"snippet"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
	Entities    []struct {
		Symbol string `json:"symbol"`
	} `json:"entities"`
}

type apiError struct {
	StatusCode int `json:"-"`
	Body       struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("marketaux API error (status %d, code %s): %s", e.StatusCode, e.Body.Code, e.Body.Message)
}

// LatestNews returns the most recent articles mentioning any of symbols.
func (c *Client) LatestNews(ctx context.Context, symbols []string) ([]domain.NewsItem, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol is required", ports.ErrInvalidRequest)
	}

	var body newsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("api_token", c.token).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		SetResult(&body).
		SetError(&apiError{}).
		Get("/news/all")
	if err != nil {
		return nil, c.handleError(ctx, err, "LatestNews")
	}
	if resp.IsError() {
		apiErr, ok := resp.Error().(*apiError)
		if !ok || apiErr == nil {
			apiErr = &apiError{}
			apiErr.Body.Message = resp.String()
		}
		apiErr.StatusCode = resp.StatusCode()
		return nil, c.handleError(ctx, apiErr, "LatestNews")
	}

	items := make([]domain.NewsItem, 0, len(body.Data))
	for _, a := range body.Data {
		items = append(items, translateArticle(a))
	}
	c.logger.Debug(ctx, "Fetched Marketaux news", map[string]interface{}{
		"symbols": symbols, "returned": len(items), "found": body.Meta.Found,
	})
	return items, nil
}

func translateArticle(a article) domain.NewsItem {
	item := domain.NewsItem{
		Headline:  a.Title,
		Summary:   a.Description,
		Content:   a.Snippet,
		Source:    a.Source,
		URL:       a.URL,
		CreatedAt: a.PublishedAt.UTC(),
		UpdatedAt: a.PublishedAt.UTC(),
	}
	for _, e := range a.Entities {
		if e.Symbol != "" {
			item.Symbols = append(item.Symbols, e.Symbol)
		}
	}
	if a.ImageURL != "" {
		item.Images = []domain.NewsImage{{Size: "thumb", URL: a.ImageURL}}
	}
	return item
}

// handleError maps Marketaux responses and transport failures onto ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		fields["statusCode"] = apiErr.StatusCode
		fields["apiErrorCode"] = apiErr.Body.Code

		var mappedErr error
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
			mappedErr = ports.ErrAuthenticationFailed
		case apiErr.StatusCode == http.StatusPaymentRequired, apiErr.StatusCode == http.StatusTooManyRequests:
			mappedErr = ports.ErrRateLimited // 402 is the daily quota
		case apiErr.StatusCode == http.StatusBadRequest, apiErr.StatusCode == http.StatusUnprocessableEntity:
			mappedErr = ports.ErrInvalidRequest
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
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed with connection error", operation), fields)
	return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
}
