package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

func historicalPath(ch domain.Channel) (string, error) {
	switch ch {
	case domain.ChannelBars, domain.ChannelQuotes, domain.ChannelTrades:
		return "/v2/stocks/{symbol}/" + string(ch), nil
	case domain.ChannelNews:
		return "/v1beta1/news", nil
	default:
		return "", fmt.Errorf("%w: %s", ports.ErrUnsupportedChannel, ch)
	}
}

// GetHistorical issues a single historical-data request. Non-2xx responses are
// returned as a page with OK=false so the caller can log and skip the window.
func (c *Client) GetHistorical(ctx context.Context, req ports.HistoricalRequest) (*ports.HistoricalPage, error) {
	op := "GetHistorical"

	path, err := historicalPath(req.Channel)
	if err != nil {
		return nil, err
	}

	r := c.data.R().SetContext(ctx).SetQueryParams(req.Params)
	if req.Channel == domain.ChannelNews {
		r.SetQueryParam("symbols", req.Symbol)
	} else {
		r.SetPathParam("symbol", req.Symbol)
	}

	resp, err := r.Get(path)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	page := &ports.HistoricalPage{
		OK:         resp.IsSuccess(),
		StatusCode: resp.StatusCode(),
		Body:       resp.String(),
	}
	if !page.OK {
		return page, nil
	}

	records, token, err := decodeEnvelope(resp.Body(), string(req.Channel))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	page.Records = records
	page.NextPageToken = token
	return page, nil
}

// decodeEnvelope extracts the named record array and the pagination token
// from a response body. A missing or null array yields no records.
func decodeEnvelope(body []byte, key string) ([]json.RawMessage, string, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", fmt.Errorf("decode response body: %w", err)
	}

	var records []json.RawMessage
	if raw, ok := envelope[key]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, "", fmt.Errorf("decode %s array: %w", key, err)
		}
	}

	var token *string
	if raw, ok := envelope["next_page_token"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &token); err != nil {
			return nil, "", fmt.Errorf("decode next_page_token: %w", err)
		}
	}
	if token == nil {
		return records, "", nil
	}
	return records, *token, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
