// Package export writes fetch results to tabular files, one file per symbol and channel.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

// Format is a supported output file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat resolves a format name (case-insensitive).
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q (use csv, json or parquet)", ports.ErrConfigurationError, name)
	}
}

// Extension is the file extension without the dot.
func (f Format) Extension() string { return string(f) }

const fileTimeLayout = "20060102T150405Z"

// FileSink implements ports.ResultSink by writing files under a directory.
type FileSink struct {
	dir    string
	format Format
	logger ports.Logger
}

// NewSink creates a FileSink for the named format rooted at dir.
func NewSink(format, dir string, logger ports.Logger) (*FileSink, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: export directory is required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	return &FileSink{dir: dir, format: f, logger: logger}, nil
}

// Path returns the file a channel of result is written to:
// {dir}/{SYMBOL}/{SYMBOL}_{channel}_{from}_to_{to}.{ext}
func (s *FileSink) Path(result *domain.FetchResult, ch domain.Channel) string {
	name := fmt.Sprintf("%s_%s_%s_to_%s.%s",
		result.Symbol, ch,
		result.Range.Start.UTC().Format(fileTimeLayout),
		result.Range.End.UTC().Format(fileTimeLayout),
		s.format.Extension())
	return filepath.Join(s.dir, result.Symbol, name)
}

// Save writes every non-empty channel of result. Channels without records produce no file.
func (s *FileSink) Save(ctx context.Context, result *domain.FetchResult) error {
	if result == nil {
		return fmt.Errorf("%w: nil fetch result", ports.ErrInvalidRequest)
	}
	if result.Total() == 0 {
		s.logger.Info(ctx, "No records to export", map[string]interface{}{"symbol": result.Symbol})
		return nil
	}
	if err := os.MkdirAll(filepath.Join(s.dir, result.Symbol), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	for _, ch := range domain.AllChannels() {
		if result.Count(ch) == 0 {
			continue
		}
		path := s.Path(result, ch)
		if err := s.writeChannel(path, result, ch); err != nil {
			return fmt.Errorf("failed to write %s for %s: %w", ch, result.Symbol, err)
		}
		s.logger.Info(ctx, "Exported channel", map[string]interface{}{
			"symbol":  result.Symbol,
			"channel": string(ch),
			"records": result.Count(ch),
			"path":    path,
		})
	}
	return nil
}

func (s *FileSink) writeChannel(path string, result *domain.FetchResult, ch domain.Channel) error {
	switch ch {
	case domain.ChannelBars:
		return writeRows(s.format, path, barHeader, BarRows(result.Symbol, result.Bars))
	case domain.ChannelQuotes:
		return writeRows(s.format, path, quoteHeader, QuoteRows(result.Symbol, result.Quotes))
	case domain.ChannelTrades:
		return writeRows(s.format, path, tradeHeader, TradeRows(result.Symbol, result.Trades))
	case domain.ChannelNews:
		return writeRows(s.format, path, newsHeader, NewsRows(result.Symbol, result.News))
	default:
		return fmt.Errorf("%w: %s", ports.ErrUnsupportedChannel, ch)
	}
}
