package export

import (
	"strconv"
	"strings"
	"time"

	"algoTrader/internal/domain"
)

// Row types are the flat, file-friendly shape of each channel.
// Timestamps are Unix nanoseconds so Parquet and JSON keep full precision.

type BarRow struct {
	Symbol     string  `json:"symbol" parquet:"symbol"`
	Timestamp  int64   `json:"t" parquet:"t"`
	Open       float64 `json:"o" parquet:"o"`
	High       float64 `json:"h" parquet:"h"`
	Low        float64 `json:"l" parquet:"l"`
	Close      float64 `json:"c" parquet:"c"`
	Volume     float64 `json:"v" parquet:"v"`
	TradeCount int64   `json:"n" parquet:"n"`
	VWAP       float64 `json:"vw" parquet:"vw"`
}

type QuoteRow struct {
	Symbol      string  `json:"symbol" parquet:"symbol"`
	Timestamp   int64   `json:"t" parquet:"t"`
	BidPrice    float64 `json:"bp" parquet:"bp"`
	BidSize     float64 `json:"bs" parquet:"bs"`
	BidExchange string  `json:"bx" parquet:"bx"`
	AskPrice    float64 `json:"ap" parquet:"ap"`
	AskSize     float64 `json:"as" parquet:"as"`
	AskExchange string  `json:"ax" parquet:"ax"`
	Conditions  string  `json:"c" parquet:"c,optional"`
	Tape        string  `json:"z" parquet:"z"`
}

type TradeRow struct {
	Symbol     string  `json:"symbol" parquet:"symbol"`
	Timestamp  int64   `json:"t" parquet:"t"`
	ID         int64   `json:"i" parquet:"i"`
	Price      float64 `json:"p" parquet:"p"`
	Size       float64 `json:"s" parquet:"s"`
	Exchange   string  `json:"x" parquet:"x"`
	Conditions string  `json:"c" parquet:"c,optional"`
	Tape       string  `json:"z" parquet:"z"`
}

type NewsRow struct {
	Symbol    string `json:"symbol" parquet:"symbol"`
	ID        int64  `json:"id" parquet:"id"`
	Headline  string `json:"headline" parquet:"headline"`
	Summary   string `json:"summary" parquet:"summary,optional"`
	Content   string `json:"content" parquet:"content,optional"`
	Author    string `json:"author" parquet:"author,optional"`
	Source    string `json:"source" parquet:"source"`
	Symbols   string `json:"symbols" parquet:"symbols"`
	URL       string `json:"url" parquet:"url"`
	Images    string `json:"images" parquet:"images,optional"`
	CreatedAt int64  `json:"created_at" parquet:"created_at"`
	UpdatedAt int64  `json:"updated_at" parquet:"updated_at"`
}

var (
	barHeader   = []string{"symbol", "timestamp", "open", "high", "low", "close", "volume", "trade_count", "vwap"}
	quoteHeader = []string{"symbol", "timestamp", "bid_price", "bid_size", "bid_exchange", "ask_price", "ask_size", "ask_exchange", "conditions", "tape"}
	tradeHeader = []string{"symbol", "timestamp", "id", "price", "size", "exchange", "conditions", "tape"}
	newsHeader  = []string{"symbol", "id", "headline", "summary", "content", "author", "source", "symbols", "url", "images", "created_at", "updated_at"}
)

func BarRows(symbol string, bars []domain.Bar) []BarRow {
	rows := make([]BarRow, len(bars))
	for i, b := range bars {
		rows[i] = BarRow{
			Symbol: symbol, Timestamp: b.Timestamp.UnixNano(),
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: b.Volume, TradeCount: int64(b.TradeCount), VWAP: b.VWAP,
		}
	}
	return rows
}

func QuoteRows(symbol string, quotes []domain.Quote) []QuoteRow {
	rows := make([]QuoteRow, len(quotes))
	for i, q := range quotes {
		rows[i] = QuoteRow{
			Symbol: symbol, Timestamp: q.Timestamp.UnixNano(),
			BidPrice: q.BidPrice, BidSize: q.BidSize, BidExchange: q.BidExchange,
			AskPrice: q.AskPrice, AskSize: q.AskSize, AskExchange: q.AskExchange,
			Conditions: strings.Join(q.Conditions, "|"), Tape: q.Tape,
		}
	}
	return rows
}

func TradeRows(symbol string, trades []domain.Trade) []TradeRow {
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = TradeRow{
			Symbol: symbol, Timestamp: t.Timestamp.UnixNano(), ID: t.ID,
			Price: t.Price, Size: t.Size, Exchange: t.Exchange,
			Conditions: strings.Join(t.Conditions, "|"), Tape: t.Tape,
		}
	}
	return rows
}

func NewsRows(symbol string, news []domain.NewsItem) []NewsRow {
	rows := make([]NewsRow, len(news))
	for i, n := range news {
		images := make([]string, len(n.Images))
		for j, img := range n.Images {
			images[j] = img.URL
		}
		rows[i] = NewsRow{
			Symbol: symbol, ID: n.ID, Headline: n.Headline, Summary: n.Summary,
			Content: n.Content, Author: n.Author, Source: n.Source,
			Symbols: strings.Join(n.Symbols, ","), URL: n.URL, Images: strings.Join(images, "|"),
			CreatedAt: n.CreatedAt.UnixNano(), UpdatedAt: n.UpdatedAt.UnixNano(),
		}
	}
	return rows
}

func (r BarRow) csvRecord() []string {
	return []string{
		r.Symbol, formatNanos(r.Timestamp),
		formatFloat(r.Open), formatFloat(r.High), formatFloat(r.Low), formatFloat(r.Close),
		formatFloat(r.Volume), strconv.FormatInt(r.TradeCount, 10), formatFloat(r.VWAP),
	}
}

func (r QuoteRow) csvRecord() []string {
	return []string{
		r.Symbol, formatNanos(r.Timestamp),
		formatFloat(r.BidPrice), formatFloat(r.BidSize), r.BidExchange,
		formatFloat(r.AskPrice), formatFloat(r.AskSize), r.AskExchange,
		r.Conditions, r.Tape,
	}
}

func (r TradeRow) csvRecord() []string {
	return []string{
		r.Symbol, formatNanos(r.Timestamp), strconv.FormatInt(r.ID, 10),
		formatFloat(r.Price), formatFloat(r.Size), r.Exchange, r.Conditions, r.Tape,
	}
}

func (r NewsRow) csvRecord() []string {
	return []string{
		r.Symbol, strconv.FormatInt(r.ID, 10), r.Headline, r.Summary, r.Content, r.Author,
		r.Source, r.Symbols, r.URL, r.Images, formatNanos(r.CreatedAt), formatNanos(r.UpdatedAt),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatNanos(ns int64) string {
	return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
}
