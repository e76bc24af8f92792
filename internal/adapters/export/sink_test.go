package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"
)

type mockLogger struct {
	infoMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func sampleResult(t *testing.T) *domain.FetchResult {
	t.Helper()
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	r, err := domain.NewTimeRange(start, start.Add(2*time.Minute))
	require.NoError(t, err)

	result := domain.NewFetchResult("AAPL", r)
	result.Bars = []domain.Bar{
		{Timestamp: start, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100, TradeCount: 3, VWAP: 1.25},
		{Timestamp: start.Add(time.Minute), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 50, TradeCount: 2, VWAP: 1.75},
	}
	result.Trades = []domain.Trade{
		{Timestamp: start.Add(1500 * time.Millisecond), ID: 9, Price: 1.5, Size: 10, Exchange: "V", Conditions: []string{"@", "I"}, Tape: "C"},
	}
	return result
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" Parquet ")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)

	_, err = ParseFormat("xlsx")
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestFileSink_CSV(t *testing.T) {
	dir := t.TempDir()
	logger := &mockLogger{}
	sink, err := NewSink("csv", dir, logger)
	require.NoError(t, err)

	result := sampleResult(t)
	require.NoError(t, sink.Save(context.Background(), result))

	barsPath := sink.Path(result, domain.ChannelBars)
	assert.Equal(t, filepath.Join(dir, "AAPL", "AAPL_bars_20240102T100000Z_to_20240102T100200Z.csv"), barsPath)

	f, err := os.Open(barsPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, barHeader, records[0])
	assert.Equal(t, []string{"AAPL", "2024-01-02T10:00:00Z", "1", "2", "0.5", "1.5", "100", "3", "1.25"}, records[1])

	tradesPath := sink.Path(result, domain.ChannelTrades)
	data, err := os.ReadFile(tradesPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2024-01-02T10:00:01.5Z,9,1.5,10,V,@|I,C")

	// empty channels produce no file
	_, err = os.Stat(sink.Path(result, domain.ChannelQuotes))
	assert.True(t, os.IsNotExist(err))
	assert.Len(t, logger.infoMsgs, 2)
}

func TestFileSink_JSON(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink("json", dir, &mockLogger{})
	require.NoError(t, err)

	result := sampleResult(t)
	require.NoError(t, sink.Save(context.Background(), result))

	data, err := os.ReadFile(sink.Path(result, domain.ChannelBars))
	require.NoError(t, err)
	var rows []BarRow
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, result.Bars[1].Timestamp.UnixNano(), rows[1].Timestamp)
	assert.Equal(t, 2.0, rows[1].Close)
}

func TestFileSink_Parquet(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink("parquet", dir, &mockLogger{})
	require.NoError(t, err)

	result := sampleResult(t)
	require.NoError(t, sink.Save(context.Background(), result))

	rows, err := parquet.ReadFile[TradeRow](sink.Path(result, domain.ChannelTrades))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(9), rows[0].ID)
	assert.Equal(t, "@|I", rows[0].Conditions)
}

func TestFileSink_EmptyResult(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink("csv", dir, &mockLogger{})
	require.NoError(t, err)

	result := domain.NewFetchResult("MSFT", domain.TimeRange{})
	require.NoError(t, sink.Save(context.Background(), result))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, sink.Save(context.Background(), nil), ports.ErrInvalidRequest)
}
