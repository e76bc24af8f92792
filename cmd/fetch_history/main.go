package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"algoTrader/config"
	"algoTrader/internal/adapters/export"
	"algoTrader/internal/adapters/logger"
	"algoTrader/internal/adapters/sqlite"
	"algoTrader/internal/broker"
	"algoTrader/internal/domain"
	"algoTrader/internal/fetcher"
	"algoTrader/internal/ports"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339}

// fetchAction loads configuration, lets flags override it and fetches every symbol in turn.
func fetchAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	appLogger, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()

	symbols := cfg.Symbols
	if cmd.IsSet("symbols") {
		symbols = cmd.StringSlice("symbols")
	}
	channels := cfg.FetchChannels
	if cmd.IsSet("channels") {
		if channels, err = domain.ParseChannels(cmd.String("channels")); err != nil {
			return fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
		}
	}
	window := cfg.FetchWindow
	if cmd.IsSet("window") {
		window = cmd.Duration("window")
	}
	delay := cfg.FetchDelay
	if cmd.IsSet("delay") {
		delay = cmd.Duration("delay")
	}
	format := cfg.ExportFormat
	if cmd.IsSet("format") {
		format = strings.ToLower(cmd.String("format"))
	}
	timeframe := cmd.String("timeframe")
	dir := cfg.DataDir
	if cmd.IsSet("dir") {
		dir = cmd.String("dir")
	}
	start, end := cmd.Timestamp("start"), cmd.Timestamp("end")
	if end.IsZero() {
		end = time.Now().UTC().Truncate(time.Minute)
	}

	client, err := broker.New(cfg, appLogger)
	if err != nil {
		return err
	}
	sink, closeSink, err := newSink(format, dir, cfg.DBPath, appLogger)
	if err != nil {
		return err
	}
	defer closeSink()

	var bar *progressbar.ProgressBar
	f, err := fetcher.New(client, appLogger,
		fetcher.WithWindowSize(window),
		fetcher.WithDelay(delay),
		fetcher.WithTimeframe(timeframe),
		fetcher.WithProgress(func(p fetcher.Progress) {
			if bar == nil || p.Done == 1 {
				bar = progressbar.NewOptions(p.Total,
					progressbar.OptionSetDescription(p.Symbol),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(p.Done)
		}),
	)
	if err != nil {
		return err
	}

	for _, symbol := range symbols {
		result, err := f.Fetch(ctx, fetcher.Request{
			Symbol:     symbol,
			Start:      start,
			End:        end,
			WindowSize: window,
			Channels:   channels,
		})
		if err != nil && result == nil {
			return err
		}
		if saveErr := sink.Save(context.WithoutCancel(ctx), result); saveErr != nil {
			return fmt.Errorf("saving %s: %w", symbol, saveErr)
		}
		if err != nil {
			// Interrupted: what was fetched so far is saved.
			return err
		}
		appLogger.Info(ctx, "Saved historical data", map[string]interface{}{
			"symbol":   result.Symbol,
			"records":  result.Total(),
			"failures": len(result.Failures),
			"format":   format,
		})
	}
	return nil
}

// newSink picks the result sink for format; sqlite writes into the application database.
func newSink(format, dir, dbPath string, l ports.Logger) (ports.ResultSink, func(), error) {
	if format == "sqlite" {
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: dbPath, Logger: l})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				l.Error(context.Background(), err, "Error closing database repository")
			}
		}, nil
	}
	sink, err := export.NewSink(format, dir, l)
	if err != nil {
		return nil, nil, err
	}
	return sink, func() {}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "fetch_history",
		Usage: "Download historical bars, quotes, trades and news in fixed windows",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "symbols",
				Aliases: []string{"s"},
				Usage:   "Symbols to fetch (defaults to STOCKS)",
			},
			&cli.TimestampFlag{
				Name:     "start",
				Usage:    "Range start in `YYYY-MM-DD` or RFC3339 format (UTC)",
				Config:   cli.TimestampConfig{Layouts: dateLayouts, Timezone: time.UTC},
				Required: true,
			},
			&cli.TimestampFlag{
				Name:   "end",
				Usage:  "Range end, exclusive. Defaults to now.",
				Config: cli.TimestampConfig{Layouts: dateLayouts, Timezone: time.UTC},
			},
			&cli.DurationFlag{
				Name:    "window",
				Aliases: []string{"w"},
				Usage:   "Window length per request (defaults to FETCH_WINDOW)",
			},
			&cli.StringFlag{
				Name:  "timeframe",
				Value: fetcher.DefaultTimeframe,
				Usage: "Bar aggregation period, e.g. 1Min, 15Min, 1Hour or 1Day",
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Pause after every request (defaults to FETCH_DELAY)",
			},
			&cli.StringFlag{
				Name:    "channels",
				Aliases: []string{"c"},
				Usage:   "Comma-separated channels: bars,quotes,trades,news (defaults to FETCH_CHANNELS)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: csv, json, parquet or sqlite (defaults to EXPORT_FORMAT)",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Output directory for file formats (defaults to DATA_DIR)",
			},
		},
		Action: fetchAction,
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
