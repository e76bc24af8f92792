package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"algoTrader/internal/domain"
	"algoTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.ResultSink, ports.OrderRepository and ports.NewsRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/algo_trader.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("%w: failed to create data directory '%s': %w", ports.ErrDBConnection, filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Single writer; SQLite serialises access anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		trade_count INTEGER NOT NULL,
		vwap REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quotes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		bid_price REAL NOT NULL,
		bid_size REAL NOT NULL,
		bid_exchange TEXT,
		ask_price REAL NOT NULL,
		ask_size REAL NOT NULL,
		ask_exchange TEXT,
		conditions TEXT,
		tape TEXT
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		trade_id INTEGER NOT NULL,
		price REAL NOT NULL,
		size REAL NOT NULL,
		exchange TEXT,
		conditions TEXT,
		tape TEXT
	);

	CREATE TABLE IF NOT EXISTS news (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		news_id INTEGER NOT NULL,
		headline TEXT NOT NULL,
		summary TEXT,
		author TEXT,
		source TEXT,
		url TEXT NOT NULL,
		symbols TEXT,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (symbol, url)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		client_order_id TEXT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		time_in_force TEXT,
		qty TEXT NOT NULL,
		filled_qty TEXT NOT NULL,
		filled_avg_price TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		filled_at TIMESTAMP DEFAULT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bars_symbol_ts ON bars (symbol, ts);
	CREATE INDEX IF NOT EXISTS idx_quotes_symbol_ts ON quotes (symbol, ts);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades (symbol, ts);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol_created ON orders (symbol, created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- ResultSink Implementation ---

// Save stores every record of the result in one transaction.
func (r *Repository) Save(ctx context.Context, result *domain.FetchResult) error {
	if result == nil {
		return fmt.Errorf("%w: nil fetch result", ports.ErrInvalidRequest)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := insertBars(ctx, tx, result.Symbol, result.Bars); err != nil {
		return err
	}
	if err := insertQuotes(ctx, tx, result.Symbol, result.Quotes); err != nil {
		return err
	}
	if err := insertTrades(ctx, tx, result.Symbol, result.Trades); err != nil {
		return err
	}
	if err := insertNews(ctx, tx, result.Symbol, result.News); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit fetch result for %s: %w", ports.ErrUpdateFailed, result.Symbol, err)
	}
	r.logger.Info(ctx, "Fetch result stored", map[string]interface{}{
		"symbol": result.Symbol,
		"bars":   len(result.Bars),
		"quotes": len(result.Quotes),
		"trades": len(result.Trades),
		"news":   len(result.News),
	})
	return nil
}

func insertBars(ctx context.Context, tx *sql.Tx, symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO bars (symbol, ts, open, high, low, close, volume, trade_count, vwap)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare bars insert: %w", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume, int64(b.TradeCount), b.VWAP); err != nil {
			return fmt.Errorf("%w: insert bar for %s: %w", ports.ErrUpdateFailed, symbol, err)
		}
	}
	return nil
}

func insertQuotes(ctx context.Context, tx *sql.Tx, symbol string, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO quotes (symbol, ts, bid_price, bid_size, bid_exchange, ask_price, ask_size, ask_exchange, conditions, tape)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare quotes insert: %w", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.ExecContext(ctx, symbol, q.Timestamp.UTC(), q.BidPrice, q.BidSize, q.BidExchange,
			q.AskPrice, q.AskSize, q.AskExchange, strings.Join(q.Conditions, "|"), q.Tape); err != nil {
			return fmt.Errorf("%w: insert quote for %s: %w", ports.ErrUpdateFailed, symbol, err)
		}
	}
	return nil
}

func insertTrades(ctx context.Context, tx *sql.Tx, symbol string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO trades (symbol, ts, trade_id, price, size, exchange, conditions, tape)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare trades insert: %w", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, symbol, t.Timestamp.UTC(), t.ID, t.Price, t.Size, t.Exchange,
			strings.Join(t.Conditions, "|"), t.Tape); err != nil {
			return fmt.Errorf("%w: insert trade for %s: %w", ports.ErrUpdateFailed, symbol, err)
		}
	}
	return nil
}

// insertNews ignores articles already stored for the same symbol and URL.
func insertNews(ctx context.Context, tx *sql.Tx, symbol string, news []domain.NewsItem) error {
	if len(news) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO news (symbol, news_id, headline, summary, author, source, url, symbols, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare news insert: %w", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, n := range news {
		if _, err := stmt.ExecContext(ctx, symbol, n.ID, n.Headline, n.Summary, n.Author, n.Source, n.URL,
			strings.Join(n.Symbols, ","), n.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("%w: insert news for %s: %w", ports.ErrUpdateFailed, symbol, err)
		}
	}
	return nil
}

// --- NewsRepository Implementation ---

// SaveNews stores articles for symbol, skipping ones already present.
func (r *Repository) SaveNews(ctx context.Context, symbol string, items []domain.NewsItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := insertNews(ctx, tx, symbol, items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit news for %s: %w", ports.ErrUpdateFailed, symbol, err)
	}
	r.logger.Debug(ctx, "News stored", map[string]interface{}{"symbol": symbol, "count": len(items)})
	return nil
}

// --- OrderRepository Implementation ---

// SaveOrder inserts the order or refreshes the stored status and fill details.
func (r *Repository) SaveOrder(ctx context.Context, order *domain.Order) error {
	const query = `
	INSERT INTO orders (id, client_order_id, symbol, side, type, time_in_force, qty, filled_qty,
	                    filled_avg_price, status, created_at, filled_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		filled_qty = excluded.filled_qty,
		filled_avg_price = excluded.filled_avg_price,
		status = excluded.status,
		filled_at = excluded.filled_at,
		updated_at = excluded.updated_at`

	if order.ID == "" {
		return fmt.Errorf("%w: order ID is required", ports.ErrInvalidRequest)
	}
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var filledAt sql.NullTime
	if !order.FilledAt.IsZero() {
		filledAt = sql.NullTime{Time: order.FilledAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.ClientOrderID, order.Symbol, string(order.Side), string(order.Type), string(order.TimeInForce),
		order.Qty.String(), order.FilledQty.String(), order.FilledAvgPrice.String(), string(order.Status),
		createdAt.UTC(), filledAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: failed to save order %s: %w", ports.ErrUpdateFailed, order.ID, err)
	}
	r.logger.Debug(ctx, "Order saved", map[string]interface{}{"orderID": order.ID, "symbol": order.Symbol, "status": string(order.Status)})
	return nil
}

// FindBySymbol retrieves the most recent orders for a given symbol, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Order, error) {
	const query = `
	SELECT id, client_order_id, symbol, side, type, time_in_force, qty, filled_qty,
	       filled_avg_price, status, created_at, filled_at
	FROM orders
	WHERE symbol = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query orders for symbol %s: %w", ports.ErrQueryFailed, symbol, err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan order during FindBySymbol: %w", ports.ErrQueryFailed, err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// CountSince counts orders for symbol created at or after since.
func (r *Repository) CountSince(ctx context.Context, symbol string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM orders WHERE symbol = ? AND created_at >= ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, symbol, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count orders for symbol %s: %w", ports.ErrQueryFailed, symbol, err)
	}
	return count, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanOrder scans a row into a domain.Order struct.
func scanOrder(s scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var side, typ, tif, status, qty, filledQty, avgPrice string
	var clientID sql.NullString
	var filledAt sql.NullTime
	err := s.Scan(&o.ID, &clientID, &o.Symbol, &side, &typ, &tif, &qty, &filledQty, &avgPrice, &status, &o.CreatedAt, &filledAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}

	o.ClientOrderID = clientID.String
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.TimeInForce = domain.TimeInForce(tif)
	o.Status = domain.OrderStatus(status)
	if filledAt.Valid {
		o.FilledAt = filledAt.Time
	}
	if o.Qty, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("invalid qty %q: %w", qty, err)
	}
	if o.FilledQty, err = decimal.NewFromString(filledQty); err != nil {
		return nil, fmt.Errorf("invalid filled_qty %q: %w", filledQty, err)
	}
	if o.FilledAvgPrice, err = decimal.NewFromString(avgPrice); err != nil {
		return nil, fmt.Errorf("invalid filled_avg_price %q: %w", avgPrice, err)
	}
	return o, nil
}
