package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the trade, target, order, rule and credential
// repositories of package ports using SQLite.
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
		dbPath = "./data/spot_keeper.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers; each repository call is one statement or transaction.
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
	cfg.Logger.Debug(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trading_rules (
		symbol TEXT PRIMARY KEY,
		base_asset TEXT NOT NULL,
		quote_asset TEXT NOT NULL,
		min_amount REAL NOT NULL DEFAULT 0,
		max_amount REAL NOT NULL DEFAULT 0,
		step_size REAL NOT NULL DEFAULT 0,
		min_price REAL NOT NULL DEFAULT 0,
		max_price REAL NOT NULL DEFAULT 0,
		tick_size REAL NOT NULL DEFAULT 0,
		min_order_value REAL NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		amount REAL NOT NULL,
		buy_price REAL NOT NULL,
		stop_loss_percent REAL NOT NULL DEFAULT 0,
		trailing_active INTEGER NOT NULL DEFAULT 0,
		trailing_percent REAL NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		finished_at TIMESTAMP DEFAULT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
		symbol TEXT NOT NULL,
		venue_order_id INTEGER NOT NULL,
		client_order_id TEXT NOT NULL DEFAULT '',
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		orig_qty REAL NOT NULL DEFAULT 0,
		executed_qty REAL NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		stop_price REAL NOT NULL DEFAULT 0,
		trailing INTEGER NOT NULL DEFAULT 0,
		last_tracked_at TIMESTAMP DEFAULT NULL,
		track_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_targets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
		bid REAL NOT NULL,
		amount REAL NOT NULL,
		reached INTEGER NOT NULL DEFAULT 0,
		sell_price REAL NOT NULL DEFAULT 0,
		order_id INTEGER NULL REFERENCES trade_orders(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS exchange_credentials (
		user_id INTEGER PRIMARY KEY,
		api_key TEXT NOT NULL,
		api_secret TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_active ON trades (active);
	CREATE INDEX IF NOT EXISTS idx_trade_orders_trade ON trade_orders (trade_id);
	CREATE INDEX IF NOT EXISTS idx_trade_targets_trade ON trade_targets (trade_id, bid);
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

// --- TradeRepository Implementation ---

const tradeColumns = `id, user_id, symbol, amount, buy_price, stop_loss_percent,
	trailing_active, trailing_percent, active, finished_at, created_at`

// CreateTrade saves a new trade together with its targets and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for trade %s: %w: %w", trade.Symbol, ports.ErrQueryFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}
	const query = `
	INSERT INTO trades (user_id, symbol, amount, buy_price, stop_loss_percent,
	                    trailing_active, trailing_percent, active, finished_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		trade.UserID, trade.Symbol, trade.Amount, trade.BuyPrice, trade.StopLossPercent,
		trade.TrailingActive, trade.TrailingPercent, trade.Active, nullTime(trade.FinishedAt), trade.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}

	const targetQuery = `INSERT INTO trade_targets (trade_id, bid, amount, reached, sell_price, order_id) VALUES (?, ?, ?, ?, ?, ?)`
	for _, tg := range trade.Targets {
		res, err := tx.ExecContext(ctx, targetQuery, id, tg.Bid, tg.Amount, tg.Reached, tg.SellPrice, nullID(tg.OrderID))
		if err != nil {
			return 0, fmt.Errorf("failed to insert target %.8f of trade %d: %w", tg.Bid, id, err)
		}
		if tg.ID, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to get last insert ID for target of trade %d: %w", id, err)
		}
		tg.TradeID = id
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	trade.SortTargets()
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeId": id, "symbol": trade.Symbol, "targets": len(trade.Targets)})
	return id, nil
}

// FindTradeByID loads a trade with its rule, targets and orders. Returns nil, nil if not found.
func (r *Repository) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Trade not found by ID", map[string]interface{}{"tradeId": id})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query trade by ID %d: %w", id, err)
	}
	if err := r.loadChildren(ctx, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

// FindActiveTrades loads every active trade, oldest first.
func (r *Repository) FindActiveTrades(ctx context.Context) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active trades: %w", err)
	}
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan trade during FindActiveTrades: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	rows.Close() // Release the single connection before loading children

	for _, trade := range trades {
		if err := r.loadChildren(ctx, trade); err != nil {
			return nil, err
		}
	}
	return trades, nil
}

// UpdateTrade persists the active flag and finish time of a trade.
func (r *Repository) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `UPDATE trades SET active = ?, finished_at = ?, trailing_active = ?, trailing_percent = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, trade.Active, nullTime(trade.FinishedAt), trade.TrailingActive, trade.TrailingPercent, trade.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade ID %d: %w: %w", trade.ID, ports.ErrUpdateFailed, err)
	}
	if err := expectRow(result, "trade", trade.ID); err != nil {
		return err
	}
	r.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeId": trade.ID, "active": trade.Active})
	return nil
}

func (r *Repository) loadChildren(ctx context.Context, trade *domain.Trade) error {
	rule, err := r.FindRule(ctx, trade.Symbol)
	if err != nil {
		return fmt.Errorf("failed to load rule of trade %d: %w", trade.ID, err)
	}
	trade.Rule = rule

	if trade.Targets, err = r.findTargetsByTrade(ctx, trade.ID); err != nil {
		return err
	}
	if trade.Orders, err = r.FindOrdersByTrade(ctx, trade.ID); err != nil {
		return err
	}
	return nil
}

// --- TargetRepository Implementation ---

func (r *Repository) findTargetsByTrade(ctx context.Context, tradeID int64) ([]*domain.Target, error) {
	const query = `
	SELECT id, trade_id, bid, amount, reached, sell_price, COALESCE(order_id, 0)
	FROM trade_targets WHERE trade_id = ? ORDER BY bid ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets of trade %d: %w", tradeID, err)
	}
	defer rows.Close()

	targets := make([]*domain.Target, 0)
	for rows.Next() {
		tg := &domain.Target{}
		if err := rows.Scan(&tg.ID, &tg.TradeID, &tg.Bid, &tg.Amount, &tg.Reached, &tg.SellPrice, &tg.OrderID); err != nil {
			return nil, fmt.Errorf("failed to scan target of trade %d: %w", tradeID, err)
		}
		targets = append(targets, tg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating target rows: %w", err)
	}
	return targets, nil
}

// UpdateTarget persists the reached flag, sell price and order association of a target.
func (r *Repository) UpdateTarget(ctx context.Context, target *domain.Target) error {
	const query = `UPDATE trade_targets SET reached = ?, sell_price = ?, order_id = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, target.Reached, target.SellPrice, nullID(target.OrderID), target.ID)
	if err != nil {
		return fmt.Errorf("failed to update target ID %d: %w: %w", target.ID, ports.ErrUpdateFailed, err)
	}
	return expectRow(result, "target", target.ID)
}

// DetachOrder clears every target association pointing at the given order.
func (r *Repository) DetachOrder(ctx context.Context, orderID int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE trade_targets SET order_id = NULL WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("failed to detach order ID %d from targets: %w: %w", orderID, ports.ErrUpdateFailed, err)
	}
	return nil
}

// --- CredentialRepository Implementation ---

// FindCredentials returns a user's key pair. Returns nil, nil if not found.
func (r *Repository) FindCredentials(ctx context.Context, userID int64) (*domain.Credentials, error) {
	creds := &domain.Credentials{}
	err := r.db.QueryRowContext(ctx, `SELECT user_id, api_key, api_secret FROM exchange_credentials WHERE user_id = ?`, userID).
		Scan(&creds.UserID, &creds.APIKey, &creds.APISecret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query credentials of user %d: %w", userID, err)
	}
	return creds, nil
}

// SaveCredentials inserts or replaces a user's key pair.
func (r *Repository) SaveCredentials(ctx context.Context, creds *domain.Credentials) error {
	const query = `
	INSERT INTO exchange_credentials (user_id, api_key, api_secret, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET api_key = excluded.api_key, api_secret = excluded.api_secret, updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, query, creds.UserID, creds.APIKey, creds.APISecret, time.Now()); err != nil {
		return fmt.Errorf("failed to save credentials of user %d: %w", creds.UserID, err)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var finishedAt sql.NullTime
	err := s.Scan(
		&t.ID, &t.UserID, &t.Symbol, &t.Amount, &t.BuyPrice, &t.StopLossPercent,
		&t.TrailingActive, &t.TrailingPercent, &t.Active, &finishedAt, &t.CreatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if finishedAt.Valid {
		ft := finishedAt.Time
		t.FinishedAt = &ft
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func expectRow(result sql.Result, entity string, id int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for %s ID %d: %w", entity, id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s ID %d not found for update: %w", entity, id, ports.ErrNotFound)
	}
	return nil
}
