package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps SQLite database
type DB struct {
	db *sql.DB
}

// Trade is one row of the trades table. A trade with status ACTIVE has
// zero-valued sell fields.
type Trade struct {
	ID            int64
	TokenAddress  string
	Platform      string
	BuyPrice      float64 // SOL per token
	AmountBought  float64 // token units
	WalletAccount string
	BuyTxRef      string
	SellPrice     float64
	SellTxRef     string
	Status        string
	PnlPercent    float64
	OpenedAt      int64
	ClosedAt      int64
}

// Signal is one raw detection event.
type Signal struct {
	ID           int64
	TokenAddress string
	Platform     string
	SourceKind   string
	SourceID     string
	Text         string
	Processed    bool
	CreatedAt    int64
}

// Stats aggregates closed-trade outcomes.
type Stats struct {
	TotalTrades   int
	ActiveTrades  int
	ClosedProfit  int
	ClosedLoss    int
	ClosedTimeout int
	Errored       int
	WinRate       float64
	AvgPnlPercent float64
}

// NewDB opens the database, creates missing tables and applies additive
// column migrations.
func NewDB(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	if err := createIndexes(db); err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_address TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT 'native',
		buy_price REAL NOT NULL,
		amount_bought REAL NOT NULL,
		wallet_account TEXT NOT NULL DEFAULT '',
		buy_tx_ref TEXT NOT NULL DEFAULT '',
		sell_price REAL,
		sell_tx_ref TEXT,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		pnl_percent REAL,
		opened_at INTEGER NOT NULL,
		closed_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_address TEXT NOT NULL,
		platform TEXT,
		source_kind TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		processed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	`

	_, err := db.Exec(schema)
	return err
}

// createIndexes runs after migrate: on a pre-migration file the status
// column does not exist until the additive migration adds it.
func createIndexes(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades(opened_at);
	CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at);
	`)
	return err
}

// migrate adds columns that older database files are missing. Only
// additive: no column is ever dropped or rewritten.
func migrate(db *sql.DB) error {
	required := map[string][][2]string{
		"trades": {
			{"platform", "TEXT NOT NULL DEFAULT 'native'"},
			{"wallet_account", "TEXT NOT NULL DEFAULT ''"},
			{"sell_price", "REAL"},
			{"sell_tx_ref", "TEXT"},
			{"status", "TEXT NOT NULL DEFAULT 'ACTIVE'"},
			{"pnl_percent", "REAL"},
			{"closed_at", "INTEGER"},
		},
		"signals": {
			{"platform", "TEXT"},
			{"source_kind", "TEXT NOT NULL DEFAULT ''"},
			{"source_id", "TEXT NOT NULL DEFAULT ''"},
			{"processed", "INTEGER NOT NULL DEFAULT 0"},
		},
	}

	for table, columns := range required {
		existing, err := tableColumns(db, table)
		if err != nil {
			return err
		}
		for _, col := range columns {
			if existing[col[0]] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col[0], col[1])
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migrate %s.%s: %w", table, col[0], err)
			}
			log.Info().Str("table", table).Str("column", col[0]).Msg("schema migration applied")
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// InsertTrade stores a new trade and returns its id.
func (d *DB) InsertTrade(t *Trade) (int64, error) {
	res, err := d.db.Exec(`
		INSERT INTO trades
		(token_address, platform, buy_price, amount_bought, wallet_account, buy_tx_ref, status, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TokenAddress, t.Platform, t.BuyPrice, t.AmountBought, t.WalletAccount, t.BuyTxRef, t.Status, t.OpenedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateTradeClose records the terminal outcome of a trade. An ERROR
// close has no fill, so its sell columns stay NULL rather than
// recording a zero price and pnl.
func (d *DB) UpdateTradeClose(id int64, sellPrice float64, sellTxRef, status string, pnlPercent float64, closedAt int64) error {
	var price, txRef, pnl interface{} = sellPrice, sellTxRef, pnlPercent
	if status == "ERROR" {
		price, txRef, pnl = nil, nil, nil
	}
	_, err := d.db.Exec(`
		UPDATE trades
		SET sell_price = ?, sell_tx_ref = ?, status = ?, pnl_percent = ?, closed_at = ?
		WHERE id = ?`,
		price, txRef, status, pnl, closedAt, id)
	return err
}

const tradeColumns = `id, token_address, platform, buy_price, amount_bought, wallet_account,
	buy_tx_ref, COALESCE(sell_price, 0), COALESCE(sell_tx_ref, ''), status,
	COALESCE(pnl_percent, 0), opened_at, COALESCE(closed_at, 0)`

func scanTrade(scanner interface{ Scan(...interface{}) error }) (*Trade, error) {
	var t Trade
	err := scanner.Scan(&t.ID, &t.TokenAddress, &t.Platform, &t.BuyPrice, &t.AmountBought,
		&t.WalletAccount, &t.BuyTxRef, &t.SellPrice, &t.SellTxRef, &t.Status,
		&t.PnlPercent, &t.OpenedAt, &t.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetActiveTrades returns all trades still marked ACTIVE.
func (d *DB) GetActiveTrades() ([]*Trade, error) {
	rows, err := d.db.Query(
		"SELECT "+tradeColumns+" FROM trades WHERE status = 'ACTIVE' ORDER BY opened_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetActiveTradeByToken returns the ACTIVE trade for one token, or nil.
func (d *DB) GetActiveTradeByToken(tokenAddress string) (*Trade, error) {
	row := d.db.QueryRow(
		"SELECT "+tradeColumns+" FROM trades WHERE status = 'ACTIVE' AND token_address = ?",
		tokenAddress)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetRecentTrades retrieves the most recent trades
func (d *DB) GetRecentTrades(limit int) ([]*Trade, error) {
	rows, err := d.db.Query(
		"SELECT "+tradeColumns+" FROM trades ORDER BY opened_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertSignal logs a raw detection event.
func (d *DB) InsertSignal(s *Signal) (int64, error) {
	processed := 0
	if s.Processed {
		processed = 1
	}
	res, err := d.db.Exec(`
		INSERT INTO signals (token_address, platform, source_kind, source_id, text, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.TokenAddress, s.Platform, s.SourceKind, s.SourceID, s.Text, processed, s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// MarkSignalProcessed flips the processed flag.
func (d *DB) MarkSignalProcessed(id int64) error {
	_, err := d.db.Exec("UPDATE signals SET processed = 1 WHERE id = ?", id)
	return err
}

// GetRecentSignals retrieves the most recent signals
func (d *DB) GetRecentSignals(limit int) ([]*Signal, error) {
	rows, err := d.db.Query(`
		SELECT id, token_address, COALESCE(platform, ''), source_kind, source_id, text, processed, created_at
		FROM signals ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*Signal
	for rows.Next() {
		var s Signal
		var processed int
		if err := rows.Scan(&s.ID, &s.TokenAddress, &s.Platform, &s.SourceKind, &s.SourceID, &s.Text, &processed, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Processed = processed != 0
		signals = append(signals, &s)
	}
	return signals, rows.Err()
}

// GetStats returns aggregate trading stats.
func (d *DB) GetStats() (*Stats, error) {
	var s Stats
	var wins, closed int
	var avgPnl sql.NullFloat64
	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'ACTIVE' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'CLOSED_PROFIT' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'CLOSED_LOSS' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'CLOSED_TIMEOUT' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'ERROR' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status LIKE 'CLOSED_%' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status LIKE 'CLOSED_%' AND pnl_percent > 0 THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN status LIKE 'CLOSED_%' THEN pnl_percent END)
		FROM trades`).Scan(
		&s.TotalTrades, &s.ActiveTrades, &s.ClosedProfit, &s.ClosedLoss,
		&s.ClosedTimeout, &s.Errored, &closed, &wins, &avgPnl)
	if err != nil {
		return nil, err
	}

	if closed > 0 {
		s.WinRate = float64(wins) / float64(closed) * 100
	}
	if avgPnl.Valid {
		s.AvgPnlPercent = avgPnl.Float64
	}
	return &s, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// Now returns current Unix timestamp (helper)
func Now() int64 {
	return time.Now().Unix()
}
