package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trading-backtestv1/internal/model"
)

// Journal persists paper fills to SQLite for later review.
type Journal struct {
	db *sql.DB
}

var _ Recorder = (*Journal)(nil)

// OpenJournal opens (or creates) a journal at dbPath. It can share the file
// with the bar cache.
func OpenJournal(dbPath string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	db.SetMaxOpenConns(1)

	const schema = `
	CREATE TABLE IF NOT EXISTS paper_fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		strategy    TEXT NOT NULL,
		side        TEXT NOT NULL,
		qty         REAL NOT NULL,
		price       REAL NOT NULL,
		fee         REAL NOT NULL,
		slippage    REAL DEFAULT 0,
		bar_ts      INTEGER NOT NULL,
		filled_at   TEXT NOT NULL,
		trace_id    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_paper_fills_symbol ON paper_fills(symbol, bar_ts);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	if logger != nil {
		logger.Info("paper journal opened", "path", dbPath)
	}
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(ctx context.Context, f Fill) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO paper_fills (order_id, symbol, strategy, side, qty, price, fee, slippage, bar_ts, filled_at, trace_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.Symbol, f.Strategy, string(f.Side), f.Qty, f.Price, f.Fee, f.Slippage,
		f.BarTS.UnixMilli(), f.FilledAt.UTC().Format(time.RFC3339Nano), f.TraceID,
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Fills returns the last limit fills, newest first.
func (j *Journal) Fills(ctx context.Context, limit int) ([]Fill, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT order_id, symbol, strategy, side, qty, price, fee, slippage, bar_ts, filled_at, COALESCE(trace_id, '')
		 FROM paper_fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var fills []Fill
	for rows.Next() {
		var (
			f        Fill
			side     string
			barTS    int64
			filledAt string
		)
		if err := rows.Scan(&f.OrderID, &f.Symbol, &f.Strategy, &side, &f.Qty, &f.Price, &f.Fee,
			&f.Slippage, &barTS, &filledAt, &f.TraceID); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		f.Side = model.TradeKind(side)
		f.BarTS = time.UnixMilli(barTS).UTC()
		f.FilledAt, _ = time.Parse(time.RFC3339Nano, filledAt)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
