package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trading-backtestv1/internal/model"
)

// ReadBars returns bars with ts strictly after afterTS, ascending. With
// limit > 0 only the newest limit bars are returned.
func (s *Store) ReadBars(ctx context.Context, symbol, interval string, afterTS time.Time, limit int) ([]model.Bar, error) {
	after := int64(-1 << 62)
	if !afterTS.IsZero() {
		after = afterTS.UnixMilli()
	}

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT ts, open, high, low, close, volume FROM (
				SELECT ts, open, high, low, close, volume
				FROM bars
				WHERE symbol = ? AND interval = ? AND ts > ?
				ORDER BY ts DESC
				LIMIT ?
			) ORDER BY ts ASC
		`, symbol, interval, after, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT ts, open, high, low, close, volume
			FROM bars
			WHERE symbol = ? AND interval = ? AND ts > ?
			ORDER BY ts ASC
		`, symbol, interval, after)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsMilli int64
		if err := rows.Scan(&tsMilli, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.UnixMilli(tsMilli).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LastTimestamp returns the newest cached bar time, or the zero time when
// nothing is cached.
func (s *Store) LastTimestamp(ctx context.Context, symbol, interval string) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE symbol = ? AND interval = ?`,
		symbol, interval,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite last timestamp: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ts.Int64).UTC(), nil
}
