package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the data collaborators from concrete storage
// implementations (SQLite, Redis).

// BarReader reads cached bars for one symbol and interval.
type BarReader interface {
	// ReadBars returns bars with TS strictly after afterTS, ordered by time.
	// limit <= 0 means no limit; otherwise the newest limit bars are returned.
	ReadBars(ctx context.Context, symbol, interval string, afterTS time.Time, limit int) ([]Bar, error)

	// LastTimestamp returns the newest cached bar time, or the zero time.
	LastTimestamp(ctx context.Context, symbol, interval string) (time.Time, error)
}

// BarWriter persists bars, replacing existing rows with the same timestamp.
type BarWriter interface {
	WriteBars(ctx context.Context, symbol, interval string, bars []Bar) error
}

// SignalPublisher fans a live signal out to downstream consumers.
type SignalPublisher interface {
	Publish(ctx context.Context, ev SignalEvent) error
}
