// Package store persists OHLCV bars and loads them back as price series.
// Bars are keyed by symbol, bar interval and timestamp.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quantlab/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars upserts a batch of bars sampled at interval (e.g. "1d").
	WriteBars(ctx context.Context, interval string, bars []domain.Bar) error

	// ReadBars returns the bars for symbol at interval within [start, end],
	// ordered by timestamp. A zero end means no upper bound.
	ReadBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols stored at interval.
	ListSymbols(ctx context.Context, interval string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Kinds of BarStore accepted by Open.
const (
	KindParquet = "parquet"
	KindSQLite  = "sqlite"
)

// Open returns the BarStore of the given kind. dataDir roots a Parquet
// store; sqlitePath locates a SQLite database.
func Open(kind, dataDir, sqlitePath string) (BarStore, error) {
	switch kind {
	case "", KindParquet:
		return NewParquetStore(dataDir), nil
	case KindSQLite:
		s, err := NewSQLiteStore(sqlitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store kind %q", kind)
}

// LoadPriceSeries reads bars from s and builds a validated PriceSeries.
// Bars sharing a timestamp are rejected rather than merged.
func LoadPriceSeries(ctx context.Context, s BarStore, symbol, interval string, start, end time.Time) (domain.PriceSeries, error) {
	bars, err := s.ReadBars(ctx, symbol, interval, start, end)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("reading %s %s bars: %w", symbol, interval, err)
	}
	if len(bars) == 0 {
		return domain.PriceSeries{}, domain.InsufficientData("store.LoadPriceSeries", "bars",
			"no %s bars stored for %s", interval, symbol)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	ps, err := domain.NewPriceSeries(symbol, bars)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("loading %s: %w", symbol, err)
	}
	return ps, nil
}

// inRange reports whether ts lies in [start, end]; a zero end is unbounded.
func inRange(ts, start, end time.Time) bool {
	if ts.Before(start) {
		return false
	}
	return end.IsZero() || !ts.After(end)
}
