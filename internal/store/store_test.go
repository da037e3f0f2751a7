package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quantlab/internal/domain"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// stores returns one fresh instance of every BarStore implementation.
func stores(t *testing.T) map[string]BarStore {
	t.Helper()
	dir := t.TempDir()
	sq, err := NewSQLiteStore(filepath.Join(dir, "bars.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if cerr := sq.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return map[string]BarStore{
		"parquet": NewParquetStore(filepath.Join(dir, "parquet")),
		"sqlite":  sq,
	}
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")
	got := ps.barPath("aapl", "1d", 2024)
	want := filepath.Join("/data", "1d", "AAPL", "2024.parquet")
	if got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestWriteReadBars(t *testing.T) {
	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: day(2023, 12, 29), Open: 193.9, High: 194.4, Low: 191.7, Close: 192.5, Volume: 42e6, TradeCount: 400000, VWAP: 192.9},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Open: 185.0, High: 186.5, Low: 184.0, Close: 185.5, Volume: 50e6, TradeCount: 500000, VWAP: 185.25},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 3), Open: 185.5, High: 187.0, Low: 185.0, Close: 186.0, Volume: 45e6, TradeCount: 450000, VWAP: 185.75},
	}
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.WriteBars(ctx, "1d", bars); err != nil {
				t.Fatalf("WriteBars: %v", err)
			}

			got, err := s.ReadBars(ctx, "AAPL", "1d", day(2023, 1, 1), day(2024, 12, 31))
			if err != nil {
				t.Fatalf("ReadBars: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("ReadBars returned %d bars across years, want 3", len(got))
			}
			if got[0] != bars[0] {
				t.Errorf("first bar = %+v, want %+v", got[0], bars[0])
			}

			got, err = s.ReadBars(ctx, "AAPL", "1d", day(2024, 1, 1), time.Time{})
			if err != nil {
				t.Fatalf("ReadBars open-ended: %v", err)
			}
			if len(got) != 2 || got[1].Close != 186.0 {
				t.Errorf("open-ended ReadBars = %+v, want the two 2024 bars", got)
			}

			other, err := s.ReadBars(ctx, "AAPL", "1h", time.Time{}, time.Time{})
			if err != nil {
				t.Fatalf("ReadBars 1h: %v", err)
			}
			if len(other) != 0 {
				t.Errorf("ReadBars at another interval returned %d bars, want 0", len(other))
			}
		})
	}
}

func TestWriteBarsUpserts(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := []domain.Bar{
				{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 403},
				{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Open: 403, High: 410, Low: 402, Close: 408},
			}
			if err := s.WriteBars(ctx, "1d", first); err != nil {
				t.Fatalf("WriteBars (first): %v", err)
			}
			// Same timestamp replaces, new timestamp merges.
			second := []domain.Bar{
				{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Open: 403, High: 411, Low: 402, Close: 409},
				{Symbol: "MSFT", Timestamp: day(2024, 3, 5), Open: 409, High: 412, Low: 406, Close: 407},
			}
			if err := s.WriteBars(ctx, "1d", second); err != nil {
				t.Fatalf("WriteBars (second): %v", err)
			}

			got, err := s.ReadBars(ctx, "MSFT", "1d", time.Time{}, time.Time{})
			if err != nil {
				t.Fatalf("ReadBars: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("ReadBars returned %d bars after merge, want 3", len(got))
			}
			if got[1].Close != 409 {
				t.Errorf("replaced bar Close = %v, want 409", got[1].Close)
			}
		})
	}
}

func TestListSymbols(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bars := []domain.Bar{
				{Symbol: "GOOGL", Timestamp: day(2024, 1, 2), Close: 140.5},
				{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Close: 185.5},
			}
			if err := s.WriteBars(ctx, "1d", bars); err != nil {
				t.Fatalf("WriteBars: %v", err)
			}
			symbols, err := s.ListSymbols(ctx, "1d")
			if err != nil {
				t.Fatalf("ListSymbols: %v", err)
			}
			if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
				t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
			}
			if empty, _ := s.ListSymbols(ctx, "1wk"); len(empty) != 0 {
				t.Errorf("ListSymbols(1wk) = %v, want none", empty)
			}
		})
	}
}

func TestLoadPriceSeries(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()
	bars := []domain.Bar{
		{Symbol: "SPY", Timestamp: day(2024, 1, 3), Close: 470},
		{Symbol: "SPY", Timestamp: day(2024, 1, 2), Close: 472},
	}
	if err := s.WriteBars(ctx, "1d", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	ps, err := LoadPriceSeries(ctx, s, "SPY", "1d", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("LoadPriceSeries: %v", err)
	}
	if ps.Len() != 2 || ps.Closes()[0] != 472 {
		t.Errorf("series = %v, want closes [472 470]", ps.Closes())
	}

	_, err = LoadPriceSeries(ctx, s, "QQQ", "1d", time.Time{}, time.Time{})
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("missing symbol error = %v, want ErrInsufficientData", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(KindSQLite, dir, filepath.Join(dir, "q.db"))
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(sqlite) = %T, want *SQLiteStore", s)
	}
	s.Close()

	if s, _ := Open("", dir, ""); s == nil {
		t.Error("Open(\"\") returned nil, want a ParquetStore")
	}
	if _, err := Open("csv", dir, ""); err == nil {
		t.Error("Open(csv) succeeded, want error")
	}
}
