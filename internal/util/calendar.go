package util

import (
	"sort"
	"time"

	"quantlab/internal/domain"
)

// TradingDaysPerYear is the annualization base for daily bars.
const TradingDaysPerYear = 252

// periodsPerYear maps a bar interval to the number of bars in a trading
// year. Intraday intervals assume round-the-clock sessions.
var periodsPerYear = map[string]float64{
	"1m":  TradingDaysPerYear * 24 * 60,
	"5m":  TradingDaysPerYear * 24 * 12,
	"15m": TradingDaysPerYear * 24 * 4,
	"1h":  TradingDaysPerYear * 24,
	"1d":  TradingDaysPerYear,
	"1wk": 52,
	"1mo": 12,
}

// PeriodsPerYear returns the annualization multiplier for interval.
func PeriodsPerYear(interval string) (float64, error) {
	p, ok := periodsPerYear[interval]
	if !ok {
		return 0, domain.InvalidParameter("util.PeriodsPerYear", "interval",
			"unknown interval %q (have %v)", interval, Intervals())
	}
	return p, nil
}

// Intervals lists the supported bar intervals.
func Intervals() []string {
	out := make([]string, 0, len(periodsPerYear))
	for k := range periodsPerYear {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return periodsPerYear[out[i]] > periodsPerYear[out[j]] })
	return out
}

// ParseDate parses "2006-01-02" or RFC 3339 as UTC. An empty string yields
// the zero time, which store reads treat as unbounded.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.InvalidParameter("util.ParseDate", "date",
			"%q is neither YYYY-MM-DD nor RFC 3339", s)
	}
	return t.UTC(), nil
}
