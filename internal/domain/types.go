// Package domain defines the value types shared by the analytics engine:
// price bars and series, return and indicator series, trading signals,
// trades, equity curves and the error kinds every component reports.
package domain

import (
	"math"
	"sort"
	"time"
)

// Bar is a single OHLCV bar.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int64
	VWAP       float64
}

// PriceSeries is an immutable, strictly time-ordered sequence of bars for a
// single instrument. The zero value is an empty series.
type PriceSeries struct {
	symbol string
	bars   []Bar
}

// NewPriceSeries copies bars into a PriceSeries. Timestamps must be strictly
// increasing; duplicates or out-of-order bars are rejected.
func NewPriceSeries(symbol string, bars []Bar) (PriceSeries, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return PriceSeries{}, InvalidParameter("domain.NewPriceSeries", "bars",
				"timestamp %s at index %d does not follow %s",
				bars[i].Timestamp.Format(time.RFC3339), i, bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return PriceSeries{symbol: symbol, bars: cp}, nil
}

// Symbol returns the instrument the series belongs to.
func (p PriceSeries) Symbol() string { return p.symbol }

// Len returns the number of bars.
func (p PriceSeries) Len() int { return len(p.bars) }

// Bar returns the i-th bar.
func (p PriceSeries) Bar(i int) Bar { return p.bars[i] }

// Bars returns a copy of all bars.
func (p PriceSeries) Bars() []Bar {
	out := make([]Bar, len(p.bars))
	copy(out, p.bars)
	return out
}

// Timestamps returns the bar timestamps.
func (p PriceSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(p.bars))
	for i, b := range p.bars {
		out[i] = b.Timestamp
	}
	return out
}

// Closes returns the close prices.
func (p PriceSeries) Closes() []float64 {
	return p.column(func(b Bar) float64 { return b.Close })
}

// Highs returns the high prices.
func (p PriceSeries) Highs() []float64 {
	return p.column(func(b Bar) float64 { return b.High })
}

// Lows returns the low prices.
func (p PriceSeries) Lows() []float64 {
	return p.column(func(b Bar) float64 { return b.Low })
}

func (p PriceSeries) column(f func(Bar) float64) []float64 {
	out := make([]float64, len(p.bars))
	for i, b := range p.bars {
		out[i] = f(b)
	}
	return out
}

// ReturnKind selects the return formula.
type ReturnKind string

const (
	Arithmetic  ReturnKind = "arithmetic"
	Logarithmic ReturnKind = "log"
)

// Point is a timestamped scalar.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// ReturnSeries holds one return per bar after the first.
type ReturnSeries struct {
	Kind   ReturnKind
	Points []Point
}

// Len returns the number of returns.
func (r ReturnSeries) Len() int { return len(r.Points) }

// Values returns the return values in order.
func (r ReturnSeries) Values() []float64 {
	out := make([]float64, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.Value
	}
	return out
}

// Timestamps returns the return timestamps in order.
func (r ReturnSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.Timestamp
	}
	return out
}

// IndicatorSeries is aligned one-to-one with the PriceSeries it was computed
// from. Entries before DefinedFrom are in warm-up and hold NaN; every entry
// at or after DefinedFrom is defined. DefinedFrom equals Len() when no value
// is defined.
type IndicatorSeries struct {
	Name        string
	Timestamps  []time.Time
	Values      []float64
	DefinedFrom int
}

// NewIndicatorSeries allocates a series over timestamps with every value in
// warm-up.
func NewIndicatorSeries(name string, timestamps []time.Time) IndicatorSeries {
	values := make([]float64, len(timestamps))
	for i := range values {
		values[i] = math.NaN()
	}
	ts := make([]time.Time, len(timestamps))
	copy(ts, timestamps)
	return IndicatorSeries{Name: name, Timestamps: ts, Values: values, DefinedFrom: len(values)}
}

// Len returns the number of entries, defined or not.
func (s IndicatorSeries) Len() int { return len(s.Values) }

// At returns the i-th value and whether it is past warm-up.
func (s IndicatorSeries) At(i int) (float64, bool) {
	if i < s.DefinedFrom || i >= len(s.Values) {
		return math.NaN(), false
	}
	return s.Values[i], true
}

// Lookup returns the value at timestamp ts and whether it exists and is
// defined.
func (s IndicatorSeries) Lookup(ts time.Time) (float64, bool) {
	i := sort.Search(len(s.Timestamps), func(i int) bool { return !s.Timestamps[i].Before(ts) })
	if i == len(s.Timestamps) || !s.Timestamps[i].Equal(ts) {
		return math.NaN(), false
	}
	return s.At(i)
}

// Defined returns the values past warm-up.
func (s IndicatorSeries) Defined() []float64 {
	if s.DefinedFrom >= len(s.Values) {
		return nil
	}
	return s.Values[s.DefinedFrom:]
}

// SameTimestamps reports whether a and b hold identical timestamps.
func SameTimestamps(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Position is the exposure held over a period: +1 long, 0 flat, -1 short.
type Position int8

const (
	Flat  Position = 0
	Long  Position = 1
	Short Position = -1
)

func (p Position) String() string {
	switch p {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Transition records a change of signal state.
type Transition struct {
	Index     int
	Timestamp time.Time
	From      Position
	To        Position
}

// SignalSeries is the target position per bar produced by a strategy. A
// signal at index t uses only data through t; the simulator applies it to
// the return of t+1. Entries before DefinedFrom are Flat and were emitted
// while an input indicator was still in warm-up.
type SignalSeries struct {
	Strategy    string
	Timestamps  []time.Time
	Positions   []Position
	DefinedFrom int
	Transitions []Transition
}

// Len returns the number of entries.
func (s SignalSeries) Len() int { return len(s.Positions) }

// Trade is a completed (or force-closed) round trip.
type Trade struct {
	Side        Position
	EntryIndex  int
	ExitIndex   int
	EntryTime   time.Time
	ExitTime    time.Time
	EntryPrice  float64
	ExitPrice   float64
	GrossReturn float64 // side * (exit - entry) / entry
	Cost        float64 // entry leg + exit leg
	Return      float64 // GrossReturn - Cost
	ForceClosed bool
}

// Bars returns the number of bars the trade was held.
func (t Trade) Bars() int { return t.ExitIndex - t.EntryIndex }

// EquityCurve is the portfolio value per bar. Values[0] is the initial
// capital and Values[t] = Values[t-1] * (1 + position return of t).
type EquityCurve struct {
	Timestamps []time.Time
	Values     []float64
}

// Len returns the number of points.
func (c EquityCurve) Len() int { return len(c.Values) }

// Initial returns the first value, or NaN for an empty curve.
func (c EquityCurve) Initial() float64 {
	if len(c.Values) == 0 {
		return math.NaN()
	}
	return c.Values[0]
}

// Final returns the last value, or NaN for an empty curve.
func (c EquityCurve) Final() float64 {
	if len(c.Values) == 0 {
		return math.NaN()
	}
	return c.Values[len(c.Values)-1]
}

// PeriodReturns returns Values[t]/Values[t-1] - 1 for t >= 1. A period
// that starts from zero equity (a ruined run) returns 0.
func (c EquityCurve) PeriodReturns() []float64 {
	if len(c.Values) < 2 {
		return nil
	}
	out := make([]float64, len(c.Values)-1)
	for t := 1; t < len(c.Values); t++ {
		if c.Values[t-1] == 0 {
			continue
		}
		out[t-1] = c.Values[t]/c.Values[t-1] - 1
	}
	return out
}
