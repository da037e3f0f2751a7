// Package backtest replays a signal series against a price series and
// produces the equity curve and the realized trades.
//
// The signal emitted at bar t is applied to the return from t to t+1, so a
// decision never uses the close it is paid on. Transaction costs are a fixed
// fraction of traded notional, charged only on bars where the position
// changes.
package backtest

import (
	"math"
	"time"

	"quantlab/internal/domain"
)

// OpenPositionPolicy decides what happens to a position still open on the
// last bar.
type OpenPositionPolicy string

const (
	// ForceClose exits at the last close, charges the exit cost on the last
	// period and records the trade with ForceClosed set.
	ForceClose OpenPositionPolicy = "force-close"
	// Exclude leaves the position marked to market in the equity curve and
	// keeps it out of the realized trades.
	Exclude OpenPositionPolicy = "exclude"
)

// ParsePolicy maps a configuration string to a policy. The empty string
// selects ForceClose.
func ParsePolicy(s string) (OpenPositionPolicy, error) {
	switch OpenPositionPolicy(s) {
	case "", ForceClose:
		return ForceClose, nil
	case Exclude:
		return Exclude, nil
	}
	return "", domain.InvalidParameter("backtest.ParsePolicy", "open_position", "unknown policy %q", s)
}

// Options parameterizes a run.
type Options struct {
	InitialCapital float64            `yaml:"initial_capital"`
	Cost           float64            `yaml:"transaction_cost"`
	OpenPosition   OpenPositionPolicy `yaml:"open_position"`
}

// DefaultOptions returns 1000 of capital, a 0.1% cost and force-close.
func DefaultOptions() Options {
	return Options{InitialCapital: 1000, Cost: 0.001, OpenPosition: ForceClose}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	const op = "backtest.Options"
	if !(o.InitialCapital > 0) || math.IsInf(o.InitialCapital, 0) {
		return domain.InvalidParameter(op, "initial_capital", "must be > 0, got %v", o.InitialCapital)
	}
	if !(o.Cost >= 0 && o.Cost < 1) {
		return domain.InvalidParameter(op, "transaction_cost", "must be in [0,1), got %v", o.Cost)
	}
	if _, err := ParsePolicy(string(o.OpenPosition)); err != nil {
		return err
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	Equity domain.EquityCurve
	// Positions[t] is the exposure held over the period ending at bar t.
	// Positions[0] is always Flat.
	Positions []domain.Position
	// Returns[t] is the net return of period t after costs; Returns[0] is 0.
	Returns []float64
	Trades  []domain.Trade
	// Open is the position left open under the Exclude policy, marked at
	// the last close. It is nil otherwise.
	Open *domain.Trade
	// Ruined reports that equity reached zero at RuinIndex. The position
	// was liquidated there and equity stays at zero for the rest of the run.
	Ruined    bool
	RuinIndex int
}

// Run simulates signals over prices. Prices and signals must share
// identical timestamps. Signals before signals.DefinedFrom are treated as
// Flat. A signal change on the last bar has no period left to act on and is
// ignored.
func Run(prices domain.PriceSeries, signals domain.SignalSeries, opts Options) (Result, error) {
	const op = "backtest.Run"
	if opts.OpenPosition == "" {
		opts.OpenPosition = ForceClose
	}
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	n := prices.Len()
	if n < 2 {
		return Result{}, domain.InsufficientData(op, "prices", "need at least 2 bars, got %d", n)
	}
	ts := prices.Timestamps()
	if !domain.SameTimestamps(ts, signals.Timestamps) || len(signals.Positions) != n {
		return Result{}, domain.InvalidParameter(op, "signals",
			"signals (%d) are not aligned with prices (%d) on identical timestamps", len(signals.Positions), n)
	}
	c := prices.Closes()
	for i, p := range c {
		if !(p > 0) {
			return Result{}, domain.InvalidPrice(op, "close", "non-positive close %v at index %d", p, i)
		}
	}
	for i, p := range signals.Positions {
		if p != domain.Flat && p != domain.Long && p != domain.Short {
			return Result{}, domain.InvalidParameter(op, "signals", "invalid position %d at index %d", p, i)
		}
	}

	res := Result{
		Equity:    domain.EquityCurve{Timestamps: ts, Values: make([]float64, n)},
		Positions: make([]domain.Position, n),
		Returns:   make([]float64, n),
	}
	for t := 1; t < n; t++ {
		if k := t - 1; k >= signals.DefinedFrom {
			res.Positions[t] = signals.Positions[k]
		}
	}

	last := n - 1
	forceClose := opts.OpenPosition == ForceClose && res.Positions[last] != domain.Flat
	res.Equity.Values[0] = opts.InitialCapital
	for t := 1; t < n; t++ {
		pos := float64(res.Positions[t])
		turnover := math.Abs(pos - float64(res.Positions[t-1]))
		if t == last && forceClose {
			turnover += math.Abs(pos)
		}
		r := pos*(c[t]/c[t-1]-1) - opts.Cost*turnover
		res.Returns[t] = r
		res.Equity.Values[t] = res.Equity.Values[t-1] * (1 + r)
		if res.Equity.Values[t] <= 0 {
			ruin(&res, t)
			break
		}
	}

	res.Trades, res.Open = trades(ts, c, res.Positions, opts)
	if res.Ruined {
		if res.Open != nil {
			tr := *res.Open
			tr.Cost = 2 * opts.Cost
			tr.Return = tr.GrossReturn - tr.Cost
			res.Trades = append(res.Trades, tr)
			res.Open = nil
		}
		for i := range res.Trades {
			if res.Trades[i].ExitIndex == res.RuinIndex {
				res.Trades[i].ForceClosed = true
			}
		}
	}
	return res, nil
}

// ruin clamps equity at zero from bar t on and flattens every later
// position. Compounding a negative balance would flip the sign of every
// subsequent return.
func ruin(res *Result, t int) {
	res.Ruined, res.RuinIndex = true, t
	res.Returns[t] = -1
	for u := t; u < len(res.Equity.Values); u++ {
		res.Equity.Values[u] = 0
		if u > t {
			res.Positions[u] = domain.Flat
			res.Returns[u] = 0
		}
	}
}

// trades pairs entries with exits. A position held over (t-1, t] was
// entered at close t-1.
func trades(ts []time.Time, c []float64, pos []domain.Position, opts Options) ([]domain.Trade, *domain.Trade) {
	var out []domain.Trade
	var open *domain.Trade
	closeAt := func(i int, forced bool) {
		open.ExitIndex = i
		open.ExitTime = ts[i]
		open.ExitPrice = c[i]
		open.GrossReturn = float64(open.Side) * (open.ExitPrice - open.EntryPrice) / open.EntryPrice
		open.Cost = 2 * opts.Cost
		open.Return = open.GrossReturn - open.Cost
		open.ForceClosed = forced
	}
	for t := 1; t < len(pos); t++ {
		if pos[t] == pos[t-1] {
			continue
		}
		if open != nil {
			closeAt(t-1, false)
			out = append(out, *open)
			open = nil
		}
		if pos[t] != domain.Flat {
			open = &domain.Trade{Side: pos[t], EntryIndex: t - 1, EntryTime: ts[t-1], EntryPrice: c[t-1]}
		}
	}
	if open == nil {
		return out, nil
	}
	closeAt(len(pos)-1, true)
	if opts.OpenPosition == ForceClose {
		return append(out, *open), nil
	}
	open.ForceClosed = false
	open.Cost = opts.Cost
	open.Return = open.GrossReturn - open.Cost
	return out, open
}

// BuyAndHold runs an always-long signal over prices with the same options,
// entering at the first close.
func BuyAndHold(prices domain.PriceSeries, opts Options) (Result, error) {
	sig := domain.SignalSeries{
		Strategy:   "buy-and-hold",
		Timestamps: prices.Timestamps(),
		Positions:  make([]domain.Position, prices.Len()),
	}
	for i := range sig.Positions {
		sig.Positions[i] = domain.Long
	}
	if len(sig.Positions) > 0 {
		sig.Transitions = []domain.Transition{{Index: 0, Timestamp: sig.Timestamps[0], From: domain.Flat, To: domain.Long}}
	}
	return Run(prices, sig, opts)
}
