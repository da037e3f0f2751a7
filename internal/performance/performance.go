// Package performance evaluates an equity curve and its trades.
package performance

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"quantlab/internal/domain"
)

// Options carries the annualization multiplier and the annual risk-free
// rate.
type Options struct {
	PeriodsPerYear float64
	RiskFreeRate   float64
}

// DefaultOptions returns a 252-period year and a zero risk-free rate.
func DefaultOptions() Options {
	return Options{PeriodsPerYear: 252}
}

// Report summarizes a run. Metrics that are undefined for the input are
// NaN; ProfitFactor is +Inf when there are winning trades and no losing
// ones.
type Report struct {
	InitialCapital   float64
	FinalCapital     float64
	Periods          int
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64 // annualized
	Sharpe           float64
	MaxDrawdown      float64 // <= 0
	DrawdownPeak     time.Time
	DrawdownTrough   time.Time
	Calmar           float64
	ProfitFactor     float64
	WinRate          float64
	Trades           int
}

// Evaluate computes the Report for curve and trades.
func Evaluate(curve domain.EquityCurve, trades []domain.Trade, opts Options) (Report, error) {
	const op = "performance.Evaluate"
	if !(opts.PeriodsPerYear > 0) {
		return Report{}, domain.InvalidParameter(op, "periodsPerYear", "must be > 0, got %v", opts.PeriodsPerYear)
	}
	if math.IsNaN(opts.RiskFreeRate) || math.IsInf(opts.RiskFreeRate, 0) {
		return Report{}, domain.InvalidParameter(op, "riskFreeRate", "must be finite, got %v", opts.RiskFreeRate)
	}
	if curve.Len() < 2 {
		return Report{}, domain.InsufficientData(op, "equity", "need at least 2 points, got %d", curve.Len())
	}
	if len(curve.Timestamps) != curve.Len() {
		return Report{}, domain.InvalidParameter(op, "equity", "%d timestamps for %d values", len(curve.Timestamps), curve.Len())
	}
	if curve.Initial() == 0 {
		return Report{}, domain.DivisionByZero(op, "equity", "initial equity is zero")
	}

	dd, err := Drawdown(curve)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		InitialCapital: curve.Initial(),
		FinalCapital:   curve.Final(),
		Periods:        curve.Len() - 1,
		MaxDrawdown:    dd.Max,
		DrawdownPeak:   dd.Peak,
		DrawdownTrough: dd.Trough,
		Trades:         len(trades),
	}
	rep.TotalReturn = rep.FinalCapital/rep.InitialCapital - 1
	rep.AnnualizedReturn = annualize(rep.TotalReturn, rep.Periods, opts.PeriodsPerYear)
	rep.Sharpe, rep.Volatility = sharpe(curve.PeriodReturns(), opts)
	rep.Calmar = math.NaN()
	if rep.MaxDrawdown != 0 {
		rep.Calmar = rep.AnnualizedReturn / math.Abs(rep.MaxDrawdown)
	}
	rep.ProfitFactor, rep.WinRate = tradeStats(trades)
	return rep, nil
}

// annualize compounds total over periods to a periodsPerYear year. A total
// loss stays at -1.
func annualize(total float64, periods int, periodsPerYear float64) float64 {
	if 1+total <= 0 {
		return -1
	}
	return math.Pow(1+total, periodsPerYear/float64(periods)) - 1
}

func sharpe(r []float64, opts Options) (ratio, vol float64) {
	if len(r) < 2 {
		return math.NaN(), math.NaN()
	}
	mean, std := stat.MeanStdDev(r, nil)
	scale := math.Sqrt(opts.PeriodsPerYear)
	vol = std * scale
	if std == 0 {
		return math.NaN(), vol
	}
	return (mean - opts.RiskFreeRate/opts.PeriodsPerYear) / std * scale, vol
}

func tradeStats(trades []domain.Trade) (profitFactor, winRate float64) {
	if len(trades) == 0 {
		return math.NaN(), math.NaN()
	}
	var wins, losses float64
	var won int
	for _, t := range trades {
		switch {
		case t.Return > 0:
			wins += t.Return
			won++
		case t.Return < 0:
			losses += t.Return
		}
	}
	winRate = float64(won) / float64(len(trades))
	switch {
	case losses != 0:
		profitFactor = wins / math.Abs(losses)
	case wins > 0:
		profitFactor = math.Inf(1)
	default:
		profitFactor = math.NaN()
	}
	return profitFactor, winRate
}

// DrawdownReport is the drawdown path of an equity curve.
type DrawdownReport struct {
	// Series[t] = (C_t − max_{s<=t} C_s) / max_{s<=t} C_s, always <= 0.
	Series []float64
	Max    float64
	Peak   time.Time
	Trough time.Time
}

// Drawdown computes the drawdown series and its deepest point. When the
// curve never declines Max is 0 and Peak and Trough are zero times.
func Drawdown(curve domain.EquityCurve) (DrawdownReport, error) {
	const op = "performance.Drawdown"
	if curve.Len() == 0 {
		return DrawdownReport{}, domain.InsufficientData(op, "equity", "empty curve")
	}
	rep := DrawdownReport{Series: make([]float64, curve.Len())}
	peak, peakAt := curve.Values[0], 0
	for t, v := range curve.Values {
		if v > peak {
			peak, peakAt = v, t
		}
		if peak <= 0 {
			return DrawdownReport{}, domain.DivisionByZero(op, "equity", "non-positive running maximum at index %d", t)
		}
		dd := (v - peak) / peak
		rep.Series[t] = dd
		if dd < rep.Max {
			rep.Max = dd
			if t < len(curve.Timestamps) {
				rep.Peak = curve.Timestamps[peakAt]
				rep.Trough = curve.Timestamps[t]
			}
		}
	}
	return rep, nil
}

// Comparison sets a strategy next to buy-and-hold over the same bars.
type Comparison struct {
	Strategy   Report
	BuyAndHold Report
	// Alpha is the strategy's total return minus buy-and-hold's.
	Alpha        float64
	Outperformed bool
}

// Compare builds a Comparison from two evaluated reports.
func Compare(strategy, buyAndHold Report) Comparison {
	alpha := strategy.TotalReturn - buyAndHold.TotalReturn
	return Comparison{
		Strategy:     strategy,
		BuyAndHold:   buyAndHold,
		Alpha:        alpha,
		Outperformed: alpha > 0,
	}
}
