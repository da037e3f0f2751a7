package report

import (
	"fmt"
	"io"
)

const dateLayout = "2006-01-02"

// WriteAnalysis prints a human-readable analysis summary.
func WriteAnalysis(w io.Writer, a AnalysisJSON) error {
	p := &printer{w: w}
	p.printf("%s  %d bars  %s .. %s  (%s returns)\n\n",
		a.Symbol, a.Bars, a.Start.Format(dateLayout), a.End.Format(dateLayout), a.ReturnKind)

	s := a.Summary
	p.printf("Descriptive statistics (n=%d)\n", s.Count)
	p.row("mean", s.Mean)
	p.row("median", s.Median)
	p.row("std dev", s.StdDev)
	p.row("min", s.Min)
	p.row("max", s.Max)
	for _, pc := range s.Percentiles {
		p.row(fmt.Sprintf("p%g", pc.P*100), pc.Value)
	}
	p.printf("  %-22s %s (%s)\n", "skewness", s.Skewness, s.SkewnessLabel)
	p.printf("  %-22s %s (excess %s, %s)\n", "kurtosis", s.Kurtosis, s.ExcessKurtosis, s.KurtosisLabel)
	p.row("annualized vol", s.AnnualizedVolatility)

	p.printf("\nNormality (alpha=%g)\n", a.Normality.Significance)
	for _, t := range a.Normality.Tests {
		verdict := "fail to reject"
		if t.Reject {
			verdict = "reject"
		}
		p.printf("  %-22s stat=%s p=%s  %s\n", t.Name, t.Statistic, t.PValue, verdict)
	}

	p.printf("\nRisk (%s, %g%%)\n", a.Risk.Method, a.Risk.Confidence*100)
	p.row("VaR", a.Risk.VaR)
	p.row("CVaR", a.Risk.CVaR)

	if len(a.Latest) > 0 {
		p.printf("\nIndicators (latest)\n")
		for _, name := range sortedKeys(a.Latest) {
			p.row(name, a.Latest[name])
		}
	}
	return p.err
}

// WriteBacktest prints a strategy-versus-buy-and-hold table and the trades.
func WriteBacktest(w io.Writer, b BacktestJSON) error {
	p := &printer{w: w}
	p.printf("%s  %s fast=%d slow=%d", b.Symbol, b.Strategy, b.Params.Fast, b.Params.Slow)
	if b.Params.Signal > 0 {
		p.printf(" signal=%d", b.Params.Signal)
	}
	if b.Params.AllowShort {
		p.printf(" long/short")
	}
	p.printf("  [%s]\n\n", b.ID)

	s, h := b.Comparison.Strategy, b.Comparison.BuyAndHold
	p.printf("  %-20s %14s %14s\n", "", "strategy", "buy&hold")
	p.pair("final capital", s.FinalCapital, h.FinalCapital)
	p.pair("total return", s.TotalReturn, h.TotalReturn)
	p.pair("annualized return", s.AnnualizedReturn, h.AnnualizedReturn)
	p.pair("volatility", s.Volatility, h.Volatility)
	p.pair("sharpe", s.Sharpe, h.Sharpe)
	p.pair("max drawdown", s.MaxDrawdown, h.MaxDrawdown)
	p.pair("calmar", s.Calmar, h.Calmar)
	p.pair("profit factor", s.ProfitFactor, h.ProfitFactor)
	p.pair("win rate", s.WinRate, h.WinRate)
	p.printf("  %-20s %14d %14d\n", "trades", s.Trades, h.Trades)
	p.printf("\n  alpha %s, outperformed: %t\n", b.Comparison.Alpha, b.Comparison.Outperformed)

	if len(b.Trades) > 0 {
		p.printf("\nTrades\n")
		for _, t := range b.Trades {
			mark := ""
			if t.ForceClosed {
				mark = " (force-closed)"
			}
			p.printf("  %-5s %s -> %s  %s -> %s  return %s%s\n",
				t.Side, t.EntryTime.Format(dateLayout), t.ExitTime.Format(dateLayout),
				t.EntryPrice, t.ExitPrice, t.Return, mark)
		}
	}
	if b.RuinedAt != nil {
		p.printf("\nCapital exhausted on %s; position liquidated, equity held at zero\n", b.RuinedAt.Format(dateLayout))
	}
	if b.Open != nil {
		p.printf("\nOpen %s position since %s (excluded from trade metrics)\n",
			b.Open.Side, b.Open.EntryTime.Format(dateLayout))
	}
	return p.err
}

// WriteSweep prints one line per sweep point.
func WriteSweep(w io.Writer, points []SweepPointJSON) error {
	p := &printer{w: w}
	p.printf("%6s %6s %8s %12s %12s %12s %12s\n", "fast", "slow", "trades", "return", "sharpe", "max dd", "alpha")
	for _, pt := range points {
		p.printf("%6d %6d %8d %12s %12s %12s %12s\n",
			pt.Params.Fast, pt.Params.Slow, pt.Trades, pt.TotalReturn, pt.Sharpe, pt.MaxDrawdown, pt.Alpha)
	}
	return p.err
}

// WriteCorrelation prints the correlation matrix with symbols as row and
// column headers.
func WriteCorrelation(w io.Writer, c CorrelationJSON) error {
	p := &printer{w: w}
	p.printf("correlation over %d observations\n", c.Observations)
	p.printf("%-8s", "")
	for _, s := range c.Symbols {
		p.printf(" %10s", s)
	}
	p.printf("\n")
	for i, row := range c.Correlation {
		p.printf("%-8s", c.Symbols[i])
		for _, v := range row {
			p.printf(" %10s", v)
		}
		p.printf("\n")
	}
	return p.err
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) row(label string, v Float) {
	p.printf("  %-22s %s\n", label, v)
}

func (p *printer) pair(label string, a, b Float) {
	p.printf("  %-20s %14s %14s\n", label, a, b)
}
