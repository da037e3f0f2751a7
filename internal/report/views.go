package report

import (
	"sort"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/engine"
	"quantlab/internal/performance"
	"quantlab/internal/risk"
	"quantlab/internal/stats"
	"quantlab/internal/strategy"
)

// PointJSON is one timestamped value.
type PointJSON struct {
	Time  time.Time `json:"time"`
	Value Float     `json:"value"`
}

// SeriesJSON is an indicator or rolling series. Warm-up values are null.
type SeriesJSON struct {
	Name        string      `json:"name"`
	DefinedFrom int         `json:"definedFrom"`
	Points      []PointJSON `json:"points"`
}

// PercentileJSON is one requested percentile.
type PercentileJSON struct {
	P     float64 `json:"p"`
	Value Float   `json:"value"`
}

// SummaryJSON mirrors stats.Summary.
type SummaryJSON struct {
	Count                int              `json:"count"`
	Mean                 Float            `json:"mean"`
	Median               Float            `json:"median"`
	StdDev               Float            `json:"stdDev"`
	Min                  Float            `json:"min"`
	Max                  Float            `json:"max"`
	Percentiles          []PercentileJSON `json:"percentiles"`
	Skewness             Float            `json:"skewness"`
	SkewnessLabel        string           `json:"skewnessLabel,omitempty"`
	Kurtosis             Float            `json:"kurtosis"`
	ExcessKurtosis       Float            `json:"excessKurtosis"`
	KurtosisLabel        string           `json:"kurtosisLabel,omitempty"`
	AnnualizedVolatility Float            `json:"annualizedVolatility"`
}

// TestJSON is one normality test outcome.
type TestJSON struct {
	Name      string `json:"name"`
	Statistic Float  `json:"statistic"`
	PValue    Float  `json:"pValue"`
	Reject    bool   `json:"reject"`
}

// NormalityJSON mirrors stats.NormalityReport.
type NormalityJSON struct {
	N            int        `json:"n"`
	Significance float64    `json:"significance"`
	Tests        []TestJSON `json:"tests"`
}

// RiskJSON mirrors risk.Measures.
type RiskJSON struct {
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
	VaR        Float   `json:"var"`
	CVaR       Float   `json:"cvar"`
}

// AnalysisJSON is the full analysis of one series.
type AnalysisJSON struct {
	Symbol     string                `json:"symbol"`
	Bars       int                   `json:"bars"`
	Start      time.Time             `json:"start"`
	End        time.Time             `json:"end"`
	ReturnKind string                `json:"returnKind"`
	Summary    SummaryJSON           `json:"summary"`
	Normality  NormalityJSON         `json:"normality"`
	Risk       RiskJSON              `json:"risk"`
	Volatility *SeriesJSON           `json:"volatility,omitempty"`
	Indicators map[string]SeriesJSON `json:"indicators,omitempty"`
	Latest     map[string]Float      `json:"latest"`
}

// PerformanceJSON mirrors performance.Report.
type PerformanceJSON struct {
	InitialCapital   Float      `json:"initialCapital"`
	FinalCapital     Float      `json:"finalCapital"`
	Periods          int        `json:"periods"`
	TotalReturn      Float      `json:"totalReturn"`
	AnnualizedReturn Float      `json:"annualizedReturn"`
	Volatility       Float      `json:"volatility"`
	Sharpe           Float      `json:"sharpe"`
	MaxDrawdown      Float      `json:"maxDrawdown"`
	DrawdownPeak     *time.Time `json:"drawdownPeak,omitempty"`
	DrawdownTrough   *time.Time `json:"drawdownTrough,omitempty"`
	Calmar           Float      `json:"calmar"`
	ProfitFactor     Float      `json:"profitFactor"`
	WinRate          Float      `json:"winRate"`
	Trades           int        `json:"trades"`
}

// ComparisonJSON mirrors performance.Comparison.
type ComparisonJSON struct {
	Strategy     PerformanceJSON `json:"strategy"`
	BuyAndHold   PerformanceJSON `json:"buyAndHold"`
	Alpha        Float           `json:"alpha"`
	Outperformed bool            `json:"outperformed"`
}

// TradeJSON mirrors domain.Trade.
type TradeJSON struct {
	Side        string    `json:"side"`
	EntryTime   time.Time `json:"entryTime"`
	ExitTime    time.Time `json:"exitTime"`
	EntryPrice  Float     `json:"entryPrice"`
	ExitPrice   Float     `json:"exitPrice"`
	Bars        int       `json:"bars"`
	GrossReturn Float     `json:"grossReturn"`
	Cost        Float     `json:"cost"`
	Return      Float     `json:"return"`
	ForceClosed bool      `json:"forceClosed,omitempty"`
}

// TransitionJSON is one signal state change.
type TransitionJSON struct {
	Time time.Time `json:"time"`
	From string    `json:"from"`
	To   string    `json:"to"`
}

// ParamsJSON mirrors strategy.Params.
type ParamsJSON struct {
	Fast       int  `json:"fast"`
	Slow       int  `json:"slow"`
	Signal     int  `json:"signal,omitempty"`
	AllowShort bool `json:"allowShort,omitempty"`
}

// BacktestJSON is one completed backtest.
type BacktestJSON struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Strategy    string           `json:"strategy"`
	Params      ParamsJSON       `json:"params"`
	Comparison  ComparisonJSON   `json:"comparison"`
	Transitions []TransitionJSON `json:"transitions"`
	Trades      []TradeJSON      `json:"trades"`
	Open        *TradeJSON       `json:"open,omitempty"`
	RuinedAt    *time.Time       `json:"ruinedAt,omitempty"`
	Equity      []PointJSON      `json:"equity,omitempty"`
}

// SweepPointJSON is one point of a parameter sweep.
type SweepPointJSON struct {
	Params       ParamsJSON `json:"params"`
	Trades       int        `json:"trades"`
	TotalReturn  Float      `json:"totalReturn"`
	Sharpe       Float      `json:"sharpe"`
	MaxDrawdown  Float      `json:"maxDrawdown"`
	Alpha        Float      `json:"alpha"`
	Outperformed bool       `json:"outperformed"`
}

// DiagnosticsJSON carries rolling statistics and QQ plot data.
type DiagnosticsJSON struct {
	Symbol        string     `json:"symbol"`
	Window        int        `json:"window"`
	RollingMean   SeriesJSON `json:"rollingMean"`
	RollingStd    SeriesJSON `json:"rollingStd"`
	RollingMin    SeriesJSON `json:"rollingMin"`
	RollingMax    SeriesJSON `json:"rollingMax"`
	QQTheoretical []Float    `json:"qqTheoretical"`
	QQSample      []Float    `json:"qqSample"`
}

// CorrelationJSON holds correlation and covariance matrices indexed like
// Symbols.
type CorrelationJSON struct {
	Symbols      []string  `json:"symbols"`
	Observations int       `json:"observations"`
	Correlation  [][]Float `json:"correlation"`
	Covariance   [][]Float `json:"covariance"`
}

// Series converts an indicator series.
func Series(s domain.IndicatorSeries) SeriesJSON {
	out := SeriesJSON{Name: s.Name, DefinedFrom: s.DefinedFrom, Points: make([]PointJSON, s.Len())}
	for i := range s.Values {
		out.Points[i] = PointJSON{Time: s.Timestamps[i], Value: Float(s.Values[i])}
	}
	return out
}

// Summary converts a stats.Summary.
func Summary(s stats.Summary) SummaryJSON {
	out := SummaryJSON{
		Count:                s.Count,
		Mean:                 Float(s.Mean),
		Median:               Float(s.Median),
		StdDev:               Float(s.StdDev),
		Min:                  Float(s.Min),
		Max:                  Float(s.Max),
		Skewness:             Float(s.Skewness),
		SkewnessLabel:        s.SkewnessLabel,
		Kurtosis:             Float(s.Kurtosis),
		ExcessKurtosis:       Float(s.ExcessKurtosis),
		KurtosisLabel:        s.KurtosisLabel,
		AnnualizedVolatility: Float(s.AnnualizedVolatility),
	}
	for _, p := range s.Percentiles {
		out.Percentiles = append(out.Percentiles, PercentileJSON{P: p.P, Value: Float(p.Value)})
	}
	return out
}

// Normality converts a stats.NormalityReport.
func Normality(r stats.NormalityReport) NormalityJSON {
	out := NormalityJSON{N: r.N, Significance: r.Significance}
	for _, t := range r.Tests() {
		out.Tests = append(out.Tests, TestJSON{
			Name:      t.Name,
			Statistic: Float(t.Statistic),
			PValue:    Float(t.PValue),
			Reject:    t.Reject,
		})
	}
	return out
}

// Risk converts risk.Measures.
func Risk(m risk.Measures) RiskJSON {
	return RiskJSON{Method: string(m.Method), Confidence: m.Confidence, VaR: Float(m.VaR), CVaR: Float(m.CVaR)}
}

// Analysis converts an engine.Analysis. Full series are included only when
// withSeries is set; the latest defined value of every indicator always is.
func Analysis(a *engine.Analysis, withSeries bool) AnalysisJSON {
	out := AnalysisJSON{
		Symbol:     a.Symbol,
		Bars:       a.Bars,
		Start:      a.Start,
		End:        a.End,
		ReturnKind: string(a.Returns.Kind),
		Summary:    Summary(a.Summary),
		Normality:  Normality(a.Normality),
		Risk:       Risk(a.Risk),
		Latest:     make(map[string]Float, len(a.Indicators)),
	}
	for name, s := range a.Indicators {
		if v, ok := s.At(s.Len() - 1); ok {
			out.Latest[name] = Float(v)
		}
	}
	if withSeries {
		vol := Series(a.Volatility)
		out.Volatility = &vol
		out.Indicators = make(map[string]SeriesJSON, len(a.Indicators))
		for name, s := range a.Indicators {
			out.Indicators[name] = Series(s)
		}
	}
	return out
}

// Performance converts a performance.Report.
func Performance(r performance.Report) PerformanceJSON {
	out := PerformanceJSON{
		InitialCapital:   Float(r.InitialCapital),
		FinalCapital:     Float(r.FinalCapital),
		Periods:          r.Periods,
		TotalReturn:      Float(r.TotalReturn),
		AnnualizedReturn: Float(r.AnnualizedReturn),
		Volatility:       Float(r.Volatility),
		Sharpe:           Float(r.Sharpe),
		MaxDrawdown:      Float(r.MaxDrawdown),
		Calmar:           Float(r.Calmar),
		ProfitFactor:     Float(r.ProfitFactor),
		WinRate:          Float(r.WinRate),
		Trades:           r.Trades,
	}
	if !r.DrawdownPeak.IsZero() {
		peak, trough := r.DrawdownPeak, r.DrawdownTrough
		out.DrawdownPeak, out.DrawdownTrough = &peak, &trough
	}
	return out
}

// Comparison converts a performance.Comparison.
func Comparison(c performance.Comparison) ComparisonJSON {
	return ComparisonJSON{
		Strategy:     Performance(c.Strategy),
		BuyAndHold:   Performance(c.BuyAndHold),
		Alpha:        Float(c.Alpha),
		Outperformed: c.Outperformed,
	}
}

// Trade converts a domain.Trade.
func Trade(t domain.Trade) TradeJSON {
	return TradeJSON{
		Side:        t.Side.String(),
		EntryTime:   t.EntryTime,
		ExitTime:    t.ExitTime,
		EntryPrice:  Float(t.EntryPrice),
		ExitPrice:   Float(t.ExitPrice),
		Bars:        t.Bars(),
		GrossReturn: Float(t.GrossReturn),
		Cost:        Float(t.Cost),
		Return:      Float(t.Return),
		ForceClosed: t.ForceClosed,
	}
}

// Params converts strategy.Params.
func Params(p strategy.Params) ParamsJSON {
	return ParamsJSON{Fast: p.Fast, Slow: p.Slow, Signal: p.Signal, AllowShort: p.AllowShort}
}

// Backtest converts a strategy.Result. The equity curve is included only
// when withEquity is set.
func Backtest(r *strategy.Result, withEquity bool) BacktestJSON {
	out := BacktestJSON{
		ID:          r.ID,
		Symbol:      r.Symbol,
		Strategy:    r.Strategy,
		Params:      Params(r.Params),
		Comparison:  Comparison(r.Comparison),
		Transitions: make([]TransitionJSON, 0, len(r.Signals.Transitions)),
		Trades:      make([]TradeJSON, 0, len(r.Run.Trades)),
	}
	for _, tr := range r.Signals.Transitions {
		out.Transitions = append(out.Transitions, TransitionJSON{Time: tr.Timestamp, From: tr.From.String(), To: tr.To.String()})
	}
	for _, t := range r.Run.Trades {
		out.Trades = append(out.Trades, Trade(t))
	}
	if r.Run.Open != nil {
		open := Trade(*r.Run.Open)
		out.Open = &open
	}
	if r.Run.Ruined {
		at := r.Run.Equity.Timestamps[r.Run.RuinIndex]
		out.RuinedAt = &at
	}
	if withEquity {
		eq := r.Run.Equity
		out.Equity = make([]PointJSON, eq.Len())
		for i := range eq.Values {
			out.Equity[i] = PointJSON{Time: eq.Timestamps[i], Value: Float(eq.Values[i])}
		}
	}
	return out
}

// Sweep converts sweep results, keeping their order.
func Sweep(results []strategy.SweepResult) []SweepPointJSON {
	out := make([]SweepPointJSON, len(results))
	for i, r := range results {
		out[i] = SweepPoint(r)
	}
	return out
}

// SweepPoint converts one sweep result.
func SweepPoint(r strategy.SweepResult) SweepPointJSON {
	return SweepPointJSON{
		Params:       Params(r.Params),
		Trades:       r.Trades,
		TotalReturn:  Float(r.Comparison.Strategy.TotalReturn),
		Sharpe:       Float(r.Comparison.Strategy.Sharpe),
		MaxDrawdown:  Float(r.Comparison.Strategy.MaxDrawdown),
		Alpha:        Float(r.Comparison.Alpha),
		Outperformed: r.Comparison.Outperformed,
	}
}

// Diagnostics converts an engine.Diagnostics.
func Diagnostics(d *engine.Diagnostics) DiagnosticsJSON {
	return DiagnosticsJSON{
		Symbol:        d.Symbol,
		Window:        d.Window,
		RollingMean:   Series(d.Rolling.Mean),
		RollingStd:    Series(d.Rolling.Std),
		RollingMin:    Series(d.Rolling.Min),
		RollingMax:    Series(d.Rolling.Max),
		QQTheoretical: floats(d.QQTheoretical),
		QQSample:      floats(d.QQSample),
	}
}

// Correlation converts an engine.Correlation.
func Correlation(c *engine.Correlation) CorrelationJSON {
	out := CorrelationJSON{
		Symbols:      c.Symbols,
		Observations: c.Observations,
		Correlation:  make([][]Float, len(c.Correlation)),
		Covariance:   make([][]Float, len(c.Covariance)),
	}
	for i := range c.Correlation {
		out.Correlation[i] = floats(c.Correlation[i])
	}
	for i := range c.Covariance {
		out.Covariance[i] = floats(c.Covariance[i])
	}
	return out
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
