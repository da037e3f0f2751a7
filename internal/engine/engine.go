// Package engine is the facade the CLI and the servers call: it loads price
// series from the bar store and runs the analytics and backtesting core
// over them.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quantlab/internal/backtest"
	"quantlab/internal/config"
	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/performance"
	"quantlab/internal/returns"
	"quantlab/internal/risk"
	"quantlab/internal/stats"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
	"quantlab/internal/strategy/builtins"
	"quantlab/internal/util"
)

// Options parameterizes Analyze.
type Options struct {
	ReturnKind    domain.ReturnKind
	Stats         stats.Options
	Significance  float64
	Confidence    float64
	VaRMethod     risk.Method
	RollingWindow int
	Indicators    indicator.Params

	// Defaults fill Request fields a caller leaves zero.
	Interval    string
	Strategy    string
	Params      strategy.Params
	Backtest    backtest.Options
	Performance performance.Options
}

// OptionsFromConfig derives Options from a validated Config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReturnKind:    domain.ReturnKind(cfg.Analytics.ReturnKind),
		Stats:         cfg.StatsOptions(),
		Significance:  cfg.Analytics.Significance,
		Confidence:    cfg.Analytics.Confidence,
		VaRMethod:     risk.Method(cfg.Analytics.VaRMethod),
		RollingWindow: cfg.Analytics.RollingWindow,
		Indicators:    cfg.Indicators,
		Interval:      cfg.Analytics.Interval,
		Strategy:      cfg.Backtest.Strategy,
		Params:        cfg.StrategyParams(),
		Backtest:      cfg.BacktestOptions(),
		Performance:   cfg.PerformanceOptions(),
	}
}

// Open builds an Engine from cfg: it opens the configured bar store and
// registers the built-in strategies. The caller closes the engine.
func Open(cfg *config.Config, log *slog.Logger) (*Engine, error) {
	s, err := store.Open(cfg.Storage.Kind, cfg.Storage.DataDir, cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Kind, err)
	}
	return New(s, builtins.NewRegistry(), OptionsFromConfig(cfg), log), nil
}

// Analysis is the full statistical picture of one price series.
type Analysis struct {
	Symbol     string
	Bars       int
	Start, End time.Time
	Returns    domain.ReturnSeries
	Cumulative domain.ReturnSeries
	Summary    stats.Summary
	Normality  stats.NormalityReport
	Risk       risk.Measures
	Volatility domain.IndicatorSeries
	Indicators indicator.Set
}

// Engine orchestrates loading and analysis. It holds no per-call state and
// is safe for concurrent use.
type Engine struct {
	store      store.BarStore
	registry   *strategy.Registry
	backtester *strategy.Backtester
	opts       Options
	log        *slog.Logger
}

// New creates an Engine wired with the given dependencies.
func New(s store.BarStore, registry *strategy.Registry, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:      s,
		registry:   registry,
		backtester: strategy.NewBacktester(s, registry, log),
		opts:       opts,
		log:        log,
	}
}

// Options returns the analysis options the engine was built with.
func (e *Engine) Options() Options { return e.opts }

// Close releases the bar store.
func (e *Engine) Close() error { return e.store.Close() }

// Request returns a backtest request for symbol populated with the
// configured defaults.
func (e *Engine) Request(symbol string) strategy.Request {
	return strategy.Request{
		Strategy:    e.opts.Strategy,
		Params:      e.opts.Params,
		Symbol:      symbol,
		Interval:    e.opts.Interval,
		Backtest:    e.opts.Backtest,
		Performance: e.opts.Performance,
	}
}

// Analyze loads symbol at interval within [start, end] and analyzes it.
// An empty interval selects the configured one.
func (e *Engine) Analyze(ctx context.Context, symbol, interval string, start, end time.Time) (*Analysis, error) {
	interval, opts, err := e.resolve(interval)
	if err != nil {
		return nil, err
	}
	prices, err := store.LoadPriceSeries(ctx, e.store, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	return e.analyze(ctx, prices, opts)
}

// AnalyzeSeries computes returns, descriptive statistics, normality tests,
// VaR/CVaR, rolling volatility and the configured indicator set. It fails
// as a whole if any component fails.
func (e *Engine) AnalyzeSeries(ctx context.Context, prices domain.PriceSeries) (*Analysis, error) {
	return e.analyze(ctx, prices, e.opts)
}

func (e *Engine) analyze(ctx context.Context, prices domain.PriceSeries, opts Options) (*Analysis, error) {
	began := time.Now()
	a := &Analysis{Symbol: prices.Symbol(), Bars: prices.Len()}
	if prices.Len() > 0 {
		a.Start = prices.Bar(0).Timestamp
		a.End = prices.Bar(prices.Len() - 1).Timestamp
	}

	var err error
	if a.Returns, err = returns.Compute(prices, opts.ReturnKind); err != nil {
		return nil, wrap("returns", prices, err)
	}
	a.Cumulative = returns.Cumulative(a.Returns)
	if a.Summary, err = stats.Summarize(a.Returns, opts.Stats); err != nil {
		return nil, wrap("statistics", prices, err)
	}
	if a.Normality, err = stats.TestNormality(a.Returns, opts.Significance); err != nil {
		return nil, wrap("normality", prices, err)
	}
	if a.Risk, err = risk.Compute(a.Returns, opts.Confidence, opts.VaRMethod); err != nil {
		return nil, wrap("risk", prices, err)
	}
	if a.Volatility, err = returns.RollingVolatility(a.Returns, opts.RollingWindow, opts.Stats.PeriodsPerYear); err != nil {
		return nil, wrap("volatility", prices, err)
	}
	if a.Indicators, err = indicator.ComputeAll(ctx, prices, opts.Indicators); err != nil {
		return nil, err
	}

	e.log.Debug("analysis complete",
		"symbol", a.Symbol,
		"bars", a.Bars,
		"indicators", len(a.Indicators),
		"elapsed", time.Since(began),
	)
	return a, nil
}

// Indicators loads symbol and computes only the configured indicator set.
func (e *Engine) Indicators(ctx context.Context, symbol, interval string, start, end time.Time) (indicator.Set, error) {
	if interval == "" {
		interval = e.opts.Interval
	}
	prices, err := store.LoadPriceSeries(ctx, e.store, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	return indicator.ComputeAll(ctx, prices, e.opts.Indicators)
}

// Diagnostics holds the rolling statistics and QQ plot data of one
// symbol's returns.
type Diagnostics struct {
	Symbol        string
	Window        int
	Rolling       stats.RollingStats
	QQTheoretical []float64
	QQSample      []float64
}

// Diagnose loads symbol and computes rolling mean/std/min/max over the
// configured window together with normal QQ data.
func (e *Engine) Diagnose(ctx context.Context, symbol, interval string, start, end time.Time) (*Diagnostics, error) {
	interval, opts, err := e.resolve(interval)
	if err != nil {
		return nil, err
	}
	prices, err := store.LoadPriceSeries(ctx, e.store, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	r, err := returns.Compute(prices, opts.ReturnKind)
	if err != nil {
		return nil, wrap("returns", prices, err)
	}
	d := &Diagnostics{Symbol: prices.Symbol(), Window: opts.RollingWindow}
	if d.Rolling, err = stats.Rolling(r, opts.RollingWindow); err != nil {
		return nil, wrap("rolling statistics", prices, err)
	}
	if d.QQTheoretical, d.QQSample, err = stats.QQ(r); err != nil {
		return nil, wrap("qq", prices, err)
	}
	return d, nil
}

// Correlation is the pairwise dependence of several symbols' returns over
// the timestamps they share.
type Correlation struct {
	Symbols      []string
	Observations int
	Correlation  [][]float64
	Covariance   [][]float64
}

// Correlate loads every symbol, keeps the return timestamps common to all of
// them and computes the correlation and covariance matrices.
func (e *Engine) Correlate(ctx context.Context, symbols []string, interval string, start, end time.Time) (*Correlation, error) {
	const op = "engine.Correlate"
	if len(symbols) < 2 {
		return nil, domain.InvalidParameter(op, "symbols", "need at least 2 symbols, got %d", len(symbols))
	}
	interval, opts, err := e.resolve(interval)
	if err != nil {
		return nil, err
	}

	all := make([]domain.ReturnSeries, len(symbols))
	for i, sym := range symbols {
		prices, err := store.LoadPriceSeries(ctx, e.store, sym, interval, start, end)
		if err != nil {
			return nil, err
		}
		if all[i], err = returns.Compute(prices, opts.ReturnKind); err != nil {
			return nil, wrap("returns", prices, err)
		}
	}
	aligned := intersect(all)

	c := &Correlation{Symbols: symbols, Observations: aligned[0].Len()}
	if c.Correlation, err = stats.Correlation(aligned...); err != nil {
		return nil, fmt.Errorf("correlating %v: %w", symbols, err)
	}
	if c.Covariance, err = stats.Covariance(aligned...); err != nil {
		return nil, fmt.Errorf("covariance of %v: %w", symbols, err)
	}
	return c, nil
}

// intersect drops from every series the points whose timestamp is missing
// from any other series.
func intersect(series []domain.ReturnSeries) []domain.ReturnSeries {
	seen := make(map[int64]int)
	for _, s := range series {
		for _, p := range s.Points {
			seen[p.Timestamp.UnixNano()]++
		}
	}
	out := make([]domain.ReturnSeries, len(series))
	for i, s := range series {
		out[i] = domain.ReturnSeries{Kind: s.Kind}
		for _, p := range s.Points {
			if seen[p.Timestamp.UnixNano()] == len(series) {
				out[i].Points = append(out[i].Points, p)
			}
		}
	}
	return out
}

// Backtest runs one strategy over stored bars.
func (e *Engine) Backtest(ctx context.Context, req strategy.Request) (*strategy.Result, error) {
	return e.backtester.Run(ctx, req)
}

// BacktestSeries runs one strategy over an in-memory series.
func (e *Engine) BacktestSeries(prices domain.PriceSeries, req strategy.Request) (*strategy.Result, error) {
	return e.backtester.RunSeries(prices, req)
}

// Sweep runs a parameter grid concurrently.
func (e *Engine) Sweep(ctx context.Context, req strategy.SweepRequest) ([]strategy.SweepResult, error) {
	return e.backtester.Sweep(ctx, req)
}

// SweepEach runs a parameter grid and hands each point to fn in grid order
// as soon as it is available.
func (e *Engine) SweepEach(ctx context.Context, req strategy.SweepRequest, fn func(strategy.SweepResult) error) error {
	return e.backtester.SweepEach(ctx, req, fn)
}

// Symbols lists the symbols stored at interval.
func (e *Engine) Symbols(ctx context.Context, interval string) ([]string, error) {
	return e.store.ListSymbols(ctx, interval)
}

// Strategies lists the registered strategy names.
func (e *Engine) Strategies() []string { return e.registry.List() }

// resolve substitutes the configured interval for an empty one and, for any
// other interval, rescales the annualization factor.
func (e *Engine) resolve(interval string) (string, Options, error) {
	opts := e.opts
	if interval == "" {
		interval = opts.Interval
	}
	if interval != opts.Interval {
		ppy, err := util.PeriodsPerYear(interval)
		if err != nil {
			return "", Options{}, err
		}
		opts.Stats.PeriodsPerYear = ppy
	}
	return interval, opts, nil
}

func wrap(stage string, prices domain.PriceSeries, err error) error {
	return fmt.Errorf("%s for %s: %w", stage, prices.Symbol(), err)
}
