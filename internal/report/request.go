package report

import (
	"quantlab/internal/backtest"
	"quantlab/internal/domain"
	"quantlab/internal/strategy"
	"quantlab/internal/util"
)

// BacktestRequestJSON is the wire form of a backtest request. Zero or nil
// fields keep the server's configured defaults.
type BacktestRequestJSON struct {
	Symbol         string   `json:"symbol"`
	Interval       string   `json:"interval,omitempty"`
	Strategy       string   `json:"strategy,omitempty"`
	Fast           int      `json:"fast,omitempty"`
	Slow           int      `json:"slow,omitempty"`
	Signal         int      `json:"signal,omitempty"`
	AllowShort     *bool    `json:"allowShort,omitempty"`
	Start          string   `json:"start,omitempty"`
	End            string   `json:"end,omitempty"`
	InitialCapital *float64 `json:"initialCapital,omitempty"`
	Cost           *float64 `json:"cost,omitempty"`
	RiskFreeRate   *float64 `json:"riskFreeRate,omitempty"`
	OpenPosition   string   `json:"openPosition,omitempty"`
	Equity         bool     `json:"equity,omitempty"`
}

// SweepRequestJSON is the wire form of a parameter sweep.
type SweepRequestJSON struct {
	BacktestRequestJSON
	FastGrid    []int `json:"fastGrid"`
	SlowGrid    []int `json:"slowGrid"`
	Concurrency int   `json:"concurrency,omitempty"`
}

// Apply overlays the request onto base, which carries the defaults.
func (r BacktestRequestJSON) Apply(base strategy.Request) (strategy.Request, error) {
	const op = "report.Apply"
	req := base
	if r.Symbol == "" {
		return req, domain.InvalidParameter(op, "symbol", "is required")
	}
	req.Symbol = r.Symbol
	if r.Interval != "" && r.Interval != base.Interval {
		ppy, err := util.PeriodsPerYear(r.Interval)
		if err != nil {
			return req, err
		}
		req.Interval = r.Interval
		req.Performance.PeriodsPerYear = ppy
	}
	if r.Strategy != "" && r.Strategy != base.Strategy {
		// Periods configured for another strategy do not carry over.
		req.Strategy = r.Strategy
		req.Params = strategy.Params{AllowShort: base.Params.AllowShort}
	}
	if r.Fast != 0 {
		req.Params.Fast = r.Fast
	}
	if r.Slow != 0 {
		req.Params.Slow = r.Slow
	}
	if r.Signal != 0 {
		req.Params.Signal = r.Signal
	}
	if r.AllowShort != nil {
		req.Params.AllowShort = *r.AllowShort
	}

	var err error
	if req.Start, err = util.ParseDate(r.Start); err != nil {
		return req, err
	}
	if req.End, err = util.ParseDate(r.End); err != nil {
		return req, err
	}
	if !req.End.IsZero() && req.End.Before(req.Start) {
		return req, domain.InvalidParameter(op, "end", "%s precedes start %s", r.End, r.Start)
	}

	if r.InitialCapital != nil {
		req.Backtest.InitialCapital = *r.InitialCapital
	}
	if r.Cost != nil {
		req.Backtest.Cost = *r.Cost
	}
	if r.RiskFreeRate != nil {
		req.Performance.RiskFreeRate = *r.RiskFreeRate
	}
	if r.OpenPosition != "" {
		if req.Backtest.OpenPosition, err = backtest.ParsePolicy(r.OpenPosition); err != nil {
			return req, err
		}
	}
	return req, req.Backtest.Validate()
}

// Apply builds a strategy.SweepRequest over base.
func (r SweepRequestJSON) Apply(base strategy.Request) (strategy.SweepRequest, error) {
	req, err := r.BacktestRequestJSON.Apply(base)
	if err != nil {
		return strategy.SweepRequest{}, err
	}
	if len(r.FastGrid) == 0 || len(r.SlowGrid) == 0 {
		return strategy.SweepRequest{}, domain.InvalidParameter("report.Apply", "grid", "fastGrid and slowGrid are required")
	}
	return strategy.SweepRequest{Base: req, Fast: r.FastGrid, Slow: r.SlowGrid, Concurrency: r.Concurrency}, nil
}
