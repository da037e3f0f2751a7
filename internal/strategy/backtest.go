package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quantlab/internal/backtest"
	"quantlab/internal/domain"
	"quantlab/internal/performance"
	"quantlab/internal/store"
)

// Request describes one backtest over stored bars.
type Request struct {
	Strategy    string
	Params      Params
	Symbol      string
	Interval    string
	Start, End  time.Time
	Backtest    backtest.Options
	Performance performance.Options
}

// Result is a completed backtest with its buy-and-hold benchmark.
type Result struct {
	ID         string
	Symbol     string
	Strategy   string
	Params     Params
	Signals    domain.SignalSeries
	Run        backtest.Result
	BuyAndHold backtest.Result
	Comparison performance.Comparison
}

// Backtester replays historical bar data through a strategy and computes
// performance metrics.
type Backtester struct {
	store    store.BarStore
	registry *Registry
	log      *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from the given store and
// looks up strategies in the provided registry.
func NewBacktester(barStore store.BarStore, registry *Registry, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		store:    barStore,
		registry: registry,
		log:      log,
	}
}

// Run loads req.Symbol from the store and backtests it.
func (bt *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	prices, err := store.LoadPriceSeries(ctx, bt.store, req.Symbol, req.Interval, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	return bt.RunSeries(prices, req)
}

// RunSeries backtests the requested strategy over prices already in
// memory. req.Symbol, Interval, Start and End are ignored.
func (bt *Backtester) RunSeries(prices domain.PriceSeries, req Request) (*Result, error) {
	s, err := bt.registry.New(req.Strategy, req.Params)
	if err != nil {
		return nil, err
	}
	res, err := Evaluate(s, prices, req.Backtest, req.Performance)
	if err != nil {
		return nil, fmt.Errorf("backtesting %s on %s: %w", req.Strategy, prices.Symbol(), err)
	}
	res.Params = req.Params

	bt.log.Info("backtest complete",
		"id", res.ID,
		"symbol", res.Symbol,
		"strategy", res.Strategy,
		"params", req.Params.String(),
		"bars", prices.Len(),
		"trades", len(res.Run.Trades),
		"totalReturn", res.Comparison.Strategy.TotalReturn,
		"alpha", res.Comparison.Alpha,
	)
	return res, nil
}

// Evaluate runs prices through s, the simulator and the evaluator, and the
// same prices through buy-and-hold under identical costs.
func Evaluate(s Strategy, prices domain.PriceSeries, bo backtest.Options, po performance.Options) (*Result, error) {
	sig, err := Signals(s, prices)
	if err != nil {
		return nil, err
	}
	run, err := backtest.Run(prices, sig, bo)
	if err != nil {
		return nil, err
	}
	bh, err := backtest.BuyAndHold(prices, bo)
	if err != nil {
		return nil, err
	}
	strat, err := performance.Evaluate(run.Equity, run.Trades, po)
	if err != nil {
		return nil, err
	}
	bench, err := performance.Evaluate(bh.Equity, bh.Trades, po)
	if err != nil {
		return nil, err
	}
	return &Result{
		ID:         uuid.NewString(),
		Symbol:     prices.Symbol(),
		Strategy:   s.Name(),
		Signals:    sig,
		Run:        run,
		BuyAndHold: bh,
		Comparison: performance.Compare(strat, bench),
	}, nil
}

// SweepRequest runs Base over every (fast, slow) pair with fast < slow.
type SweepRequest struct {
	Base        Request
	Fast        []int
	Slow        []int
	Concurrency int // <= 0 uses GOMAXPROCS
}

// SweepResult is one point of a parameter sweep.
type SweepResult struct {
	Params     Params
	Comparison performance.Comparison
	Trades     int
}

// Sweep loads the series once and backtests every parameter pair
// concurrently. Results keep the grid order: fast-major, slow-minor.
func (bt *Backtester) Sweep(ctx context.Context, req SweepRequest) ([]SweepResult, error) {
	var results []SweepResult
	err := bt.SweepEach(ctx, req, func(r SweepResult) error {
		results = append(results, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SweepEach runs the same grid as Sweep but hands each point to fn as soon
// as it and every point before it in grid order have completed. fn is called
// from the calling goroutine, one point at a time. An error from fn cancels
// the points still running and is returned.
func (bt *Backtester) SweepEach(ctx context.Context, req SweepRequest, fn func(SweepResult) error) error {
	var grid []Params
	for _, f := range req.Fast {
		for _, s := range req.Slow {
			if f >= s {
				continue
			}
			p := req.Base.Params
			p.Fast, p.Slow = f, s
			grid = append(grid, p)
		}
	}
	if len(grid) == 0 {
		return domain.InvalidParameter("strategy.Sweep", "grid", "no pair with fast < slow in %v x %v", req.Fast, req.Slow)
	}

	prices, err := store.LoadPriceSeries(ctx, bt.store, req.Base.Symbol, req.Base.Interval, req.Base.Start, req.Base.End)
	if err != nil {
		return err
	}

	limit := req.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	results := make([]SweepResult, len(grid))
	ready := make([]chan struct{}, len(grid))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, wctx := errgroup.WithContext(gctx)
		w.SetLimit(limit)
		for i, p := range grid {
			if wctx.Err() != nil {
				break
			}
			w.Go(func() error {
				if err := wctx.Err(); err != nil {
					return err
				}
				s, err := bt.registry.New(req.Base.Strategy, p)
				if err != nil {
					return err
				}
				res, err := Evaluate(s, prices, req.Base.Backtest, req.Base.Performance)
				if err != nil {
					return fmt.Errorf("sweep point %s: %w", p, err)
				}
				results[i] = SweepResult{Params: p, Comparison: res.Comparison, Trades: len(res.Run.Trades)}
				close(ready[i])
				return nil
			})
		}
		return w.Wait()
	})

	var emitErr error
	sent := 0
emit:
	for i := range grid {
		select {
		case <-ready[i]:
			if emitErr = fn(results[i]); emitErr != nil {
				cancel()
				break emit
			}
			sent++
		case <-gctx.Done():
			break emit
		}
	}
	err = g.Wait()
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		return err
	}
	if sent < len(grid) {
		// The parent context ended before the workers noticed.
		return ctx.Err()
	}

	bt.log.Info("sweep complete", "symbol", req.Base.Symbol, "strategy", req.Base.Strategy, "points", sent)
	return nil
}
