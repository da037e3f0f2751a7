package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"quantlab/internal/report"
)

// backtestFlags binds the flags shared by backtest and sweep.
type backtestFlags struct {
	req          report.BacktestRequestJSON
	allowShort   bool
	capital      float64
	cost         float64
	riskFreeRate float64
}

func (f *backtestFlags) register(fs *pflag.FlagSet, withPeriods bool) {
	fs.StringVar(&f.req.Interval, "interval", "", "bar interval (default analytics.interval)")
	fs.StringVar(&f.req.Strategy, "strategy", "", "strategy name (default backtest.strategy)")
	if withPeriods {
		fs.IntVar(&f.req.Fast, "fast", 0, "fast period")
		fs.IntVar(&f.req.Slow, "slow", 0, "slow period")
	}
	fs.IntVar(&f.req.Signal, "signal", 0, "MACD signal period")
	fs.BoolVar(&f.allowShort, "short", false, "take short positions on down-crosses")
	fs.StringVar(&f.req.Start, "start", "", "first bar date, YYYY-MM-DD or RFC 3339")
	fs.StringVar(&f.req.End, "end", "", "last bar date, YYYY-MM-DD or RFC 3339")
	fs.Float64Var(&f.capital, "capital", 0, "initial capital")
	fs.Float64Var(&f.cost, "cost", 0, "transaction cost per unit of position change")
	fs.Float64Var(&f.riskFreeRate, "risk-free", 0, "annual risk-free rate for Sharpe")
	fs.StringVar(&f.req.OpenPosition, "open-position", "", "force-close or exclude")
}

// request returns the wire request with only the flags the user set.
func (f *backtestFlags) request(fs *pflag.FlagSet, symbol string) report.BacktestRequestJSON {
	req := f.req
	req.Symbol = strings.ToUpper(symbol)
	if fs.Changed("short") {
		req.AllowShort = &f.allowShort
	}
	if fs.Changed("capital") {
		req.InitialCapital = &f.capital
	}
	if fs.Changed("cost") {
		req.Cost = &f.cost
	}
	if fs.Changed("risk-free") {
		req.RiskFreeRate = &f.riskFreeRate
	}
	return req
}

func newBacktestCmd(a *app) *cobra.Command {
	var (
		flags  backtestFlags
		equity bool
	)
	cmd := &cobra.Command{
		Use:   "backtest SYMBOL",
		Short: "Backtest a strategy against buy-and-hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := flags.request(cmd.Flags(), args[0])
			req, err := body.Apply(a.engine.Request(body.Symbol))
			if err != nil {
				return err
			}
			res, err := a.engine.Backtest(cmd.Context(), req)
			if err != nil {
				return err
			}
			view := report.Backtest(res, equity)
			if a.jsonOut {
				return writeJSON(view)
			}
			return report.WriteBacktest(os.Stdout, view)
		},
	}
	flags.register(cmd.Flags(), true)
	cmd.Flags().BoolVar(&equity, "equity", false, "include the equity curve in JSON output")
	return cmd
}

func newSweepCmd(a *app) *cobra.Command {
	var (
		flags       backtestFlags
		fast, slow  []int
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "sweep SYMBOL",
		Short: "Backtest every fast/slow pair of a parameter grid concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := report.SweepRequestJSON{
				BacktestRequestJSON: flags.request(cmd.Flags(), args[0]),
				FastGrid:            fast,
				SlowGrid:            slow,
				Concurrency:         concurrency,
			}
			req, err := body.Apply(a.engine.Request(body.Symbol))
			if err != nil {
				return err
			}
			results, err := a.engine.Sweep(cmd.Context(), req)
			if err != nil {
				return err
			}
			points := report.Sweep(results)
			if a.jsonOut {
				return writeJSON(points)
			}
			return report.WriteSweep(os.Stdout, points)
		},
	}
	flags.register(cmd.Flags(), false)
	cmd.Flags().IntSliceVar(&fast, "fast", []int{5, 10, 20}, "fast periods")
	cmd.Flags().IntSliceVar(&slow, "slow", []int{30, 50, 100}, "slow periods")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel backtests (default GOMAXPROCS)")
	return cmd
}
