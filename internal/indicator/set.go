package indicator

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"quantlab/internal/domain"
)

// Params selects the indicators ComputeAll builds. A zero period skips
// the corresponding indicator.
type Params struct {
	SMAPeriods      []int   `yaml:"sma_periods"`
	EMAPeriods      []int   `yaml:"ema_periods"`
	// EMAAlpha is the smoothing constant of every EMA_n; zero selects
	// 2/(n+1).
	EMAAlpha        float64 `yaml:"ema_alpha"`
	RSIPeriod       int     `yaml:"rsi_period"`
	BollingerPeriod int     `yaml:"bollinger_period"`
	BollingerK      float64 `yaml:"bollinger_k"`
	MACDFast        int     `yaml:"macd_fast"`
	MACDSlow        int     `yaml:"macd_slow"`
	MACDSignal      int     `yaml:"macd_signal"`
	ATRPeriod       int     `yaml:"atr_period"`
	StochasticK     int     `yaml:"stochastic_k"`
	StochasticD     int     `yaml:"stochastic_d"`
}

// DefaultParams returns the conventional lookbacks.
func DefaultParams() Params {
	return Params{
		SMAPeriods:      []int{20, 50},
		EMAPeriods:      []int{12, 26},
		RSIPeriod:       14,
		BollingerPeriod: 20,
		BollingerK:      2,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		ATRPeriod:       14,
		StochasticK:     14,
		StochasticD:     3,
	}
}

// Set is a named collection of indicator series over one price series.
type Set map[string]domain.IndicatorSeries

// Names returns the series names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComputeAll builds every indicator selected by p concurrently. Each
// indicator reads prices without mutation and writes only its own slot.
// The first failure cancels the remaining work and is returned; no partial
// set is returned.
func ComputeAll(ctx context.Context, prices domain.PriceSeries, p Params) (Set, error) {
	var jobs []func() ([]domain.IndicatorSeries, error)
	for _, n := range p.SMAPeriods {
		jobs = append(jobs, one(func() (domain.IndicatorSeries, error) { return SMA(prices, n) }))
	}
	for _, n := range p.EMAPeriods {
		jobs = append(jobs, one(func() (domain.IndicatorSeries, error) { return EMAWithAlpha(prices, n, p.EMAAlpha) }))
	}
	if p.RSIPeriod > 0 {
		jobs = append(jobs, one(func() (domain.IndicatorSeries, error) { return RSI(prices, p.RSIPeriod) }))
	}
	if p.ATRPeriod > 0 {
		jobs = append(jobs, one(func() (domain.IndicatorSeries, error) { return ATR(prices, p.ATRPeriod) }))
	}
	if p.BollingerPeriod > 0 {
		jobs = append(jobs, func() ([]domain.IndicatorSeries, error) {
			b, err := Bollinger(prices, p.BollingerPeriod, p.BollingerK)
			return []domain.IndicatorSeries{b.Middle, b.Upper, b.Lower}, err
		})
	}
	if p.MACDSlow > 0 {
		jobs = append(jobs, func() ([]domain.IndicatorSeries, error) {
			m, err := MACD(prices, p.MACDFast, p.MACDSlow, p.MACDSignal)
			return []domain.IndicatorSeries{m.MACD, m.Signal, m.Histogram}, err
		})
	}
	if p.StochasticK > 0 {
		jobs = append(jobs, func() ([]domain.IndicatorSeries, error) {
			o, err := Stochastic(prices, p.StochasticK, p.StochasticD)
			return []domain.IndicatorSeries{o.K, o.D}, err
		})
	}

	results := make([][]domain.IndicatorSeries, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := job()
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("computing indicators for %s: %w", prices.Symbol(), err)
	}

	set := make(Set)
	for _, group := range results {
		for _, s := range group {
			set[s.Name] = s
		}
	}
	return set, nil
}

func one(f func() (domain.IndicatorSeries, error)) func() ([]domain.IndicatorSeries, error) {
	return func() ([]domain.IndicatorSeries, error) {
		s, err := f()
		if err != nil {
			return nil, err
		}
		return []domain.IndicatorSeries{s}, nil
	}
}
