// Package builtins provides the moving-average crossover strategies that
// ship with quantlab.
package builtins

import (
	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross goes long when the fast SMA crosses above the slow SMA and
// leaves (or goes short) when it crosses below.
type SMACross struct {
	fast, slow int
	allowShort bool
}

// NewSMACross creates an SMACross with the given periods.
func NewSMACross(fast, slow int, allowShort bool) (*SMACross, error) {
	if err := checkPeriods("sma-cross", fast, slow); err != nil {
		return nil, err
	}
	return &SMACross{fast: fast, slow: slow, allowShort: allowShort}, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string { return "sma-cross" }

// Indicators returns SMA_fast and SMA_slow of the closes.
func (s *SMACross) Indicators(prices domain.PriceSeries) (domain.IndicatorSeries, domain.IndicatorSeries, error) {
	fast, err := indicator.SMA(prices, s.fast)
	if err != nil {
		return domain.IndicatorSeries{}, domain.IndicatorSeries{}, err
	}
	slow, err := indicator.SMA(prices, s.slow)
	if err != nil {
		return domain.IndicatorSeries{}, domain.IndicatorSeries{}, err
	}
	return fast, slow, nil
}

// Generate applies the crossover state machine.
func (s *SMACross) Generate(fast, slow domain.IndicatorSeries) (domain.SignalSeries, error) {
	return strategy.Crossover(s.Name(), fast, slow, s.allowShort)
}

func checkPeriods(name string, fast, slow int) error {
	if fast < 1 {
		return domain.InvalidParameter(name, "fast", "must be >= 1, got %d", fast)
	}
	if slow <= fast {
		return domain.InvalidParameter(name, "slow", "must exceed fast (%d), got %d", fast, slow)
	}
	return nil
}
