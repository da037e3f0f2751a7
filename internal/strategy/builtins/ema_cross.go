package builtins

import (
	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

var _ strategy.Strategy = (*EMACross)(nil)

// EMACross is SMACross on exponential averages.
type EMACross struct {
	fast, slow int
	allowShort bool
}

// NewEMACross creates an EMACross with the given periods.
func NewEMACross(fast, slow int, allowShort bool) (*EMACross, error) {
	if err := checkPeriods("ema-cross", fast, slow); err != nil {
		return nil, err
	}
	return &EMACross{fast: fast, slow: slow, allowShort: allowShort}, nil
}

func (s *EMACross) Name() string { return "ema-cross" }

func (s *EMACross) Indicators(prices domain.PriceSeries) (domain.IndicatorSeries, domain.IndicatorSeries, error) {
	fast, err := indicator.EMA(prices, s.fast)
	if err != nil {
		return domain.IndicatorSeries{}, domain.IndicatorSeries{}, err
	}
	slow, err := indicator.EMA(prices, s.slow)
	if err != nil {
		return domain.IndicatorSeries{}, domain.IndicatorSeries{}, err
	}
	return fast, slow, nil
}

func (s *EMACross) Generate(fast, slow domain.IndicatorSeries) (domain.SignalSeries, error) {
	return strategy.Crossover(s.Name(), fast, slow, s.allowShort)
}
