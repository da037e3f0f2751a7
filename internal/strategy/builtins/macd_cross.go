package builtins

import (
	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

var _ strategy.Strategy = (*MACDCross)(nil)

// MACDCross trades the MACD line crossing its signal line.
type MACDCross struct {
	fast, slow, signal int
	allowShort         bool
}

// NewMACDCross creates a MACDCross with the given EMA periods.
func NewMACDCross(fast, slow, signal int, allowShort bool) (*MACDCross, error) {
	if err := checkPeriods("macd-cross", fast, slow); err != nil {
		return nil, err
	}
	if signal < 1 {
		return nil, domain.InvalidParameter("macd-cross", "signal", "must be >= 1, got %d", signal)
	}
	return &MACDCross{fast: fast, slow: slow, signal: signal, allowShort: allowShort}, nil
}

func (s *MACDCross) Name() string { return "macd-cross" }

// Indicators returns the MACD line and its signal line.
func (s *MACDCross) Indicators(prices domain.PriceSeries) (domain.IndicatorSeries, domain.IndicatorSeries, error) {
	m, err := indicator.MACD(prices, s.fast, s.slow, s.signal)
	if err != nil {
		return domain.IndicatorSeries{}, domain.IndicatorSeries{}, err
	}
	return m.MACD, m.Signal, nil
}

func (s *MACDCross) Generate(line, signal domain.IndicatorSeries) (domain.SignalSeries, error) {
	return strategy.Crossover(s.Name(), line, signal, s.allowShort)
}
