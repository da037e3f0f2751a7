package builtins

import "quantlab/internal/strategy"

// Default periods applied when Params leaves them zero.
const (
	DefaultSMAFast    = 20
	DefaultSMASlow    = 50
	DefaultEMAFast    = 12
	DefaultEMASlow    = 26
	DefaultMACDSignal = 9
)

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register("sma-cross", func(p strategy.Params) (strategy.Strategy, error) {
		p = withDefaults(p, DefaultSMAFast, DefaultSMASlow)
		s, err := NewSMACross(p.Fast, p.Slow, p.AllowShort)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	r.Register("ema-cross", func(p strategy.Params) (strategy.Strategy, error) {
		p = withDefaults(p, DefaultEMAFast, DefaultEMASlow)
		s, err := NewEMACross(p.Fast, p.Slow, p.AllowShort)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	r.Register("macd-cross", func(p strategy.Params) (strategy.Strategy, error) {
		p = withDefaults(p, DefaultEMAFast, DefaultEMASlow)
		if p.Signal == 0 {
			p.Signal = DefaultMACDSignal
		}
		s, err := NewMACDCross(p.Fast, p.Slow, p.Signal, p.AllowShort)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// NewRegistry returns a registry holding every built-in strategy.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}

func withDefaults(p strategy.Params, fast, slow int) strategy.Params {
	if p.Fast == 0 {
		p.Fast = fast
	}
	if p.Slow == 0 {
		p.Slow = slow
	}
	return p
}
