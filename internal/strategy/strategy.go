// Package strategy defines the Strategy capability interface, a Registry
// of strategy factories, and the Backtester that runs a strategy from
// stored bars through the simulator and the evaluator.
package strategy

import (
	"fmt"
	"sort"

	"quantlab/internal/domain"
)

// Params configures a strategy instance. Fields a strategy does not use
// are ignored; zero values select the strategy's defaults.
type Params struct {
	Fast       int  `json:"fast" yaml:"fast"`
	Slow       int  `json:"slow" yaml:"slow"`
	Signal     int  `json:"signal,omitempty" yaml:"signal"`
	AllowShort bool `json:"allow_short" yaml:"allow_short"`
}

func (p Params) String() string {
	s := fmt.Sprintf("fast=%d slow=%d", p.Fast, p.Slow)
	if p.Signal > 0 {
		s += fmt.Sprintf(" signal=%d", p.Signal)
	}
	if p.AllowShort {
		s += " short"
	}
	return s
}

// Strategy turns a price series into a target-position series in two
// steps: it derives two indicator series from prices, then generates
// signals from them. Implementations hold only their parameters and are
// safe for concurrent use.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Indicators computes the two series the strategy compares.
	Indicators(prices domain.PriceSeries) (a, b domain.IndicatorSeries, err error)

	// Generate derives signals from two aligned indicator series. The
	// signal at t depends only on indicator values through t.
	Generate(a, b domain.IndicatorSeries) (domain.SignalSeries, error)
}

// Signals runs both steps of s over prices.
func Signals(s Strategy, prices domain.PriceSeries) (domain.SignalSeries, error) {
	a, b, err := s.Indicators(prices)
	if err != nil {
		return domain.SignalSeries{}, err
	}
	return s.Generate(a, b)
}

// Factory builds a Strategy from parameters, validating them.
type Factory func(Params) (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration. It is populated at startup and read-only afterwards.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds the named strategy with p.
func (r *Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, domain.InvalidParameter("strategy.Registry", "strategy",
			"unknown strategy %q (have %v)", name, r.List())
	}
	return f(p)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
