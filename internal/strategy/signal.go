package strategy

import (
	"quantlab/internal/domain"
)

// Crossover generates signals from a fast and a slow series. The state
// starts FLAT once both series are defined. An upward cross
// (fast_t > slow_t and fast_{t-1} <= slow_{t-1}) goes LONG; a downward
// cross goes FLAT, or SHORT when allowShort is set. Only state changes are
// recorded as transitions.
func Crossover(name string, fast, slow domain.IndicatorSeries, allowShort bool) (domain.SignalSeries, error) {
	const op = "strategy.Crossover"
	n := fast.Len()
	if slow.Len() != n || len(fast.Timestamps) != n || !domain.SameTimestamps(fast.Timestamps, slow.Timestamps) {
		return domain.SignalSeries{}, domain.InvalidParameter(op, "indicators",
			"%s (%d) and %s (%d) are not aligned", fast.Name, n, slow.Name, slow.Len())
	}

	sig := domain.SignalSeries{
		Strategy:    name,
		Timestamps:  fast.Timestamps,
		Positions:   make([]domain.Position, n),
		DefinedFrom: min(max(fast.DefinedFrom, slow.DefinedFrom), n),
	}

	f, s := fast.Values, slow.Values
	state := domain.Flat
	for t := sig.DefinedFrom + 1; t < n; t++ {
		next := state
		switch {
		case f[t] > s[t] && f[t-1] <= s[t-1]:
			next = domain.Long
		case f[t] < s[t] && f[t-1] >= s[t-1]:
			if allowShort {
				next = domain.Short
			} else {
				next = domain.Flat
			}
		}
		if next != state {
			sig.Transitions = append(sig.Transitions, domain.Transition{
				Index: t, Timestamp: sig.Timestamps[t], From: state, To: next,
			})
			state = next
		}
		sig.Positions[t] = state
	}
	return sig, nil
}
