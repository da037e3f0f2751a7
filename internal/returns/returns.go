// Package returns converts price series into arithmetic or logarithmic
// return series.
package returns

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"quantlab/internal/domain"
)

// Compute returns one return per bar after the first, using close prices.
//
//	arithmetic: R_t = (P_t - P_{t-1}) / P_{t-1}
//	log:        r_t = ln(P_t / P_{t-1})
func Compute(prices domain.PriceSeries, kind domain.ReturnKind) (domain.ReturnSeries, error) {
	const op = "returns.Compute"
	if kind != domain.Arithmetic && kind != domain.Logarithmic {
		return domain.ReturnSeries{}, domain.InvalidParameter(op, "kind", "unknown return kind %q", kind)
	}
	n := prices.Len()
	if n < 2 {
		return domain.ReturnSeries{}, domain.InsufficientData(op, "prices", "need at least 2 prices, got %d", n)
	}

	points := make([]domain.Point, 0, n-1)
	for t := 1; t < n; t++ {
		prev, cur := prices.Bar(t-1), prices.Bar(t)
		var v float64
		switch kind {
		case domain.Logarithmic:
			if prev.Close <= 0 || cur.Close <= 0 {
				return domain.ReturnSeries{}, domain.InvalidPrice(op, "prices",
					"log return undefined for prices %v -> %v at index %d", prev.Close, cur.Close, t)
			}
			v = math.Log(cur.Close / prev.Close)
		default:
			if prev.Close == 0 {
				return domain.ReturnSeries{}, domain.DivisionByZero(op, "prices", "zero prior price at index %d", t-1)
			}
			v = (cur.Close - prev.Close) / prev.Close
		}
		points = append(points, domain.Point{Timestamp: cur.Timestamp, Value: v})
	}
	return domain.ReturnSeries{Kind: kind, Points: points}, nil
}

// Cumulative returns the running compounded return Π(1+R_i) - 1 for
// arithmetic returns, or the running sum for log returns.
func Cumulative(r domain.ReturnSeries) domain.ReturnSeries {
	out := domain.ReturnSeries{Kind: r.Kind, Points: make([]domain.Point, len(r.Points))}
	acc := 0.0
	growth := 1.0
	for i, p := range r.Points {
		v := 0.0
		if r.Kind == domain.Logarithmic {
			acc += p.Value
			v = acc
		} else {
			growth *= 1 + p.Value
			v = growth - 1
		}
		out.Points[i] = domain.Point{Timestamp: p.Timestamp, Value: v}
	}
	return out
}

// RollingVolatility returns the annualized sample standard deviation over a
// trailing window. The result is aligned with r and starts at window-1.
func RollingVolatility(r domain.ReturnSeries, window int, periodsPerYear float64) (domain.IndicatorSeries, error) {
	const op = "returns.RollingVolatility"
	if window < 2 {
		return domain.IndicatorSeries{}, domain.InvalidParameter(op, "window", "must be >= 2, got %d", window)
	}
	if periodsPerYear <= 0 {
		return domain.IndicatorSeries{}, domain.InvalidParameter(op, "periodsPerYear", "must be > 0, got %v", periodsPerYear)
	}
	if r.Len() < window {
		return domain.IndicatorSeries{}, domain.InsufficientData(op, "returns", "need %d returns, got %d", window, r.Len())
	}

	values := r.Values()
	out := domain.NewIndicatorSeries("VOL", r.Timestamps())
	scale := math.Sqrt(periodsPerYear)
	for t := window - 1; t < len(values); t++ {
		out.Values[t] = stat.StdDev(values[t-window+1:t+1], nil) * scale
	}
	out.DefinedFrom = window - 1
	return out, nil
}
