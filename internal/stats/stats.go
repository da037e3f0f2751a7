// Package stats computes descriptive statistics, normality tests and
// distribution diagnostics over return series.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"quantlab/internal/domain"
)

// TradingDaysPerYear is the default annualization multiplier for daily data.
const TradingDaysPerYear = 252

// Options controls Summarize.
type Options struct {
	// Percentiles are fractions in [0,1].
	Percentiles []float64
	// PeriodsPerYear scales the per-period deviation to an annual figure.
	PeriodsPerYear float64
}

// DefaultOptions returns the 5/25/75/95 percentile set on a 252-day year.
func DefaultOptions() Options {
	return Options{
		Percentiles:    []float64{0.05, 0.25, 0.75, 0.95},
		PeriodsPerYear: TradingDaysPerYear,
	}
}

// PercentileValue pairs a requested fraction with its value.
type PercentileValue struct {
	P     float64
	Value float64
}

// Summary holds the descriptive statistics of a return series.
//
// StdDev is the sample deviation (n-1 denominator). Skewness and Kurtosis
// are ratios of population central moments, E[(R-μ)^k]/σ^k with σ the 1/n
// deviation. Kurtosis is raw (3 for a normal distribution); ExcessKurtosis
// is Kurtosis-3. Both are NaN when the series has zero variance.
type Summary struct {
	Count                int
	Mean                 float64
	Median               float64
	StdDev               float64
	Min                  float64
	Max                  float64
	Percentiles          []PercentileValue
	Skewness             float64
	Kurtosis             float64
	ExcessKurtosis       float64
	AnnualizedVolatility float64
	SkewnessLabel        string
	KurtosisLabel        string
}

// Summarize computes the Summary of r.
func Summarize(r domain.ReturnSeries, opts Options) (Summary, error) {
	return SummarizeValues(r.Values(), opts)
}

// SummarizeValues computes the Summary of a plain sample.
func SummarizeValues(x []float64, opts Options) (Summary, error) {
	const op = "stats.Summarize"
	if len(x) < 2 {
		return Summary{}, domain.InsufficientData(op, "returns", "need at least 2 observations, got %d", len(x))
	}
	if opts.PeriodsPerYear <= 0 {
		return Summary{}, domain.InvalidParameter(op, "periodsPerYear", "must be > 0, got %v", opts.PeriodsPerYear)
	}
	for _, p := range opts.Percentiles {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return Summary{}, domain.InvalidParameter(op, "percentiles", "fraction %v outside [0,1]", p)
		}
	}

	sorted := sortedCopy(x)
	s := Summary{
		Count:  len(x),
		Mean:   stat.Mean(x, nil),
		StdDev: stat.StdDev(x, nil),
		Min:    floats.Min(x),
		Max:    floats.Max(x),
		Median: percentileSorted(sorted, 0.5),
	}
	for _, p := range opts.Percentiles {
		s.Percentiles = append(s.Percentiles, PercentileValue{P: p, Value: percentileSorted(sorted, p)})
	}
	s.Skewness, s.Kurtosis = shapeMoments(x)
	s.ExcessKurtosis = s.Kurtosis - 3
	s.AnnualizedVolatility = s.StdDev * math.Sqrt(opts.PeriodsPerYear)
	s.SkewnessLabel = skewnessLabel(s.Skewness)
	s.KurtosisLabel = kurtosisLabel(s.ExcessKurtosis)
	return s, nil
}

// Percentile returns the p-quantile of x by linear interpolation between
// order statistics at rank (n-1)p.
func Percentile(x []float64, p float64) (float64, error) {
	const op = "stats.Percentile"
	if len(x) == 0 {
		return math.NaN(), domain.InsufficientData(op, "values", "empty sample")
	}
	if p < 0 || p > 1 || math.IsNaN(p) {
		return math.NaN(), domain.InvalidParameter(op, "p", "fraction %v outside [0,1]", p)
	}
	return percentileSorted(sortedCopy(x), p), nil
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func sortedCopy(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	sort.Float64s(out)
	return out
}

// shapeMoments returns skewness and raw kurtosis from population central
// moments.
func shapeMoments(x []float64) (skew, kurt float64) {
	m2 := stat.Moment(2, x, nil)
	if m2 == 0 {
		return math.NaN(), math.NaN()
	}
	m3 := stat.Moment(3, x, nil)
	m4 := stat.Moment(4, x, nil)
	return m3 / math.Pow(m2, 1.5), m4 / (m2 * m2)
}

func skewnessLabel(s float64) string {
	switch {
	case math.IsNaN(s):
		return "undefined"
	case math.Abs(s) < 0.5:
		return "symmetric"
	case s > 0:
		return "right-skewed"
	default:
		return "left-skewed"
	}
}

func kurtosisLabel(excess float64) string {
	switch {
	case math.IsNaN(excess):
		return "undefined"
	case math.Abs(excess) < 0.5:
		return "mesokurtic"
	case excess > 0:
		return "leptokurtic"
	default:
		return "platykurtic"
	}
}
