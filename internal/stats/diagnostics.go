package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"quantlab/internal/domain"
)

// RollingStats holds trailing-window statistics aligned with the input
// return series.
type RollingStats struct {
	Mean domain.IndicatorSeries
	Std  domain.IndicatorSeries
	Min  domain.IndicatorSeries
	Max  domain.IndicatorSeries
}

// Rolling computes mean, sample std, min and max over a trailing window.
func Rolling(r domain.ReturnSeries, window int) (RollingStats, error) {
	const op = "stats.Rolling"
	if window < 2 {
		return RollingStats{}, domain.InvalidParameter(op, "window", "must be >= 2, got %d", window)
	}
	if r.Len() < window {
		return RollingStats{}, domain.InsufficientData(op, "returns", "need %d returns, got %d", window, r.Len())
	}

	ts := r.Timestamps()
	x := r.Values()
	out := RollingStats{
		Mean: domain.NewIndicatorSeries("ROLL_MEAN", ts),
		Std:  domain.NewIndicatorSeries("ROLL_STD", ts),
		Min:  domain.NewIndicatorSeries("ROLL_MIN", ts),
		Max:  domain.NewIndicatorSeries("ROLL_MAX", ts),
	}
	for t := window - 1; t < len(x); t++ {
		w := x[t-window+1 : t+1]
		out.Mean.Values[t], out.Std.Values[t] = stat.MeanStdDev(w, nil)
		out.Min.Values[t] = floats.Min(w)
		out.Max.Values[t] = floats.Max(w)
	}
	for _, s := range []*domain.IndicatorSeries{&out.Mean, &out.Std, &out.Min, &out.Max} {
		s.DefinedFrom = window - 1
	}
	return out, nil
}

// QQ returns normal theoretical quantiles and the sorted standardized sample
// for a quantile-quantile plot. Plotting positions follow Filliben's
// order-statistic medians.
func QQ(r domain.ReturnSeries) (theoretical, sample []float64, err error) {
	const op = "stats.QQ"
	x := r.Values()
	if len(x) < 2 {
		return nil, nil, domain.InsufficientData(op, "returns", "need at least 2 observations, got %d", len(x))
	}
	mean, std := stat.MeanStdDev(x, nil)
	if std == 0 {
		return nil, nil, domain.DivisionByZero(op, "returns", "sample has zero variance")
	}

	n := len(x)
	sample = sortedCopy(x)
	theoretical = make([]float64, n)
	last := math.Pow(0.5, 1/float64(n))
	for i := range sample {
		sample[i] = (sample[i] - mean) / std
		var u float64
		switch i {
		case 0:
			u = 1 - last
		case n - 1:
			u = last
		default:
			u = (float64(i+1) - 0.3175) / (float64(n) + 0.365)
		}
		theoretical[i] = distuv.UnitNormal.Quantile(u)
	}
	return theoretical, sample, nil
}

// Covariance returns the sample covariance matrix of aligned return series.
func Covariance(series ...domain.ReturnSeries) ([][]float64, error) {
	x, err := columns("stats.Covariance", series)
	if err != nil {
		return nil, err
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	return symToRows(&cov), nil
}

// Correlation returns the Pearson correlation matrix of aligned return
// series. A constant series yields NaN in its row and column.
func Correlation(series ...domain.ReturnSeries) ([][]float64, error) {
	x, err := columns("stats.Correlation", series)
	if err != nil {
		return nil, err
	}
	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, x, nil)
	return symToRows(&corr), nil
}

// columns lays series out as a rows=observations, cols=series matrix.
func columns(op string, series []domain.ReturnSeries) (*mat.Dense, error) {
	if len(series) < 2 {
		return nil, domain.InvalidParameter(op, "series", "need at least 2 series, got %d", len(series))
	}
	n := series[0].Len()
	if n < 2 {
		return nil, domain.InsufficientData(op, "series", "need at least 2 observations, got %d", n)
	}
	ts := series[0].Timestamps()
	x := mat.NewDense(n, len(series), nil)
	for j, s := range series {
		if !domain.SameTimestamps(ts, s.Timestamps()) {
			return nil, domain.InvalidParameter(op, "series", "series %d is not aligned with series 0", j)
		}
		x.SetCol(j, s.Values())
	}
	return x, nil
}

func symToRows(m *mat.SymDense) [][]float64 {
	n := m.SymmetricDim()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
