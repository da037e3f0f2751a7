// Package risk computes quantile-based risk measures over return series.
// Losses are reported as positive numbers.
package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"quantlab/internal/domain"
	"quantlab/internal/stats"
)

// Method selects how the loss quantile is estimated.
type Method string

const (
	// Historical uses the empirical return distribution.
	Historical Method = "historical"
	// Parametric fits a normal distribution to the sample mean and std.
	Parametric Method = "parametric"
)

// ParseMethod maps a configuration string to a Method. The empty string
// selects Historical.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", Historical:
		return Historical, nil
	case Parametric:
		return Parametric, nil
	}
	return "", domain.InvalidParameter("risk.ParseMethod", "method", "unknown method %q", s)
}

// Measures bundles VaR and CVaR at one confidence level.
type Measures struct {
	Method     Method
	Confidence float64
	VaR        float64
	CVaR       float64
}

// Compute returns VaR and CVaR together.
func Compute(r domain.ReturnSeries, confidence float64, m Method) (Measures, error) {
	v, err := ValueAtRisk(r, confidence, m)
	if err != nil {
		return Measures{}, err
	}
	cv, err := ConditionalVaR(r, confidence, m)
	if err != nil {
		return Measures{}, err
	}
	return Measures{Method: m, Confidence: confidence, VaR: v, CVaR: cv}, nil
}

// ValueAtRisk returns the loss not exceeded with probability confidence:
// -Percentile(returns, 1-confidence) for the historical method.
func ValueAtRisk(r domain.ReturnSeries, confidence float64, m Method) (float64, error) {
	const op = "risk.ValueAtRisk"
	x, err := validate(op, r, confidence)
	if err != nil {
		return math.NaN(), err
	}
	switch m {
	case Historical, "":
		q, err := stats.Percentile(x, 1-confidence)
		if err != nil {
			return math.NaN(), err
		}
		return -q, nil
	case Parametric:
		mean, std := stat.MeanStdDev(x, nil)
		return -(mean + std*distuv.UnitNormal.Quantile(1-confidence)), nil
	}
	return math.NaN(), domain.InvalidParameter(op, "method", "unknown method %q", m)
}

// ConditionalVaR returns the expected loss beyond VaR. The historical
// estimate is the negated mean of all returns at or below -VaR.
func ConditionalVaR(r domain.ReturnSeries, confidence float64, m Method) (float64, error) {
	const op = "risk.ConditionalVaR"
	x, err := validate(op, r, confidence)
	if err != nil {
		return math.NaN(), err
	}
	switch m {
	case Historical, "":
		v, err := ValueAtRisk(r, confidence, m)
		if err != nil {
			return math.NaN(), err
		}
		var sum float64
		var n int
		for _, ret := range x {
			if ret <= -v {
				sum += ret
				n++
			}
		}
		if n == 0 {
			return math.NaN(), domain.InsufficientData(op, "returns",
				"no observations in the %.4g tail of %d returns", 1-confidence, len(x))
		}
		return -sum / float64(n), nil
	case Parametric:
		mean, std := stat.MeanStdDev(x, nil)
		alpha := 1 - confidence
		z := distuv.UnitNormal.Quantile(alpha)
		return -(mean - std*distuv.UnitNormal.Prob(z)/alpha), nil
	}
	return math.NaN(), domain.InvalidParameter(op, "method", "unknown method %q", m)
}

func validate(op string, r domain.ReturnSeries, confidence float64) ([]float64, error) {
	if !(confidence > 0 && confidence < 1) {
		return nil, domain.InvalidParameter(op, "confidence", "must be in (0,1), got %v", confidence)
	}
	x := r.Values()
	if len(x) < 2 {
		return nil, domain.InsufficientData(op, "returns", "need at least 2 observations, got %d", len(x))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, domain.InvalidParameter(op, "returns", "non-finite return at index %d", i)
		}
	}
	return x, nil
}

// String renders m for logs and reports.
func (m Measures) String() string {
	return fmt.Sprintf("%s VaR(%.0f%%)=%.4f CVaR=%.4f", m.Method, m.Confidence*100, m.VaR, m.CVaR)
}
