// Package indicator computes technical indicators over price series.
//
// Every indicator returns series aligned index-for-index with its input.
// Values inside the warm-up window are NaN and DefinedFrom marks the first
// defined index, so series with different lookbacks join by timestamp
// without truncation. Recursive smoothing state lives only inside a single
// call.
package indicator

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"quantlab/internal/domain"
)

// checkWindow validates a lookback n against a series of length size that
// needs at least minLen points to produce one defined value.
func checkWindow(op, param string, n, size, minLen int) error {
	if n < 1 {
		return domain.InvalidParameter(op, param, "must be >= 1, got %d", n)
	}
	if size == 0 {
		return domain.InsufficientData(op, "prices", "empty series")
	}
	if n > size {
		return domain.InvalidParameter(op, param, "%d exceeds series length %d", n, size)
	}
	if size < minLen {
		return domain.InsufficientData(op, "prices", "need %d points for %s=%d, got %d", minLen, param, n, size)
	}
	return nil
}

// SMA returns the simple moving average of closes over n periods. It is
// defined from index n-1.
func SMA(prices domain.PriceSeries, n int) (domain.IndicatorSeries, error) {
	const op = "indicator.SMA"
	if err := checkWindow(op, "n", n, prices.Len(), n); err != nil {
		return domain.IndicatorSeries{}, err
	}
	return smaFrom(fmt.Sprintf("SMA_%d", n), prices.Timestamps(), prices.Closes(), 0, n), nil
}

// smaFrom averages values over n periods starting at the first defined
// index start. Values before start are ignored.
func smaFrom(name string, ts []time.Time, values []float64, start, n int) domain.IndicatorSeries {
	out := domain.NewIndicatorSeries(name, ts)
	first := start + n - 1
	if first >= len(values) {
		return out
	}
	sum := floats.Sum(values[start : first+1])
	out.Values[first] = sum / float64(n)
	for t := first + 1; t < len(values); t++ {
		sum += values[t] - values[t-n]
		out.Values[t] = sum / float64(n)
	}
	out.DefinedFrom = first
	return out
}

// EMA returns the exponential moving average of closes with the default
// smoothing factor 2/(n+1).
func EMA(prices domain.PriceSeries, n int) (domain.IndicatorSeries, error) {
	return EMAWithAlpha(prices, n, 0)
}

// EMAWithAlpha returns the EMA of closes with smoothing factor alpha in
// (0,1]. Zero alpha selects 2/(n+1). The series is seeded at index n-1 with
// the SMA of the first window.
func EMAWithAlpha(prices domain.PriceSeries, n int, alpha float64) (domain.IndicatorSeries, error) {
	const op = "indicator.EMA"
	if err := checkWindow(op, "n", n, prices.Len(), n); err != nil {
		return domain.IndicatorSeries{}, err
	}
	a, err := smoothing(op, n, alpha)
	if err != nil {
		return domain.IndicatorSeries{}, err
	}
	return emaFrom(fmt.Sprintf("EMA_%d", n), prices.Timestamps(), prices.Closes(), 0, n, a), nil
}

// EMASeries smooths an existing indicator series, starting from its first
// defined value. Zero alpha selects 2/(n+1).
func EMASeries(s domain.IndicatorSeries, n int, alpha float64) (domain.IndicatorSeries, error) {
	const op = "indicator.EMASeries"
	defined := s.Len() - s.DefinedFrom
	if n < 1 {
		return domain.IndicatorSeries{}, domain.InvalidParameter(op, "n", "must be >= 1, got %d", n)
	}
	if n > s.Len() {
		return domain.IndicatorSeries{}, domain.InvalidParameter(op, "n", "%d exceeds series length %d", n, s.Len())
	}
	if defined < n {
		return domain.IndicatorSeries{}, domain.InsufficientData(op, "series",
			"%s has %d defined values, need %d", s.Name, defined, n)
	}
	a, err := smoothing(op, n, alpha)
	if err != nil {
		return domain.IndicatorSeries{}, err
	}
	return emaFrom(fmt.Sprintf("EMA_%d(%s)", n, s.Name), s.Timestamps, s.Values, s.DefinedFrom, n, a), nil
}

func smoothing(op string, n int, alpha float64) (float64, error) {
	if alpha == 0 {
		return 2 / float64(n+1), nil
	}
	if !(alpha > 0 && alpha <= 1) {
		return 0, domain.InvalidParameter(op, "alpha", "must be in (0,1], got %v", alpha)
	}
	return alpha, nil
}

func emaFrom(name string, ts []time.Time, values []float64, start, n int, alpha float64) domain.IndicatorSeries {
	out := smaFrom(name, ts, values, start, n)
	if out.DefinedFrom >= len(values) {
		return out
	}
	prev := out.Values[out.DefinedFrom]
	for t := out.DefinedFrom + 1; t < len(values); t++ {
		prev = alpha*values[t] + (1-alpha)*prev
		out.Values[t] = prev
	}
	return out
}

// RSI returns Wilder's relative strength index over n periods. The first
// value, at index n, averages the first n price changes; later values use
// Wilder smoothing. A zero average loss yields 100.
func RSI(prices domain.PriceSeries, n int) (domain.IndicatorSeries, error) {
	const op = "indicator.RSI"
	if err := checkWindow(op, "n", n, prices.Len(), n+1); err != nil {
		return domain.IndicatorSeries{}, err
	}
	c := prices.Closes()
	out := domain.NewIndicatorSeries(fmt.Sprintf("RSI_%d", n), prices.Timestamps())

	var avgGain, avgLoss float64
	for t := 1; t <= n; t++ {
		g, l := gainLoss(c[t] - c[t-1])
		avgGain += g
		avgLoss += l
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)
	out.Values[n] = rsiValue(avgGain, avgLoss)

	nf := float64(n)
	for t := n + 1; t < len(c); t++ {
		g, l := gainLoss(c[t] - c[t-1])
		avgGain = (avgGain*(nf-1) + g) / nf
		avgLoss = (avgLoss*(nf-1) + l) / nf
		out.Values[t] = rsiValue(avgGain, avgLoss)
	}
	out.DefinedFrom = n
	return out, nil
}

func gainLoss(d float64) (gain, loss float64) {
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	v := 100 - 100/(1+avgGain/avgLoss)
	return math.Min(100, math.Max(0, v))
}

// Bands holds Bollinger bands.
type Bands struct {
	Middle domain.IndicatorSeries
	Upper  domain.IndicatorSeries
	Lower  domain.IndicatorSeries
}

// Bollinger returns SMA_n ± k·σ_n, σ_n being the rolling sample deviation.
func Bollinger(prices domain.PriceSeries, n int, k float64) (Bands, error) {
	const op = "indicator.Bollinger"
	if n < 2 {
		return Bands{}, domain.InvalidParameter(op, "n", "must be >= 2 for a sample deviation, got %d", n)
	}
	if k < 0 || math.IsNaN(k) {
		return Bands{}, domain.InvalidParameter(op, "k", "must be >= 0, got %v", k)
	}
	if err := checkWindow(op, "n", n, prices.Len(), n); err != nil {
		return Bands{}, err
	}
	c := prices.Closes()
	ts := prices.Timestamps()
	b := Bands{
		Middle: smaFrom(fmt.Sprintf("BB_MIDDLE_%d", n), ts, c, 0, n),
		Upper:  domain.NewIndicatorSeries(fmt.Sprintf("BB_UPPER_%d", n), ts),
		Lower:  domain.NewIndicatorSeries(fmt.Sprintf("BB_LOWER_%d", n), ts),
	}
	for t := n - 1; t < len(c); t++ {
		sd := stat.StdDev(c[t-n+1:t+1], nil)
		m := b.Middle.Values[t]
		b.Upper.Values[t] = m + k*sd
		b.Lower.Values[t] = m - k*sd
	}
	b.Upper.DefinedFrom = n - 1
	b.Lower.DefinedFrom = n - 1
	return b, nil
}

// MACDResult holds the MACD line, its signal line and their difference.
type MACDResult struct {
	MACD      domain.IndicatorSeries
	Signal    domain.IndicatorSeries
	Histogram domain.IndicatorSeries
}

// MACD returns EMA_fast − EMA_slow, its EMA over signal periods, and the
// histogram. The line is defined from slow-1; the signal and histogram
// from slow+signal-2.
func MACD(prices domain.PriceSeries, fast, slow, signal int) (MACDResult, error) {
	const op = "indicator.MACD"
	if fast < 1 {
		return MACDResult{}, domain.InvalidParameter(op, "fast", "must be >= 1, got %d", fast)
	}
	if slow <= fast {
		return MACDResult{}, domain.InvalidParameter(op, "slow", "must exceed fast (%d), got %d", fast, slow)
	}
	if signal < 1 {
		return MACDResult{}, domain.InvalidParameter(op, "signal", "must be >= 1, got %d", signal)
	}
	if err := checkWindow(op, "slow", slow, prices.Len(), slow+signal-1); err != nil {
		return MACDResult{}, err
	}

	c := prices.Closes()
	ts := prices.Timestamps()
	fastEMA := emaFrom("", ts, c, 0, fast, 2/float64(fast+1))
	slowEMA := emaFrom("", ts, c, 0, slow, 2/float64(slow+1))

	line := domain.NewIndicatorSeries("MACD", ts)
	for t := slowEMA.DefinedFrom; t < len(c); t++ {
		line.Values[t] = fastEMA.Values[t] - slowEMA.Values[t]
	}
	line.DefinedFrom = slowEMA.DefinedFrom

	sig := emaFrom("MACD_SIGNAL", ts, line.Values, line.DefinedFrom, signal, 2/float64(signal+1))
	hist := domain.NewIndicatorSeries("MACD_HIST", ts)
	for t := sig.DefinedFrom; t < len(c); t++ {
		hist.Values[t] = line.Values[t] - sig.Values[t]
	}
	hist.DefinedFrom = sig.DefinedFrom
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}, nil
}

// ATR returns Wilder's average true range. True range is defined from the
// second bar; the first ATR value, at index n, is the mean of TR_1..TR_n.
func ATR(prices domain.PriceSeries, n int) (domain.IndicatorSeries, error) {
	const op = "indicator.ATR"
	if err := checkWindow(op, "n", n, prices.Len(), n+1); err != nil {
		return domain.IndicatorSeries{}, err
	}
	h, l, c := prices.Highs(), prices.Lows(), prices.Closes()
	tr := func(t int) float64 {
		return math.Max(h[t]-l[t], math.Max(math.Abs(h[t]-c[t-1]), math.Abs(l[t]-c[t-1])))
	}

	out := domain.NewIndicatorSeries(fmt.Sprintf("ATR_%d", n), prices.Timestamps())
	var atr float64
	for t := 1; t <= n; t++ {
		atr += tr(t)
	}
	atr /= float64(n)
	out.Values[n] = atr
	nf := float64(n)
	for t := n + 1; t < len(c); t++ {
		atr = (atr*(nf-1) + tr(t)) / nf
		out.Values[t] = atr
	}
	out.DefinedFrom = n
	return out, nil
}

// Oscillator holds the stochastic %K line and its %D average.
type Oscillator struct {
	K domain.IndicatorSeries
	D domain.IndicatorSeries
}

// Stochastic returns %K = 100·(C − LL_k)/(HH_k − LL_k) over k periods and
// %D = SMA_d(%K). A bar whose k-period range is zero has %K = 50.
func Stochastic(prices domain.PriceSeries, k, d int) (Oscillator, error) {
	const op = "indicator.Stochastic"
	if d < 1 {
		return Oscillator{}, domain.InvalidParameter(op, "d", "must be >= 1, got %d", d)
	}
	if err := checkWindow(op, "k", k, prices.Len(), k+d-1); err != nil {
		return Oscillator{}, err
	}
	h, l, c := prices.Highs(), prices.Lows(), prices.Closes()
	ts := prices.Timestamps()

	pk := domain.NewIndicatorSeries(fmt.Sprintf("STOCH_K_%d", k), ts)
	for t := k - 1; t < len(c); t++ {
		hh := floats.Max(h[t-k+1 : t+1])
		ll := floats.Min(l[t-k+1 : t+1])
		if hh == ll {
			pk.Values[t] = 50
			continue
		}
		pk.Values[t] = 100 * (c[t] - ll) / (hh - ll)
	}
	pk.DefinedFrom = k - 1

	pd := smaFrom(fmt.Sprintf("STOCH_D_%d", d), ts, pk.Values, pk.DefinedFrom, d)
	return Oscillator{K: pk, D: pd}, nil
}
