package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"quantlab/internal/domain"
)

// MinNormalitySample is enforced for all three tests alike. Shapiro-Wilk
// is computable from 3 observations but has little power below 20.
const MinNormalitySample = 20

// DefaultSignificance is the default rejection level.
const DefaultSignificance = 0.05

// TestResult is the outcome of one normality test against a normal null.
type TestResult struct {
	Name      string
	Statistic float64
	PValue    float64
	// Reject is true when PValue <= the report's significance level.
	Reject bool
}

// NormalityReport holds three independent tests. No combined verdict is
// derived from them.
type NormalityReport struct {
	N                 int
	Significance      float64
	ShapiroWilk       TestResult
	JarqueBera        TestResult
	KolmogorovSmirnov TestResult
}

// Tests returns the three results in a fixed order.
func (r NormalityReport) Tests() []TestResult {
	return []TestResult{r.ShapiroWilk, r.JarqueBera, r.KolmogorovSmirnov}
}

// TestNormality runs Shapiro-Wilk, Jarque-Bera and Kolmogorov-Smirnov on r.
func TestNormality(r domain.ReturnSeries, significance float64) (NormalityReport, error) {
	return TestNormalityValues(r.Values(), significance)
}

// TestNormalityValues runs the three tests on a plain sample.
func TestNormalityValues(x []float64, significance float64) (NormalityReport, error) {
	const op = "stats.TestNormality"
	if !(significance > 0 && significance < 1) {
		return NormalityReport{}, domain.InvalidParameter(op, "significance", "must be in (0,1), got %v", significance)
	}
	if len(x) < MinNormalitySample {
		return NormalityReport{}, domain.InsufficientData(op, "returns",
			"need at least %d observations, got %d", MinNormalitySample, len(x))
	}
	if stat.Moment(2, x, nil) == 0 {
		return NormalityReport{}, domain.DivisionByZero(op, "returns", "sample has zero variance")
	}

	rep := NormalityReport{N: len(x), Significance: significance}

	w, pw := shapiroWilk(sortedCopy(x))
	rep.ShapiroWilk = verdict("Shapiro-Wilk", w, pw, significance)

	jb, pjb := jarqueBera(x)
	rep.JarqueBera = verdict("Jarque-Bera", jb, pjb, significance)

	d, pd := kolmogorovSmirnov(x)
	rep.KolmogorovSmirnov = verdict("Kolmogorov-Smirnov", d, pd, significance)

	return rep, nil
}

func verdict(name string, statistic, p, significance float64) TestResult {
	return TestResult{Name: name, Statistic: statistic, PValue: p, Reject: p <= significance}
}

// shapiroWilk computes W and its p-value with Royston's (1995) polynomial
// approximations for 11 <= n <= 5000. x must be sorted ascending.
func shapiroWilk(x []float64) (w, p float64) {
	n := len(x)
	nf := float64(n)

	m := make([]float64, n)
	summ2 := 0.0
	for i := range m {
		m[i] = distuv.UnitNormal.Quantile((float64(i+1) - 0.375) / (nf + 0.25))
		summ2 += m[i] * m[i]
	}
	ssumm2 := math.Sqrt(summ2)
	u := 1 / math.Sqrt(nf)

	an := m[n-1]/ssumm2 + poly(u, 0.221157, -0.147981, -2.071190, 4.434685, -2.706056)
	an1 := m[n-2]/ssumm2 + poly(u, 0.042981, -0.293762, -1.752461, 5.682633, -3.582633)
	phi := (summ2 - 2*m[n-1]*m[n-1] - 2*m[n-2]*m[n-2]) / (1 - 2*an*an - 2*an1*an1)
	sphi := math.Sqrt(phi)

	a := make([]float64, n)
	for i := 2; i < n-2; i++ {
		a[i] = m[i] / sphi
	}
	a[n-1], a[n-2] = an, an1
	a[0], a[1] = -an, -an1

	mean := stat.Mean(x, nil)
	num, ss := 0.0, 0.0
	for i := range x {
		num += a[i] * x[i]
		d := x[i] - mean
		ss += d * d
	}
	w = num * num / ss
	if w > 1 {
		w = 1
	}

	ln := math.Log(nf)
	mu := 0.0038915*ln*ln*ln - 0.083751*ln*ln - 0.31082*ln - 1.5861
	sigma := math.Exp(0.0030302*ln*ln - 0.082676*ln - 0.4803)
	z := (math.Log(1-w) - mu) / sigma
	return w, distuv.UnitNormal.Survival(z)
}

// poly evaluates c1*u + c2*u^2 + ... .
func poly(u float64, c ...float64) float64 {
	sum, pow := 0.0, u
	for _, ci := range c {
		sum += ci * pow
		pow *= u
	}
	return sum
}

// jarqueBera returns JB = n/6 (S^2 + (K-3)^2/4) and its chi-square(2) tail.
func jarqueBera(x []float64) (jb, p float64) {
	s, k := shapeMoments(x)
	n := float64(len(x))
	jb = n / 6 * (s*s + (k-3)*(k-3)/4)
	return jb, distuv.ChiSquared{K: 2}.Survival(jb)
}

// kolmogorovSmirnov tests x against N(sample mean, sample std). The p-value
// uses the asymptotic Kolmogorov distribution with Stephens' correction.
func kolmogorovSmirnov(x []float64) (d, p float64) {
	mean, std := stat.MeanStdDev(x, nil)
	dist := distuv.Normal{Mu: mean, Sigma: std}
	sorted := sortedCopy(x)
	n := float64(len(sorted))
	for i, v := range sorted {
		f := dist.CDF(v)
		if hi := float64(i+1)/n - f; hi > d {
			d = hi
		}
		if lo := f - float64(i)/n; lo > d {
			d = lo
		}
	}
	sn := math.Sqrt(n)
	return d, kolmogorovQ((sn + 0.12 + 0.11/sn) * d)
}

// kolmogorovQ is the survival function of the Kolmogorov distribution.
func kolmogorovQ(lambda float64) float64 {
	const eps1, eps2 = 1e-3, 1e-8
	a2 := -2 * lambda * lambda
	fac, sum, prev := 2.0, 0.0, 0.0
	for j := 1; j <= 100; j++ {
		term := fac * math.Exp(a2*float64(j*j))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return math.Min(math.Max(sum, 0), 1)
		}
		fac = -fac
		prev = math.Abs(term)
	}
	// Series did not converge: lambda is near zero.
	return 1
}
