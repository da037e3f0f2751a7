package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantlab/internal/domain"
)

func returnSeries(values ...float64) domain.ReturnSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := domain.ReturnSeries{Kind: domain.Arithmetic}
	for i, v := range values {
		r.Points = append(r.Points, domain.Point{Timestamp: start.AddDate(0, 0, i), Value: v})
	}
	return r
}

// sample is a deterministic, fat-left-tailed return set.
func sample() domain.ReturnSeries {
	var v []float64
	for i := 0; i < 100; i++ {
		x := float64((i*37)%100)/1000 - 0.05
		if i%17 == 0 {
			x -= 0.08
		}
		v = append(v, x)
	}
	return returnSeries(v...)
}

func TestValueAtRisk_Historical(t *testing.T) {
	// Sorted returns -0.05 .. 0.04 step 0.01; the 10% quantile at rank 0.9 is -0.041.
	r := returnSeries(0.01, -0.02, 0.03, -0.05, 0.00, 0.02, -0.01, 0.04, -0.03, -0.04)
	v, err := ValueAtRisk(r, 0.9, Historical)
	if err != nil {
		t.Fatalf("ValueAtRisk: %v", err)
	}
	if math.Abs(v-0.041) > 1e-12 {
		t.Errorf("VaR(0.9) = %v, want 0.041", v)
	}
	cv, err := ConditionalVaR(r, 0.9, Historical)
	if err != nil {
		t.Fatalf("ConditionalVaR: %v", err)
	}
	if math.Abs(cv-0.05) > 1e-12 {
		t.Errorf("CVaR(0.9) = %v, want 0.05", cv)
	}
}

func TestVaRMonotoneAndCVaRDominates(t *testing.T) {
	r := sample()
	for _, m := range []Method{Historical, Parametric} {
		prev := math.Inf(-1)
		for c := 0.50; c < 0.995; c += 0.01 {
			got, err := Compute(r, c, m)
			if err != nil {
				t.Fatalf("%s Compute(%v): %v", m, c, err)
			}
			if got.VaR < prev-1e-12 {
				t.Errorf("%s VaR(%v) = %v decreased from %v", m, c, got.VaR, prev)
			}
			if got.CVaR < got.VaR-1e-12 {
				t.Errorf("%s CVaR(%v) = %v < VaR %v", m, c, got.CVaR, got.VaR)
			}
			prev = got.VaR
		}
	}
}

func TestParametricNormal(t *testing.T) {
	// Mean 0, sample std sqrt(0.0004/3).
	r := returnSeries(0.01, -0.01, 0.01, -0.01)
	std := math.Sqrt(4 * 0.0001 / 3)
	v, err := ValueAtRisk(r, 0.95, Parametric)
	if err != nil {
		t.Fatalf("ValueAtRisk: %v", err)
	}
	if want := 1.6448536269514722 * std; math.Abs(v-want) > 1e-9 {
		t.Errorf("parametric VaR = %v, want %v", v, want)
	}
}

func TestRiskErrors(t *testing.T) {
	r := sample()
	for _, c := range []float64{0, 1, -0.5, 1.5, math.NaN()} {
		if _, err := ValueAtRisk(r, c, Historical); !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("VaR confidence %v error = %v, want ErrInvalidParameter", c, err)
		}
		if _, err := ConditionalVaR(r, c, Parametric); !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("CVaR confidence %v error = %v, want ErrInvalidParameter", c, err)
		}
	}
	if _, err := ValueAtRisk(returnSeries(0.01), 0.95, Historical); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("single return error = %v, want ErrInsufficientData", err)
	}
	if _, err := ValueAtRisk(r, 0.95, Method("montecarlo")); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("unknown method error = %v, want ErrInvalidParameter", err)
	}
	if _, err := ParseMethod("bogus"); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("ParseMethod error = %v, want ErrInvalidParameter", err)
	}
}
