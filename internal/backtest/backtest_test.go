package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantlab/internal/domain"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func prices(t *testing.T, c ...float64) domain.PriceSeries {
	t.Helper()
	bars := make([]domain.Bar, len(c))
	for i, v := range c {
		bars[i] = domain.Bar{Timestamp: start.AddDate(0, 0, i), Close: v}
	}
	ps, err := domain.NewPriceSeries("TEST", bars)
	if err != nil {
		t.Fatalf("NewPriceSeries: %v", err)
	}
	return ps
}

func signals(ps domain.PriceSeries, pos ...domain.Position) domain.SignalSeries {
	return domain.SignalSeries{Strategy: "test", Timestamps: ps.Timestamps(), Positions: pos}
}

const (
	F = domain.Flat
	L = domain.Long
	S = domain.Short
)

func TestRun_ShiftAndForceClose(t *testing.T) {
	ps := prices(t, 100, 110, 121)
	res, err := Run(ps, signals(ps, L, L, L), Options{InitialCapital: 1000, Cost: 0.01, OpenPosition: ForceClose})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []float64{1000, 1090, 1188.1}
	for i, w := range want {
		if !approx(res.Equity.Values[i], w, 1e-9) {
			t.Errorf("equity[%d] = %v, want %v", i, res.Equity.Values[i], w)
		}
	}
	if res.Positions[0] != F {
		t.Errorf("Positions[0] = %v, want FLAT", res.Positions[0])
	}
	if len(res.Trades) != 1 {
		t.Fatalf("len(Trades) = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.EntryIndex != 0 || tr.ExitIndex != 2 || !tr.ForceClosed {
		t.Errorf("trade = %+v, want entry 0, exit 2, force-closed", tr)
	}
	if !approx(tr.GrossReturn, 0.21, 1e-12) || !approx(tr.Return, 0.19, 1e-12) {
		t.Errorf("trade returns = %v/%v, want 0.21/0.19", tr.GrossReturn, tr.Return)
	}
	if res.Open != nil {
		t.Errorf("Open = %+v, want nil under force-close", res.Open)
	}
}

func TestRun_NoLookAhead(t *testing.T) {
	// Going long on the bar of the jump must not capture the jump.
	ps := prices(t, 100, 100, 200, 200)
	res, err := Run(ps, signals(ps, F, F, L, F), Options{InitialCapital: 1000})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Equity.Final(); got != 1000 {
		t.Errorf("final equity = %v, want 1000", got)
	}

	res, err = Run(ps, signals(ps, F, L, F, F), Options{InitialCapital: 1000})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Equity.Final(); got != 2000 {
		t.Errorf("final equity = %v, want 2000", got)
	}
	if len(res.Trades) != 1 || res.Trades[0].EntryIndex != 1 || res.Trades[0].ExitIndex != 2 {
		t.Errorf("trades = %+v, want one trade from bar 1 to bar 2", res.Trades)
	}
}

func TestRun_ZeroCostIsFrictionless(t *testing.T) {
	ps := prices(t, 100, 103, 99, 104, 108, 101, 97, 105)
	sig := signals(ps, F, L, L, F, S, S, L, L)
	res, err := Run(ps, sig, Options{InitialCapital: 1, Cost: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c := ps.Closes()
	want := 1.0
	for i := 1; i < len(c); i++ {
		want *= 1 + float64(sig.Positions[i-1])*(c[i]/c[i-1]-1)
	}
	if !approx(res.Equity.Final(), want, 1e-12) {
		t.Errorf("final equity = %v, want %v", res.Equity.Final(), want)
	}
}

func TestRun_CostOnlyOnPositionChange(t *testing.T) {
	ps := prices(t, 100, 103, 99, 104, 108, 101, 97, 105)
	sig := signals(ps, F, L, L, F, S, S, L, L)
	free, err := Run(ps, sig, Options{InitialCapital: 1, Cost: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	paid, err := Run(ps, sig, Options{InitialCapital: 1, Cost: 0.002})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Turnover per period: 0→L, L→F, F→S, S→L (flip), plus the forced exit.
	wantCharge := map[int]float64{2: 0.002, 4: 0.002, 5: 0.002, 7: 0.004 + 0.002}
	for i := 1; i < ps.Len(); i++ {
		got := free.Returns[i] - paid.Returns[i]
		if !approx(got, wantCharge[i], 1e-15) {
			t.Errorf("cost charged at bar %d = %v, want %v", i, got, wantCharge[i])
		}
	}
	if len(paid.Trades) != 3 {
		t.Errorf("len(Trades) = %d, want 3", len(paid.Trades))
	}
	if s := paid.Trades[1].Side; s != S {
		t.Errorf("second trade side = %v, want SHORT", s)
	}
}

func TestRun_ShortRuin(t *testing.T) {
	// The tripling bar costs a short 200%; the later 50% drop must not
	// compound against a negative balance.
	ps := prices(t, 100, 100, 300, 150)
	for _, policy := range []OpenPositionPolicy{ForceClose, Exclude} {
		res, err := Run(ps, signals(ps, S, S, S, S), Options{InitialCapital: 1000, OpenPosition: policy})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		want := []float64{1000, 1000, 0, 0}
		for i, w := range want {
			if res.Equity.Values[i] != w {
				t.Errorf("%s: equity[%d] = %v, want %v", policy, i, res.Equity.Values[i], w)
			}
		}
		if !res.Ruined || res.RuinIndex != 2 {
			t.Errorf("%s: Ruined/RuinIndex = %v/%d, want true/2", policy, res.Ruined, res.RuinIndex)
		}
		if res.Positions[3] != F || res.Returns[2] != -1 || res.Returns[3] != 0 {
			t.Errorf("%s: after ruin Positions[3]=%v Returns=%v, want FLAT and [.. -1 0]", policy, res.Positions[3], res.Returns)
		}
		if len(res.Trades) != 1 || res.Open != nil {
			t.Fatalf("%s: Trades/Open = %d/%v, want one closed trade", policy, len(res.Trades), res.Open)
		}
		if tr := res.Trades[0]; tr.ExitIndex != 2 || !tr.ForceClosed || tr.Side != S {
			t.Errorf("%s: trade = %+v, want short liquidated at 2", policy, tr)
		}
	}
}

func TestRun_RuinOnLastBarExclude(t *testing.T) {
	ps := prices(t, 100, 100, 300)
	res, err := Run(ps, signals(ps, S, S, S), Options{InitialCapital: 1000, Cost: 0.01, OpenPosition: Exclude})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Open != nil || len(res.Trades) != 1 {
		t.Fatalf("Trades/Open = %d/%v, want the liquidation recorded as a trade", len(res.Trades), res.Open)
	}
	if tr := res.Trades[0]; !tr.ForceClosed || !approx(tr.Cost, 0.02, 1e-15) {
		t.Errorf("trade = %+v, want force-closed with both legs charged", tr)
	}
}

func TestRun_ExcludeOpenPosition(t *testing.T) {
	ps := prices(t, 100, 110, 121)
	res, err := Run(ps, signals(ps, L, L, L), Options{InitialCapital: 1000, Cost: 0.01, OpenPosition: Exclude})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("len(Trades) = %d, want 0", len(res.Trades))
	}
	if res.Open == nil || res.Open.ForceClosed || res.Open.ExitIndex != 2 {
		t.Fatalf("Open = %+v, want unrealized position marked at bar 2", res.Open)
	}
	if want := 1000 * 1.09 * 1.1; !approx(res.Equity.Final(), want, 1e-9) {
		t.Errorf("final equity = %v, want %v", res.Equity.Final(), want)
	}
}

func TestRun_SignalOnLastBarIgnored(t *testing.T) {
	ps := prices(t, 100, 101, 102)
	res, err := Run(ps, signals(ps, F, F, L), DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 || res.Equity.Final() != 1000 {
		t.Errorf("trades=%d final=%v, want no trades and untouched capital", len(res.Trades), res.Equity.Final())
	}
}

func TestRun_WarmUpSignalsAreFlat(t *testing.T) {
	ps := prices(t, 100, 110, 121)
	sig := signals(ps, L, L, L)
	sig.DefinedFrom = 1
	res, err := Run(ps, sig, Options{InitialCapital: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Positions[1] != F || res.Positions[2] != L {
		t.Errorf("positions = %v, want [FLAT FLAT LONG]", res.Positions)
	}
}

func TestRun_Errors(t *testing.T) {
	ps := prices(t, 100, 101, 102)
	other := prices(t, 1, 2, 3, 4)

	tests := []struct {
		name string
		sig  domain.SignalSeries
		opts Options
		want error
	}{
		{"length mismatch", signals(ps, L, L), DefaultOptions(), domain.ErrInvalidParameter},
		{"timestamp mismatch", domain.SignalSeries{Timestamps: other.Timestamps()[1:], Positions: []domain.Position{L, L, L}}, DefaultOptions(), domain.ErrInvalidParameter},
		{"cost one", signals(ps, L, L, L), Options{InitialCapital: 1, Cost: 1}, domain.ErrInvalidParameter},
		{"negative cost", signals(ps, L, L, L), Options{InitialCapital: 1, Cost: -0.1}, domain.ErrInvalidParameter},
		{"zero capital", signals(ps, L, L, L), Options{}, domain.ErrInvalidParameter},
		{"bad policy", signals(ps, L, L, L), Options{InitialCapital: 1, OpenPosition: "hold"}, domain.ErrInvalidParameter},
		{"bad position", signals(ps, L, 2, L), DefaultOptions(), domain.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Run(ps, tt.sig, tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("Run error = %v, want %v", err, tt.want)
			}
		})
	}

	bad := prices(t, 100, 0, 102)
	if _, err := Run(bad, signals(bad, L, L, L), DefaultOptions()); !errors.Is(err, domain.ErrInvalidPrice) {
		t.Errorf("zero close error = %v, want ErrInvalidPrice", err)
	}
}

func TestBuyAndHold(t *testing.T) {
	ps := prices(t, 100, 110, 121)
	res, err := BuyAndHold(ps, Options{InitialCapital: 1000})
	if err != nil {
		t.Fatalf("BuyAndHold: %v", err)
	}
	if !approx(res.Equity.Final(), 1210, 1e-9) {
		t.Errorf("final equity = %v, want 1210", res.Equity.Final())
	}
	if len(res.Trades) != 1 || res.Trades[0].EntryPrice != 100 {
		t.Errorf("trades = %+v, want one trade entered at 100", res.Trades)
	}
}
