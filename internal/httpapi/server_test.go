package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quantlab/internal/config"
	"quantlab/internal/domain"
	"quantlab/internal/engine"
	"quantlab/internal/report"
	"quantlab/internal/store"
	"quantlab/internal/strategy/builtins"
)

func newTestServer(t *testing.T, perMin int) *Server {
	t.Helper()
	s := store.NewParquetStore(t.TempDir())
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 160)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/9) + 0.05*float64(i)
		bars[i] = domain.Bar{Symbol: "SPY", Timestamp: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	if err := s.WriteBars(context.Background(), "1d", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(s, builtins.NewRegistry(), engine.OptionsFromConfig(config.Default()), log)
	return NewServer(e, config.Server{RateLimitPerMin: perMin}, log)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" || len(resp.Strategies) != 3 {
		t.Errorf("health = %+v, want ok with 3 strategies", resp)
	}
}

func TestSymbols(t *testing.T) {
	s := newTestServer(t, 0)
	rec := do(t, s, http.MethodGet, "/api/v1/symbols", "")
	var resp SymbolsResponse
	decode(t, rec, &resp)
	if resp.Interval != "1d" || len(resp.Symbols) != 1 || resp.Symbols[0] != "SPY" {
		t.Errorf("symbols = %+v, want 1d [SPY]", resp)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/symbols?interval=1h", "")
	decode(t, rec, &resp)
	if resp.Symbols == nil || len(resp.Symbols) != 0 {
		t.Errorf("1h symbols = %v, want empty list", resp.Symbols)
	}
}

func TestAnalyze(t *testing.T) {
	s := newTestServer(t, 0)
	rec := do(t, s, http.MethodGet, "/api/v1/analyze/spy?series=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp report.AnalysisJSON
	decode(t, rec, &resp)
	if resp.Symbol != "SPY" || resp.Bars != 160 {
		t.Errorf("analysis = %s/%d, want SPY/160", resp.Symbol, resp.Bars)
	}
	if len(resp.Normality.Tests) != 3 {
		t.Errorf("normality tests = %d, want 3", len(resp.Normality.Tests))
	}
	if _, ok := resp.Indicators["RSI_14"]; !ok {
		t.Error("series=true did not include indicator series")
	}
	if _, ok := resp.Latest["SMA_50"]; !ok {
		t.Error("latest SMA_50 missing")
	}
}

func TestAnalyze_Errors(t *testing.T) {
	s := newTestServer(t, 0)
	tests := []struct {
		target string
		want   int
	}{
		{"/api/v1/analyze/QQQ", http.StatusUnprocessableEntity},
		{"/api/v1/analyze/SPY?start=yesterday", http.StatusBadRequest},
		{"/api/v1/analyze/SPY?interval=3d", http.StatusBadRequest},
		{"/api/v1/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(t, s, http.MethodGet, tt.target, "")
		if rec.Code != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.target, rec.Code, tt.want)
		}
	}
}

func TestIndicators(t *testing.T) {
	s := newTestServer(t, 0)
	rec := do(t, s, http.MethodGet, "/api/v1/indicators/SPY?name=SMA_20&name=MACD", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp IndicatorsResponse
	decode(t, rec, &resp)
	if len(resp.Indicators) != 2 {
		t.Fatalf("indicators = %d, want 2", len(resp.Indicators))
	}
	sma := resp.Indicators["SMA_20"]
	if sma.DefinedFrom != 19 || len(sma.Points) != 160 {
		t.Errorf("SMA_20 definedFrom/len = %d/%d, want 19/160", sma.DefinedFrom, len(sma.Points))
	}
	if !math.IsNaN(float64(sma.Points[0].Value)) {
		t.Errorf("warm-up value = %v, want NaN", sma.Points[0].Value)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/indicators/SPY?name=FOO", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown indicator status = %d, want 404", rec.Code)
	}
}

func TestBacktest(t *testing.T) {
	s := newTestServer(t, 0)
	rec := do(t, s, http.MethodPost, "/api/v1/backtest", `{"symbol":"spy","fast":10,"slow":30,"equity":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp report.BacktestJSON
	decode(t, rec, &resp)
	if resp.ID == "" || resp.Symbol != "SPY" {
		t.Errorf("backtest id/symbol = %q/%q", resp.ID, resp.Symbol)
	}
	if resp.Params.Fast != 10 || resp.Params.Slow != 30 {
		t.Errorf("params = %+v, want 10/30", resp.Params)
	}
	if len(resp.Equity) != 160 {
		t.Errorf("equity points = %d, want 160", len(resp.Equity))
	}
	if resp.Comparison.Strategy.InitialCapital != 1000 {
		t.Errorf("initial capital = %v, want 1000", resp.Comparison.Strategy.InitialCapital)
	}
}

func TestBacktest_Errors(t *testing.T) {
	s := newTestServer(t, 0)
	tests := []struct {
		name, body string
		want       int
	}{
		{"malformed", `{"symbol":`, http.StatusBadRequest},
		{"unknown field", `{"symbol":"SPY","foo":1}`, http.StatusBadRequest},
		{"unknown strategy", `{"symbol":"SPY","strategy":"nope"}`, http.StatusBadRequest},
		{"fast >= slow", `{"symbol":"SPY","fast":30,"slow":10}`, http.StatusBadRequest},
		{"cost out of range", `{"symbol":"SPY","cost":1.5}`, http.StatusBadRequest},
		{"missing symbol", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(t, s, http.MethodPost, "/api/v1/backtest", tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, rec.Code, tt.want, rec.Body)
		}
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/backtest", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /backtest status = %d, want 405", rec.Code)
	}
}

func TestSweep(t *testing.T) {
	s := newTestServer(t, 0)
	rec := do(t, s, http.MethodPost, "/api/v1/sweep", `{"symbol":"SPY","fastGrid":[5,10],"slowGrid":[20,30]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp SweepResponse
	decode(t, rec, &resp)
	if len(resp.Points) != 4 {
		t.Fatalf("points = %d, want 4", len(resp.Points))
	}
	if p := resp.Points[1].Params; p.Fast != 5 || p.Slow != 30 {
		t.Errorf("points[1] = %+v, want 5/30 (grid order)", p)
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, 0)
	do(t, s, http.MethodGet, "/healthz", "")
	do(t, s, http.MethodGet, "/api/v1/analyze/QQQ", "")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{
		`quantlab_http_requests_total{code="200",method="GET",route="/healthz"} 1`,
		`quantlab_engine_errors_total{kind="insufficient data"} 1`,
		"quantlab_http_request_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodGet, "/api/v1/strategies", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/strategies", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz under rate limit status = %d, want 200", rec.Code)
	}
}

func TestDiagnostics(t *testing.T) {
	s := newTestServer(t, 0)
	rec := do(t, s, http.MethodGet, "/api/v1/diagnostics/spy", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp report.DiagnosticsJSON
	decode(t, rec, &resp)
	if resp.Symbol != "SPY" || resp.Window != 20 {
		t.Errorf("diagnostics = %s/%d, want SPY/20", resp.Symbol, resp.Window)
	}
	if len(resp.QQSample) != 159 || len(resp.RollingStd.Points) != 159 {
		t.Errorf("lengths = %d/%d, want 159", len(resp.QQSample), len(resp.RollingStd.Points))
	}
	if resp.RollingStd.Points[0].Value.Defined() {
		t.Error("rolling std warm-up is defined")
	}
}

func TestCorrelation(t *testing.T) {
	st := store.NewParquetStore(t.TempDir())
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for k, sym := range []string{"SPY", "TLT"} {
		bars := make([]domain.Bar, 60)
		for i := range bars {
			c := 100 + 5*math.Sin(float64(i)/(4+float64(k)))
			bars[i] = domain.Bar{Symbol: sym, Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
		}
		if err := st.WriteBars(context.Background(), "1d", bars); err != nil {
			t.Fatalf("WriteBars: %v", err)
		}
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(st, builtins.NewRegistry(), engine.OptionsFromConfig(config.Default()), log)
	s := NewServer(e, config.Server{}, log)

	rec := do(t, s, http.MethodGet, "/api/v1/correlation?symbol=spy&symbol=tlt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp report.CorrelationJSON
	decode(t, rec, &resp)
	if resp.Observations != 59 || len(resp.Correlation) != 2 {
		t.Fatalf("correlation = %+v, want 59 observations and a 2x2 matrix", resp)
	}
	if math.Abs(float64(resp.Correlation[0][0])-1) > 1e-9 {
		t.Errorf("Correlation[0][0] = %v, want 1", resp.Correlation[0][0])
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/correlation?symbol=spy", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("single symbol status = %d, want 400", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, 0)
	for _, target := range []string{"/api/v1/backtest", "/api/v1/sweep", "/api/v1/analyze/SPY"} {
		req := httptest.NewRequest(http.MethodOptions, target, nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("OPTIONS %s status = %d, want 204", target, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("OPTIONS %s Allow-Origin = %q, want *", target, got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
			t.Errorf("OPTIONS %s Allow-Methods = %q, want POST listed", target, got)
		}
	}

	rec := do(t, s, http.MethodGet, "/api/v1/strategies", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("GET Allow-Origin = %q, want *", got)
	}
}

func TestClientLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newClientLimiter(2)
	l.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	if !l.Allow("10.0.0.1") || l.Allow("10.0.0.1") {
		t.Fatal("10.0.0.1 should have exactly one request left in its burst")
	}
	if got := l.size(); got != 100 {
		t.Fatalf("tracked clients = %d, want 100", got)
	}

	now = now.Add(time.Minute)
	if !l.Allow("192.168.1.1") {
		t.Fatal("new client rejected")
	}
	if got := l.size(); got != 1 {
		t.Errorf("tracked clients after idle sweep = %d, want 1", got)
	}
	// A client returning after eviction starts with a full bucket, as it
	// would have after a minute of refill.
	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") || l.Allow("10.0.0.1") {
		t.Error("returning client should get a full burst of 2")
	}
}
