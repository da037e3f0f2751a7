package api

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"quantlab/internal/config"
	"quantlab/internal/domain"
	"quantlab/internal/engine"
	"quantlab/internal/report"
	"quantlab/internal/store"
	"quantlab/internal/strategy/builtins"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	s := store.NewParquetStore(t.TempDir())
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 140)
	for i := range bars {
		c := 50 + 5*math.Sin(float64(i)/6) + 0.02*float64(i)
		bars[i] = domain.Bar{Symbol: "AAPL", Timestamp: start.AddDate(0, 0, i), Open: c, High: c + 0.5, Low: c - 0.5, Close: c}
	}
	if err := s.WriteBars(context.Background(), "1d", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(s, builtins.NewRegistry(), engine.OptionsFromConfig(config.Default()), log)

	ln := bufconn.Listen(1 << 20)
	srv := NewServer(e, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return ln.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return NewClient(conn)
}

func TestAnalyze(t *testing.T) {
	c := newTestClient(t)
	a, err := c.Analyze(context.Background(), AnalyzeRequest{Symbol: "aapl"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Symbol != "AAPL" || a.Bars != 140 {
		t.Errorf("analysis = %s/%d, want AAPL/140", a.Symbol, a.Bars)
	}
	if a.Summary.Count != 139 {
		t.Errorf("Summary.Count = %d, want 139", a.Summary.Count)
	}
	if a.Risk.Method != "historical" {
		t.Errorf("Risk.Method = %q, want historical", a.Risk.Method)
	}
}

func TestAnalyze_ErrorCodes(t *testing.T) {
	c := newTestClient(t)
	tests := []struct {
		name string
		req  AnalyzeRequest
		want codes.Code
	}{
		{"missing symbol", AnalyzeRequest{}, codes.InvalidArgument},
		{"unknown symbol", AnalyzeRequest{Symbol: "MSFT"}, codes.FailedPrecondition},
		{"bad interval", AnalyzeRequest{Symbol: "AAPL", Interval: "2h"}, codes.InvalidArgument},
		{"bad date", AnalyzeRequest{Symbol: "AAPL", Start: "soon"}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		_, err := c.Analyze(context.Background(), tt.req)
		if got := status.Code(err); got != tt.want {
			t.Errorf("%s: code = %v, want %v (%v)", tt.name, got, tt.want, err)
		}
	}
}

func TestBacktest(t *testing.T) {
	c := newTestClient(t)
	res, err := c.Backtest(context.Background(), report.BacktestRequestJSON{Symbol: "AAPL", Strategy: "ema-cross"})
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if res.ID == "" || res.Strategy != "ema-cross" {
		t.Errorf("result id/strategy = %q/%q", res.ID, res.Strategy)
	}
	if res.Params.Fast != 12 || res.Params.Slow != 26 {
		t.Errorf("params = %+v, want ema defaults 12/26", res.Params)
	}
	if res.Comparison.BuyAndHold.Trades != 1 {
		t.Errorf("buy-and-hold trades = %d, want 1", res.Comparison.BuyAndHold.Trades)
	}
}

func TestSweepAndStream(t *testing.T) {
	c := newTestClient(t)
	req := report.SweepRequestJSON{
		BacktestRequestJSON: report.BacktestRequestJSON{Symbol: "AAPL"},
		FastGrid:            []int{5, 10, 20},
		SlowGrid:            []int{10, 30},
	}
	resp, err := c.Sweep(context.Background(), req)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	// (5,10) (5,30) (10,30) (20,30); (10,10) and (20,10) are skipped.
	if len(resp.Points) != 4 {
		t.Fatalf("points = %d, want 4", len(resp.Points))
	}

	var streamed []report.SweepPointJSON
	err = c.StreamSweep(context.Background(), req, func(p report.SweepPointJSON) error {
		streamed = append(streamed, p)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamSweep: %v", err)
	}
	if len(streamed) != len(resp.Points) {
		t.Fatalf("streamed %d points, want %d", len(streamed), len(resp.Points))
	}
	for i := range streamed {
		if streamed[i].Params != resp.Points[i].Params {
			t.Errorf("streamed[%d] = %+v, want %+v", i, streamed[i].Params, resp.Points[i].Params)
		}
	}
}

func TestSymbols(t *testing.T) {
	c := newTestClient(t)
	syms, err := c.Symbols(context.Background(), "")
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(syms) != 1 || syms[0] != "AAPL" {
		t.Errorf("Symbols = %v, want [AAPL]", syms)
	}
}

func TestStatusFor(t *testing.T) {
	if got := status.Code(statusFor(domain.InvalidPrice("op", "p", "bad"))); got != codes.InvalidArgument {
		t.Errorf("InvalidPrice code = %v, want InvalidArgument", got)
	}
	if got := status.Code(statusFor(domain.DivisionByZero("op", "p", "zero"))); got != codes.FailedPrecondition {
		t.Errorf("DivisionByZero code = %v, want FailedPrecondition", got)
	}
	if got := status.Code(statusFor(io.ErrUnexpectedEOF)); got != codes.Internal {
		t.Errorf("plain error code = %v, want Internal", got)
	}
}
