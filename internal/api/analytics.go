package api

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"quantlab/internal/engine"
	"quantlab/internal/report"
	"quantlab/internal/strategy"
	"quantlab/internal/util"
)

// AnalyzeRequest is the Analyze request message.
type AnalyzeRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Series   bool   `json:"series,omitempty"`
}

// SymbolsRequest is the Symbols request message.
type SymbolsRequest struct {
	Interval string `json:"interval,omitempty"`
}

// SymbolsResponse is the Symbols response message.
type SymbolsResponse struct {
	Interval string   `json:"interval"`
	Symbols  []string `json:"symbols"`
}

// SweepResponse is the Sweep response message.
type SweepResponse struct {
	Symbol   string                  `json:"symbol"`
	Strategy string                  `json:"strategy"`
	Points   []report.SweepPointJSON `json:"points"`
}

// AnalyticsService implements AnalyticsServer over an Engine.
type AnalyticsService struct {
	engine *engine.Engine
	log    *slog.Logger
}

var _ AnalyticsServer = (*AnalyticsService)(nil)

// NewAnalyticsService creates an AnalyticsService backed by e.
func NewAnalyticsService(e *engine.Engine, log *slog.Logger) *AnalyticsService {
	if log == nil {
		log = slog.Default()
	}
	return &AnalyticsService{engine: e, log: log}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (s *AnalyticsService) RegisterGRPC(gs *grpc.Server) {
	RegisterAnalyticsServer(gs, s)
}

// Analyze runs the full analysis of one stored series.
func (s *AnalyticsService) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AnalyzeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}
	start, err := util.ParseDate(req.Start)
	if err != nil {
		return nil, statusFor(err)
	}
	end, err := util.ParseDate(req.End)
	if err != nil {
		return nil, statusFor(err)
	}

	a, err := s.engine.Analyze(ctx, strings.ToUpper(req.Symbol), req.Interval, start, end)
	if err != nil {
		return nil, statusFor(err)
	}
	return toStruct(report.Analysis(a, req.Series))
}

// Backtest runs one strategy backtest.
func (s *AnalyticsService) Backtest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body report.BacktestRequestJSON
	if err := fromStruct(in, &body); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	body.Symbol = strings.ToUpper(body.Symbol)
	req, err := body.Apply(s.engine.Request(body.Symbol))
	if err != nil {
		return nil, statusFor(err)
	}

	res, err := s.engine.Backtest(ctx, req)
	if err != nil {
		return nil, statusFor(err)
	}
	return toStruct(report.Backtest(res, body.Equity))
}

// Sweep runs a parameter grid and returns every point at once.
func (s *AnalyticsService) Sweep(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.sweep(ctx, in)
	if err != nil {
		return nil, err
	}
	return toStruct(resp)
}

// StreamSweep runs a parameter grid and sends one message per point, in
// grid order, as each point completes.
func (s *AnalyticsService) StreamSweep(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	req, err := s.sweepRequest(in)
	if err != nil {
		return err
	}
	err = s.engine.SweepEach(stream.Context(), req, func(r strategy.SweepResult) error {
		msg, err := toStruct(report.SweepPoint(r))
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		return stream.Send(msg)
	})
	if err != nil {
		return statusFor(err)
	}
	return nil
}

func (s *AnalyticsService) sweepRequest(in *structpb.Struct) (strategy.SweepRequest, error) {
	var body report.SweepRequestJSON
	if err := fromStruct(in, &body); err != nil {
		return strategy.SweepRequest{}, status.Error(codes.InvalidArgument, err.Error())
	}
	body.Symbol = strings.ToUpper(body.Symbol)
	req, err := body.Apply(s.engine.Request(body.Symbol))
	if err != nil {
		return strategy.SweepRequest{}, statusFor(err)
	}
	return req, nil
}

func (s *AnalyticsService) sweep(ctx context.Context, in *structpb.Struct) (SweepResponse, error) {
	req, err := s.sweepRequest(in)
	if err != nil {
		return SweepResponse{}, err
	}
	results, err := s.engine.Sweep(ctx, req)
	if err != nil {
		return SweepResponse{}, statusFor(err)
	}
	return SweepResponse{Symbol: req.Base.Symbol, Strategy: req.Base.Strategy, Points: report.Sweep(results)}, nil
}

// Symbols lists stored symbols at an interval.
func (s *AnalyticsService) Symbols(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SymbolsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Interval == "" {
		req.Interval = s.engine.Options().Interval
	}
	syms, err := s.engine.Symbols(ctx, req.Interval)
	if err != nil {
		return nil, statusFor(err)
	}
	if syms == nil {
		syms = []string{}
	}
	return toStruct(SymbolsResponse{Interval: req.Interval, Symbols: syms})
}
