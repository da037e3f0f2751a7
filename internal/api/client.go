package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"quantlab/internal/report"
)

// Client calls the Analytics service and decodes responses into the
// report views.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial opens an insecure connection to addr. The caller closes the
// returned connection.
func Dial(addr string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

// Analyze requests the analysis of one symbol.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (report.AnalysisJSON, error) {
	var out report.AnalysisJSON
	if err := c.call(ctx, MethodAnalyze, req, &out); err != nil {
		return report.AnalysisJSON{}, err
	}
	return out, nil
}

// Backtest requests one backtest.
func (c *Client) Backtest(ctx context.Context, req report.BacktestRequestJSON) (report.BacktestJSON, error) {
	var out report.BacktestJSON
	if err := c.call(ctx, MethodBacktest, req, &out); err != nil {
		return report.BacktestJSON{}, err
	}
	return out, nil
}

// Sweep requests a parameter sweep.
func (c *Client) Sweep(ctx context.Context, req report.SweepRequestJSON) (SweepResponse, error) {
	var out SweepResponse
	if err := c.call(ctx, MethodSweep, req, &out); err != nil {
		return SweepResponse{}, err
	}
	return out, nil
}

// Symbols lists stored symbols.
func (c *Client) Symbols(ctx context.Context, interval string) ([]string, error) {
	var out SymbolsResponse
	if err := c.call(ctx, MethodSymbols, SymbolsRequest{Interval: interval}, &out); err != nil {
		return nil, err
	}
	return out.Symbols, nil
}

// StreamSweep runs a sweep and calls fn for each point as it arrives.
func (c *Client) StreamSweep(ctx context.Context, req report.SweepRequestJSON, fn func(report.SweepPointJSON) error) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], MethodStreamSweep)
	if err != nil {
		return err
	}
	stream := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var p report.SweepPointJSON
		if err := fromStruct(msg, &p); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

func (c *Client) call(ctx context.Context, method string, req, out any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return err
	}
	return fromStruct(resp, out)
}
