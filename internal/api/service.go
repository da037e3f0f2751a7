package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "quantlab.v1.Analytics"

// Full method names.
const (
	MethodAnalyze     = "/" + ServiceName + "/Analyze"
	MethodBacktest    = "/" + ServiceName + "/Backtest"
	MethodSweep       = "/" + ServiceName + "/Sweep"
	MethodSymbols     = "/" + ServiceName + "/Symbols"
	MethodStreamSweep = "/" + ServiceName + "/StreamSweep"
)

// AnalyticsServer is the server API for the Analytics service. Messages are
// google.protobuf.Struct values carrying the JSON views of package report.
type AnalyticsServer interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Backtest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Sweep(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Symbols(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamSweep(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes the Analytics service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyticsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: unary(MethodAnalyze, AnalyticsServer.Analyze)},
		{MethodName: "Backtest", Handler: unary(MethodBacktest, AnalyticsServer.Backtest)},
		{MethodName: "Sweep", Handler: unary(MethodSweep, AnalyticsServer.Sweep)},
		{MethodName: "Symbols", Handler: unary(MethodSymbols, AnalyticsServer.Symbols)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamSweep", Handler: streamSweepHandler, ServerStreams: true},
	},
	Metadata: "quantlab/v1/analytics.proto",
}

// RegisterAnalyticsServer registers srv on s.
func RegisterAnalyticsServer(s grpc.ServiceRegistrar, srv AnalyticsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(AnalyticsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary adapts a method expression to a grpc.MethodHandler.
func unary(fullMethod string, m unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(AnalyticsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(AnalyticsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamSweepHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AnalyticsServer).StreamSweep(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}
