// Package api serves the analytics engine over gRPC. The Analytics service
// is registered by hand and exchanges google.protobuf.Struct messages whose
// shape follows the JSON views of package report.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"

	"quantlab/internal/engine"
)

// Server hosts the gRPC Analytics service.
type Server struct {
	grpc *grpc.Server
	log  *slog.Logger
}

// NewServer creates a Server exposing e.
func NewServer(e *engine.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	NewAnalyticsService(e, log).RegisterGRPC(gs)
	return &Server{grpc: gs, log: log}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("grpc server listening", "addr", ln.Addr().String())
		errCh <- s.grpc.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("grpc server shutting down")
		s.grpc.GracefulStop()
		return nil
	}
}

// Stop stops the server immediately.
func (s *Server) Stop() { s.grpc.Stop() }

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn("grpc call failed", "method", info.FullMethod, "elapsed", time.Since(start), "error", err)
		} else {
			log.Debug("grpc call", "method", info.FullMethod, "elapsed", time.Since(start))
		}
		return resp, err
	}
}
