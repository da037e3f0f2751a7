package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quantlab/internal/api"
	"quantlab/internal/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	var noGRPC bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the gRPC Analytics service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := a.cfg.Server
			g, ctx := errgroup.WithContext(cmd.Context())

			httpSrv := httpapi.NewServer(a.engine, srv, a.log)
			g.Go(func() error {
				return httpSrv.ListenAndServe(ctx, fmt.Sprintf("%s:%d", srv.Host, srv.Port))
			})
			if !noGRPC && srv.GRPCPort > 0 {
				grpcSrv := api.NewServer(a.engine, a.log)
				g.Go(func() error {
					return grpcSrv.ListenAndServe(ctx, fmt.Sprintf("%s:%d", srv.Host, srv.GRPCPort))
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&noGRPC, "no-grpc", false, "serve HTTP only")
	return cmd
}
