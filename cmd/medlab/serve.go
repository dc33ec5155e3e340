package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/medical-lab/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the gRPC health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		srv := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           server.NewServer(a.pipeline, a.exporter, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		primary := a.stores.Primary
		health := server.NewGRPCHealth(server.HealthCheckFunc(func(ctx context.Context) bool {
			// no primary configured: writes always go to the fallback
			return primary == nil || primary.Connected(ctx)
		}), 15*time.Second, logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("http server listening", "addr", srv.Addr, "base_path", server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		if cfg.Server.GRPCHealthAddr != "" {
			g.Go(func() error { return health.Serve(gctx, cfg.Server.GRPCHealthAddr) })
		}
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down...")
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 20*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		return g.Wait()
	},
}
