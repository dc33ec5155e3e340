package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServiceName is the service name reported over gRPC health checks.
const HealthServiceName = "medlab"

// HealthChecker reports primary store connectivity.
type HealthChecker interface {
	Status(ctx context.Context) (connected bool)
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) bool

func (f HealthCheckFunc) Status(ctx context.Context) bool { return f(ctx) }

// GRPCHealth serves grpc.health.v1 and polls checker on an interval.
type GRPCHealth struct {
	srv      *grpc.Server
	health   *health.Server
	checker  HealthChecker
	interval time.Duration
	logger   *slog.Logger
}

func NewGRPCHealth(checker HealthChecker, interval time.Duration, logger *slog.Logger) *GRPCHealth {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	h := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	// grpcurl
	reflection.Register(srv)
	return &GRPCHealth{srv: srv, health: h, checker: checker, interval: interval, logger: logger}
}

// Refresh polls once and updates the serving status.
func (g *GRPCHealth) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if g.checker.Status(ctx) {
		st = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(HealthServiceName, st)
	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return st
}

// Serve listens on addr until ctx is done.
func (g *GRPCHealth) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		g.logger.Error("failed to listen", "addr", addr, "error", err)
		return err
	}
	g.Refresh(ctx)

	go func() {
		t := time.NewTicker(g.interval)
		defer t.Stop()
		prev := healthpb.HealthCheckResponse_UNKNOWN
		for {
			select {
			case <-ctx.Done():
				g.health.Shutdown()
				g.srv.GracefulStop()
				return
			case <-t.C:
				if st := g.Refresh(ctx); st != prev {
					g.logger.Info("health.status.changed", "service", HealthServiceName, "status", st.String())
					prev = st
				}
			}
		}
	}()

	g.logger.Info("grpc health server listening", "addr", lis.Addr().String())
	if err := g.srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}
