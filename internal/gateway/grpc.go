// ABOUTME: gRPC server exposing the standard health service and reflection
// ABOUTME: Health status follows store reachability

package gateway

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported through the gRPC health service.
const ServiceName = "weather.Gateway"

// createGRPCServer creates the gRPC server with health and reflection registered.
func createGRPCServer(logger *slog.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	reflection.Register(server)
	logger.Debug("gRPC health and reflection registered")

	return server, hs
}

// updateHealth pings the store and sets the gRPC serving status.
func (g *Gateway) updateHealth(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("store ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// watchHealth refreshes the gRPC health status until ctx ends.
func (g *Gateway) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	g.updateHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.updateHealth(ctx)
		}
	}
}
