// Package grpc runs the internal gRPC listener used by orchestrators and
// sibling services to health-check the messaging service.
package grpc

import (
	"context"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"messaging-service/internal/observability"
)

// HealthServer serves grpc.health.v1.Health for the whole process and for
// the named service.
type HealthServer struct {
	server      *grpc.Server
	health      *health.Server
	serviceName string
	log         *zap.Logger
}

// NewHealthServer builds the server and marks it SERVING.
func NewHealthServer(serviceName string, log *zap.Logger) *HealthServer {
	if log == nil {
		log = zap.NewNop()
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	return &HealthServer{server: srv, health: hs, serviceName: serviceName, log: log}
}

// Serve blocks until the listener fails or Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

// SetNotServing flips every status to NOT_SERVING so health checks fail during shutdown.
func (s *HealthServer) SetNotServing() {
	s.health.Shutdown()
}

// Stop drains in-flight RPCs, or forces the stop when ctx expires first.
func (s *HealthServer) Stop(ctx context.Context) {
	s.SetNotServing()
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
}
