// Package grpc exposes the standard gRPC health service so orchestrators can
// probe the conversation backend without going through HTTP.
package grpc

import (
	"context"
	"net"
	"time"

	"provider-messaging/backend/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the health service.
const ServiceName = "provider-messaging.conversation"

// StatusSource reports whether the process can serve requests.
type StatusSource interface {
	IsSystemHealthy() bool
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	source StatusSource
	log    *logger.Logger
}

func NewServer(source StatusSource, log *logger.Logger) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		source: source,
		log:    log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.sync()
	return s
}

func (s *Server) sync() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.source != nil && !s.source.IsSystemHealthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Watch mirrors the source status into the health service until ctx ends.
func (s *Server) Watch(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync()
		}
	}
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
