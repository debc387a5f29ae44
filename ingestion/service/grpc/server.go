package grpc

import (
	"log"
	"net"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// ReceiverService is the health service name reported alongside the
// server-wide "" entry.
const ReceiverService = "taxcallback.Receiver"

// Server exposes grpc.health.v1.Health for the receiver
type Server struct {
	grpcServer *gogrpc.Server
	health     *health.Server
	logger     *log.Logger
}

// NewServer creates a gRPC server reporting SERVING until Shutdown
func NewServer(l *log.Logger, opts ...gogrpc.ServerOption) *Server {
	s := &Server{
		grpcServer: gogrpc.NewServer(opts...),
		health:     health.NewServer(),
		logger:     l,
	}
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	return s
}

func (s *Server) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ReceiverService, status)
}

// Serve blocks serving on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Printf("gRPC Server: health service listening on %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// Shutdown flips health to NOT_SERVING and drains in-flight calls.
func (s *Server) Shutdown() {
	s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.logger.Println("gRPC Server: stopped")
}
