// Package grpc provides a gRPC server whose calls are authenticated with API
// keys. Host applications register their own services on it.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// Server wraps a grpc.Server with the API key interceptor chain and the
// standard health service. Health checks do not require a key.
type Server struct {
	server *grpc.Server
	health *health.Server
	cfg    config.GRPCConfig
	log    logger.Logger
}

// NewServer creates a Server. Extra options are appended after the
// interceptor chain.
func NewServer(cfg config.GRPCConfig, log logger.Logger, chain *InterceptorChain, opts ...grpc.ServerOption) *Server {
	chain.public[healthpb.Health_Check_FullMethodName] = true
	chain.public[healthpb.Health_Watch_FullMethodName] = true

	opts = append([]grpc.ServerOption{
		chain.ChainUnaryInterceptors(),
		chain.ChainStreamInterceptors(),
	}, opts...)

	s := &Server{
		server: grpc.NewServer(opts...),
		health: health.NewServer(),
		cfg:    cfg,
		log:    log.WithComponent("GRPCServer"),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

// Registrar exposes the server for service registration.
func (s *Server) Registrar() grpc.ServiceRegistrar {
	return s.server
}

// SetServing updates the overall health status.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info(context.Background(), "Starting gRPC server", logger.String("address", lis.Addr().String()))
	s.SetServing(true)
	return s.server.Serve(lis)
}

// Stop drains in-flight calls, forcing the stop when ctx ends first.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()
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
