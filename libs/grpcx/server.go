package grpcx

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a gRPC server exposing the standard health service.
// Dependency checks are mirrored into the health status by Watch.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewServer(logger *slog.Logger, opts ...grpc.ServerOption) *Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLogInterceptor(logger),
		),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &Server{srv: srv, health: hs, logger: logger}
}

// setServing flips the status reported for service ("" is the whole server).
func (s *Server) setServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// Start listens on addr and stops gracefully when ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.setServing("", true)

	go func() {
		s.logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := s.srv.Serve(lis); err != nil {
			s.logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()
	return nil
}

// Watch runs checks every interval and reports the whole server as serving only
// while all of them pass.
func (s *Server) Watch(ctx context.Context, interval time.Duration, checks ...func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		serving := true
		for _, check := range checks {
			if err := check(ctx); err != nil {
				serving = false
				s.logger.Warn("grpc health check failed", "err", err)
				break
			}
		}
		s.setServing("", serving)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func errNotServing(service string, st healthpb.HealthCheckResponse_ServingStatus) error {
	if service == "" {
		service = "server"
	}
	return fmt.Errorf("%s is %s", service, st.String())
}
