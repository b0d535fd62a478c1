package grpcserver

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// ServiceName is the health service name reported alongside the overall "".
const ServiceName = "queuekit.connector.bull"

// Probe reports nil when the connector is healthy.
type Probe func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(s *Server) { s.logger = l } }

// WithInterval sets how often probes run.
func WithInterval(d time.Duration) Option { return func(s *Server) { s.interval = d } }

// WithServerOptions passes options through to grpc.NewServer.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(s *Server) { s.grpcOpts = append(s.grpcOpts, opts...) }
}

// Server owns the gRPC server and its health state.
type Server struct {
	grpc     *grpc.Server
	grpcOpts []grpc.ServerOption
	health   *health.Server
	probe    Probe
	interval time.Duration
	logger   log.Logger
	lis      net.Listener
}

// New constructs a gRPC server exposing grpc.health.v1 driven by probe.
func New(probe Probe, opts ...Option) *Server {
	s := &Server{
		probe:    probe,
		interval: 5 * time.Second,
		logger:   log.NewNopLogger(),
		health:   health.NewServer(),
	}
	for _, o := range opts {
		o(s)
	}
	s.grpc = grpc.NewServer(s.grpcOpts...)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Refresh runs the probe once and publishes the result.
func (s *Server) Refresh(ctx context.Context) {
	if err := s.probe(ctx); err != nil {
		s.logger.Debug("health probe failed", log.Err(err))
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) watch(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		s.Refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Serve serves on l until ctx is done, refreshing health in the background.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	go s.watch(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("gRPC health listening", log.Str("addr", l.Addr().String()))
	return s.Serve(ctx, l)
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
