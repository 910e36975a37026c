package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_prom "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	platformlogger "github.com/zynerotech/eventrelay/logger"
)

// Config represents gRPC server configuration.
type Config struct {
	Enabled               bool          `mapstructure:"enabled"`
	Address               string        `mapstructure:"address"`
	Timeout               time.Duration `mapstructure:"timeout"`
	TLSCertFile           string        `mapstructure:"tls_cert_file"`
	TLSKeyFile            string        `mapstructure:"tls_key_file"`
	MaxConnectionAge      time.Duration `mapstructure:"max_connection_age"`
	MaxConnectionAgeGrace time.Duration `mapstructure:"max_connection_age_grace"`
	KeepAliveTime         time.Duration `mapstructure:"keep_alive_time"`
	KeepAliveTimeout      time.Duration `mapstructure:"keep_alive_timeout"`
	EnforcementMinTime    time.Duration `mapstructure:"enforcement_min_time"`
	EnforcementPermit     bool          `mapstructure:"enforcement_permit"`
}

// Server wraps a grpc.Server with the standard health service registered.
type Server struct {
	srv     *grpc.Server
	health  *health.Server
	metrics *grpc_prom.ServerMetrics
	config  Config
	log     *platformlogger.Logger
}

// NewServer creates a new gRPC server with logging and metrics interceptors.
// Server metrics are registered on reg when it is not nil.
func NewServer(cfg Config, l *platformlogger.Logger, reg prometheus.Registerer, opts ...grpc.ServerOption) (*Server, error) {
	if l == nil {
		l = platformlogger.Component("grpc")
	}

	sm := grpc_prom.NewServerMetrics()
	if reg != nil {
		if err := reg.Register(sm); err != nil {
			return nil, err
		}
	}

	kp := keepalive.EnforcementPolicy{
		MinTime:             cfg.EnforcementMinTime,
		PermitWithoutStream: cfg.EnforcementPermit,
	}
	ka := keepalive.ServerParameters{
		Time:                  cfg.KeepAliveTime,
		Timeout:               cfg.KeepAliveTimeout,
		MaxConnectionAge:      cfg.MaxConnectionAge,
		MaxConnectionAgeGrace: cfg.MaxConnectionAgeGrace,
	}

	serverOpts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(kp),
		grpc.KeepaliveParams(ka),
		grpc_middleware.WithUnaryServerChain(
			LoggingUnaryInterceptor(l),
			MetricsUnaryInterceptor(sm),
		),
		grpc_middleware.WithStreamServerChain(
			LoggingStreamInterceptor(l),
			MetricsStreamInterceptor(sm),
		),
	}
	// zero would expire every handshake immediately
	if cfg.Timeout > 0 {
		serverOpts = append(serverOpts, grpc.ConnectionTimeout(cfg.Timeout))
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	for _, opt := range opts {
		if opt != nil {
			serverOpts = append(serverOpts, opt)
		}
	}

	srv := grpc.NewServer(serverOpts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	sm.InitializeMetrics(srv)

	return &Server{srv: srv, health: hs, metrics: sm, config: cfg, log: l}, nil
}

// Start begins serving on the configured address.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	err := s.srv.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *Server) Run(ctx context.Context) error {
	if !s.config.Enabled {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Msgf("Starting gRPC server on %s", s.config.Address)
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	}
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-ctx.Done():
		s.srv.Stop()
		return ctx.Err()
	case <-stopped:
		return nil
	}
}

// GRPCServer exposes the underlying *grpc.Server.
func (s *Server) GRPCServer() *grpc.Server { return s.srv }
