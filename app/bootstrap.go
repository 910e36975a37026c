package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zynerotech/eventrelay/codec"
	"github.com/zynerotech/eventrelay/eventbus"
	platformgrpc "github.com/zynerotech/eventrelay/grpc"
	platformhealthcheck "github.com/zynerotech/eventrelay/healthcheck"
	platformlogger "github.com/zynerotech/eventrelay/logger"
	platformmetrics "github.com/zynerotech/eventrelay/metrics"
	"github.com/zynerotech/eventrelay/registry"
	"github.com/zynerotech/eventrelay/relay"
	platformserver "github.com/zynerotech/eventrelay/server"
	"github.com/zynerotech/eventrelay/transport"
)

// HealthService is the gRPC health service name that follows relay readiness.
const HealthService = "eventrelay"

// ConfigProvider describes configuration required to bootstrap the relay.
type ConfigProvider interface {
	Validate() error
	LoggerConfig() platformlogger.Config
	RelayConfig() relay.Config
}

// OptionalConfigProvider describes optional configuration methods that may not be implemented
// by all services. These methods should return nil if the component is not needed.
type OptionalConfigProvider interface {
	MetricsConfig() *platformmetrics.Config
	HealthcheckConfig() *platformhealthcheck.Config
	ServerConfig() *platformserver.Config
	GRPCConfig() *platformgrpc.Config
}

// ApplicationInfoProvider adds application fields (app_name, environment, ...)
// to every log line when implemented by the configuration.
type ApplicationInfoProvider interface {
	ApplicationInfo() platformlogger.ApplicationInfo
}

// App contains the initialized relay and the infrastructure around it.
// Logger, Relay and Bus are always present, other components may be nil.
type App struct {
	Config      ConfigProvider
	Logger      *platformlogger.Logger
	Metrics     *platformmetrics.Metrics
	Healthcheck *platformhealthcheck.Healthcheck
	Server      *platformserver.Server
	GRPCServer  *platformgrpc.Server
	Codec       *codec.Codec
	Bus         *eventbus.Bus
	Relay       *relay.Relay
}

// AppBuilder provides a fluent interface for building App instances
type AppBuilder struct {
	config      ConfigProvider
	logger      *platformlogger.Logger
	metrics     *platformmetrics.Metrics
	healthcheck *platformhealthcheck.Healthcheck
	server      *platformserver.Server
	grpcServer  *platformgrpc.Server
	registry    *registry.Registry
	dialer      transport.Dialer
	identity    *relay.Identity
	errors      []error
}

// NewBuilder creates a new AppBuilder with the given configuration
func NewBuilder(cfg ConfigProvider) *AppBuilder {
	return &AppBuilder{
		config: cfg,
		errors: make([]error, 0),
	}
}

// initOptionalComponent initializes optional component based on configuration
// provided by OptionalConfigProvider. It appends initialization errors to the
// builder and logs successful initialization.
func initOptionalComponent[T any, C any](b *AppBuilder, field *T, getCfg func(OptionalConfigProvider) *C, initFn func(C) (T, error), name, successMsg string) {
	optCfg, ok := b.config.(OptionalConfigProvider)
	if !ok {
		return
	}

	cfg := getCfg(optCfg)
	if cfg == nil {
		return
	}

	component, err := initFn(*cfg)
	if err != nil {
		b.errors = append(b.errors, fmt.Errorf("init %s: %w", name, err))
		return
	}

	*field = component
	platformlogger.Info().Msg(successMsg)
}

// WithLogger initializes the logger (required component)
func (b *AppBuilder) WithLogger() *AppBuilder {
	if b.logger != nil {
		return b
	}

	if info, ok := b.config.(ApplicationInfoProvider); ok {
		err := platformlogger.InitGlobal(platformlogger.GlobalConfig{
			Logger:      b.config.LoggerConfig(),
			Application: info.ApplicationInfo(),
		})
		if err != nil {
			b.errors = append(b.errors, fmt.Errorf("init logger: %w", err))
			return b
		}
		b.logger = platformlogger.GetGlobal()
		platformlogger.Info().Msg("Logger initialized")
		return b
	}

	logger, err := platformlogger.New(b.config.LoggerConfig())
	if err != nil {
		b.errors = append(b.errors, fmt.Errorf("init logger: %w", err))
		return b
	}

	platformlogger.SetGlobal(logger)
	b.logger = logger
	platformlogger.Info().Msg("Logger initialized")
	return b
}

// WithMetrics initializes metrics if configuration is provided
func (b *AppBuilder) WithMetrics() *AppBuilder {
	if b.metrics != nil {
		return b
	}
	initOptionalComponent(b, &b.metrics, func(o OptionalConfigProvider) *platformmetrics.Config { return o.MetricsConfig() }, func(cfg platformmetrics.Config) (*platformmetrics.Metrics, error) {
		return platformmetrics.New(cfg)
	}, "metrics", "Metrics initialized")
	return b
}

// WithHealthcheck initializes healthcheck if configuration is provided.
// Call after WithMetrics to have its requests counted.
func (b *AppBuilder) WithHealthcheck() *AppBuilder {
	if b.healthcheck != nil {
		return b
	}
	initOptionalComponent(b, &b.healthcheck, func(o OptionalConfigProvider) *platformhealthcheck.Config { return o.HealthcheckConfig() }, func(cfg platformhealthcheck.Config) (*platformhealthcheck.Healthcheck, error) {
		var opts []platformhealthcheck.Option
		if b.metrics != nil {
			opts = append(opts, platformhealthcheck.WithMiddleware(b.metrics.HTTPMiddleware))
		}
		return platformhealthcheck.New(cfg, opts...)
	}, "healthcheck", "Healthcheck initialized")
	return b
}

// WithServer initializes HTTP server if configuration is provided
func (b *AppBuilder) WithServer() *AppBuilder {
	if b.server != nil {
		return b
	}
	initOptionalComponent(b, &b.server, func(o OptionalConfigProvider) *platformserver.Config { return o.ServerConfig() }, func(cfg platformserver.Config) (*platformserver.Server, error) {
		if b.metrics != nil {
			return platformserver.New(cfg, b.metrics.FiberMiddleware())
		}
		return platformserver.New(cfg)
	}, "server", "HTTP server initialized")
	return b
}

// WithGRPC initializes gRPC server if configuration is provided
func (b *AppBuilder) WithGRPC() *AppBuilder {
	if b.grpcServer != nil {
		return b
	}
	initOptionalComponent(b, &b.grpcServer, func(o OptionalConfigProvider) *platformgrpc.Config { return o.GRPCConfig() }, func(cfg platformgrpc.Config) (*platformgrpc.Server, error) {
		var reg prometheus.Registerer
		if b.metrics != nil && b.metrics.Enabled() {
			reg = b.metrics.Registerer()
		}
		return platformgrpc.NewServer(cfg, platformlogger.Component("grpc"), reg)
	}, "grpc server", "gRPC server initialized")
	return b
}

// WithRegistry sets the payload types the relay can carry. Without it only
// events without parameters can be relayed.
func (b *AppBuilder) WithRegistry(reg *registry.Registry) *AppBuilder {
	b.registry = reg
	return b
}

// WithDialer overrides the transport. The default routes redis://, rediss://
// and kafka:// connection strings and treats anything else as a
// StackExchange-style Redis connection string.
func (b *AppBuilder) WithDialer(d transport.Dialer) *AppBuilder {
	b.dialer = d
	return b
}

// WithIdentity overrides the process identity used for self-origin filtering.
func (b *AppBuilder) WithIdentity(id relay.Identity) *AppBuilder {
	b.identity = &id
	return b
}

// WithAll initializes all available components based on configuration
func (b *AppBuilder) WithAll() *AppBuilder {
	return b.WithLogger().
		WithMetrics().
		WithHealthcheck().
		WithServer().
		WithGRPC()
}

// Build wires the relay, the event bus and the optional components and
// returns any errors that occurred during initialization
func (b *AppBuilder) Build() (*App, error) {
	// Logger is required
	if b.logger == nil {
		b.WithLogger()
	}

	if err := b.config.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("validate config: %w", err))
	}

	if len(b.errors) > 0 {
		return nil, fmt.Errorf("failed to build app: %w", errors.Join(b.errors...))
	}

	relayCfg := b.config.RelayConfig()

	id, err := b.resolveIdentity(relayCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build app: %w", err)
	}

	c := codec.New(b.registry)

	var transportMetrics transport.Metrics = &transport.NoOpMetrics{}
	if b.metrics != nil {
		transportMetrics = b.metrics.Transport()
	}

	dialer := b.dialer
	if dialer == nil {
		dialer = DefaultDialer(transportMetrics)
	}

	bus := eventbus.New(id, nil)
	r := relay.New(relayCfg, id, c, dialer, bus, relay.WithMetrics(transportMetrics))
	bus.SetSender(r)

	if b.healthcheck != nil {
		b.healthcheck.Register("relay", func(context.Context) error {
			if !r.Ready() {
				return fmt.Errorf("relay is %s", r.State())
			}
			return nil
		})
	}
	if b.server != nil {
		platformserver.NewAPI(bus, c, r).Register(b.server.App())
	}

	platformlogger.Info().
		Str("server_name", id.ServerName).
		Str("application_name", id.ApplicationName).
		Str("channel", relayCfg.ChannelName).
		Msg("All requested application components initialized successfully")

	return &App{
		Config:      b.config,
		Logger:      b.logger,
		Metrics:     b.metrics,
		Healthcheck: b.healthcheck,
		Server:      b.server,
		GRPCServer:  b.grpcServer,
		Codec:       c,
		Bus:         bus,
		Relay:       r,
	}, nil
}

func (b *AppBuilder) resolveIdentity(cfg relay.Config) (relay.Identity, error) {
	if b.identity != nil {
		return *b.identity, nil
	}
	return relay.DefaultIdentity(cfg.ApplicationName)
}

// New initializes all components based on the provided configuration
func New(cfg ConfigProvider, reg *registry.Registry) (*App, error) {
	return NewBuilder(cfg).WithAll().WithRegistry(reg).Build()
}

// Run starts the relay and serves every configured component until ctx is
// cancelled. A relay that fails to start is returned as an error before any
// listener is opened.
func (a *App) Run(ctx context.Context) error {
	if err := a.Relay.Start(ctx); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.Metrics != nil {
		g.Go(func() error { return a.Metrics.Run(gctx) })
	}
	if a.Healthcheck != nil {
		g.Go(func() error { return a.Healthcheck.Run(gctx) })
	}
	if a.Server != nil {
		g.Go(func() error { return a.Server.Run(gctx) })
	}
	if a.GRPCServer != nil {
		g.Go(func() error { return a.GRPCServer.Run(gctx) })
		g.Go(func() error {
			a.GRPCServer.TrackReadiness(gctx, HealthService, a.Relay.Ready, time.Second)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Relay.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop relay: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close stops the relay and every component that is still running.
func (a *App) Close() error {
	if a == nil {
		return nil
	}

	platformlogger.Info().Msg("Shutting down application components")

	var errs []error

	if a.Relay != nil {
		if err := a.Relay.Stop(context.Background()); err != nil {
			platformlogger.Error().Err(err).Msg("Failed to stop relay")
			errs = append(errs, err)
		}
	}

	if a.Server != nil {
		if err := a.Server.Stop(); err != nil {
			platformlogger.Error().Err(err).Msg("Failed to stop HTTP server")
			errs = append(errs, err)
		}
	}

	if a.GRPCServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.GRPCServer.Stop(ctx); err != nil {
			platformlogger.Error().Err(err).Msg("Failed to stop gRPC server")
			errs = append(errs, err)
		}
		cancel()
	}

	if a.Metrics != nil {
		if err := a.Metrics.Stop(); err != nil {
			platformlogger.Error().Err(err).Msg("Failed to stop metrics")
			errs = append(errs, err)
		}
	}

	if a.Healthcheck != nil {
		if err := a.Healthcheck.Stop(); err != nil {
			platformlogger.Error().Err(err).Msg("Failed to stop healthcheck")
			errs = append(errs, err)
		}
	}

	platformlogger.Info().Msg("Application shutdown completed")
	return errors.Join(errs...)
}
