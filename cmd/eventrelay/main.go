// Command eventrelay runs the event relay daemon: it joins a shared Redis or
// Kafka channel, forwards locally raised events to it and hands events raised
// by other instances to the local event bus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zynerotech/eventrelay/app"
	"github.com/zynerotech/eventrelay/config"
	platformgrpc "github.com/zynerotech/eventrelay/grpc"
	platformlogger "github.com/zynerotech/eventrelay/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the config file (default configs/<APP_ENV>.yaml)")
		probe      = flag.String("probe", "", "check the gRPC health of a running instance at host:port and exit")
	)
	flag.Parse()

	if *probe != "" {
		if err := runProbe(*probe); err != nil {
			log.Fatalf("probe: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("eventrelay: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	loader := config.NewLoader(configPath)
	cfg := &Config{}
	if err := loader.Load(cfg); err != nil {
		return err
	}

	application, err := app.New(cfg, payloadTypes())
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			platformlogger.Error().Err(err).Msg("Shutdown finished with errors")
		}
	}()

	// Уровень логирования меняется без перезапуска
	loader.OnConfigChange(func(l *config.Loader) {
		level := l.GetString("logger.level")
		if level == "" {
			return
		}
		if err := platformlogger.SetLevel(level); err != nil {
			platformlogger.Warn().Err(err).Str("level", level).Msg("Ignoring invalid log level from config change")
			return
		}
		platformlogger.Info().Str("level", level).Msg("Log level updated")
	})
	loader.WatchConfig()

	platformlogger.Info().Str("config", loader.GetConfigPath()).Msg("Starting event relay")
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	platformlogger.Info().Msg("Event relay stopped")
	return nil
}

func runProbe(addr string) error {
	client, err := platformgrpc.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status, err := client.Check(ctx, app.HealthService)
	if err != nil {
		return err
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", addr, status)
	}
	fmt.Println(status)
	return nil
}
