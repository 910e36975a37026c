package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/zynerotech/eventrelay/app"
	platformgrpc "github.com/zynerotech/eventrelay/grpc"
	platformhealthcheck "github.com/zynerotech/eventrelay/healthcheck"
	platformlogger "github.com/zynerotech/eventrelay/logger"
	platformmetrics "github.com/zynerotech/eventrelay/metrics"
	"github.com/zynerotech/eventrelay/registry"
	"github.com/zynerotech/eventrelay/relay"
	platformserver "github.com/zynerotech/eventrelay/server"
)

// Config описывает конфигурационный файл демона
type Config struct {
	Application platformlogger.ApplicationInfo `mapstructure:"application"`
	Logger      platformlogger.Config          `mapstructure:"logger"`
	Relay       relay.Config                   `mapstructure:"relay"`
	Metrics     *platformmetrics.Config        `mapstructure:"metrics"`
	Healthcheck *platformhealthcheck.Config    `mapstructure:"healthcheck"`
	Server      *platformserver.Config         `mapstructure:"server"`
	GRPC        *platformgrpc.Config           `mapstructure:"grpc"`
}

var (
	_ app.ConfigProvider          = (*Config)(nil)
	_ app.OptionalConfigProvider  = (*Config)(nil)
	_ app.ApplicationInfoProvider = (*Config)(nil)
)

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if err := c.Relay.Validate(); err != nil {
		return err
	}
	if c.Metrics != nil && c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be set when metrics are enabled")
	}
	if c.Healthcheck != nil && c.Healthcheck.Enabled && c.Healthcheck.Port <= 0 {
		return fmt.Errorf("healthcheck.port must be set when healthcheck is enabled")
	}
	if c.Server != nil && c.Server.Enabled && c.Server.Address == "" {
		return fmt.Errorf("server.address must be set when the server is enabled")
	}
	if c.GRPC != nil && c.GRPC.Enabled && c.GRPC.Address == "" {
		return fmt.Errorf("grpc.address must be set when grpc is enabled")
	}
	return nil
}

func (c *Config) LoggerConfig() platformlogger.Config             { return c.Logger }
func (c *Config) RelayConfig() relay.Config                       { return c.Relay }
func (c *Config) MetricsConfig() *platformmetrics.Config          { return c.Metrics }
func (c *Config) HealthcheckConfig() *platformhealthcheck.Config  { return c.Healthcheck }
func (c *Config) ServerConfig() *platformserver.Config            { return c.Server }
func (c *Config) GRPCConfig() *platformgrpc.Config                { return c.GRPC }
func (c *Config) ApplicationInfo() platformlogger.ApplicationInfo { return c.Application }

// payloadTypes перечисляет типы параметров событий, которые может переносить
// ретранслятор. Имена являются частью формата сообщений и должны совпадать
// у всех экземпляров на одном канале. Произвольный JSON переносится как
// json.RawMessage: байты доходят без изменений, а числа не превращаются в float64.
func payloadTypes() *registry.Registry {
	return registry.MustNew(
		registry.Of[string]("string"),
		registry.Of[[]string]("strings"),
		registry.Of[int64]("int64"),
		registry.Of[bool]("bool"),
		registry.Of[uuid.UUID]("guid"),
		registry.Of[json.RawMessage]("json"),
	)
}
