package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynerotech/eventrelay/codec"
	"github.com/zynerotech/eventrelay/config"
	platformmetrics "github.com/zynerotech/eventrelay/metrics"
	"github.com/zynerotech/eventrelay/relay"
	"github.com/zynerotech/eventrelay/transport"
)

func TestLoadDevConfig(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, config.NewLoader(filepath.Join("..", "..", "configs", "dev.yaml")).Load(cfg))

	assert.Equal(t, "eventrelay", cfg.Application.Name)
	assert.Equal(t, "episerver-events", cfg.Relay.ChannelName)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Relay.ConnectionString)
	require.NotNil(t, cfg.Metrics)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	require.NotNil(t, cfg.Healthcheck)
	assert.Equal(t, "/ready", cfg.Healthcheck.ReadinessPath)
	require.NotNil(t, cfg.Server)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	require.NotNil(t, cfg.GRPC)
	assert.Equal(t, 2*time.Minute, cfg.GRPC.KeepAliveTime)
}

func TestLoadMinimalConfigLeavesComponentsOff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relay:
  channel_name: events
  connection_string: "cache01:6380,password=secret"
`), 0o600))

	cfg := &Config{}
	require.NoError(t, config.NewLoader(path).Load(cfg))
	assert.Nil(t, cfg.Metrics)
	assert.Nil(t, cfg.Server)
	assert.Nil(t, cfg.GRPC)
	assert.Equal(t, relay.Config{ChannelName: "events", ConnectionString: "cache01:6380,password=secret"}, cfg.RelayConfig())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Relay: relay.Config{ChannelName: "events", ConnectionString: "redis://localhost"}}
	}
	require.NoError(t, valid().Validate())

	missingChannel := valid()
	missingChannel.Relay.ChannelName = ""
	assert.ErrorIs(t, missingChannel.Validate(), relay.ErrConfiguration)

	metricsWithoutPort := valid()
	metricsWithoutPort.Metrics = &platformmetrics.Config{Enabled: true}
	assert.Error(t, metricsWithoutPort.Validate())

	metricsDisabled := valid()
	metricsDisabled.Metrics = &platformmetrics.Config{Enabled: false}
	assert.NoError(t, metricsDisabled.Validate())
}

func TestPayloadTypesRoundTrip(t *testing.T) {
	c := codec.New(payloadTypes())
	id := uuid.New()

	params := []any{
		"text",
		[]string{"a", "b"},
		int64(42),
		true,
		id,
		json.RawMessage(`{"n":42,"big":9007199254740993,"k":"v"}`),
	}
	for _, p := range params {
		data, err := c.Encode(transport.Envelope{EventID: "X", Parameters: p})
		require.NoError(t, err)
		e, err := c.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, p, e.Parameters)
	}
}
