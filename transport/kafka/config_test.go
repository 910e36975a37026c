package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnectionString(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ParseConnectionString("kafka://broker1:9093,broker2")
		require.NoError(t, err)
		assert.Equal(t, []string{"broker1:9093", "broker2:9092"}, cfg.Brokers)
		assert.Equal(t, "eventrelay", cfg.ClientID)
		assert.Nil(t, cfg.SASL)
		assert.Equal(t, kafka.Compression(0), cfg.GetCompressionCodec())
		assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	})

	t.Run("options", func(t *testing.T) {
		cfg, err := ParseConnectionString("KAFKA://broker1:9092/?client_id=web&sasl_user=relay&sasl_password=s3cret&compression=zstd&batch_timeout=50ms")
		require.NoError(t, err)
		assert.Equal(t, []string{"broker1:9092"}, cfg.Brokers)
		assert.Equal(t, "web", cfg.ClientID)
		require.NotNil(t, cfg.SASL)
		assert.Equal(t, "SCRAM-SHA-512", cfg.SASL.Mechanism)
		assert.Equal(t, "relay", cfg.SASL.Username)
		assert.Equal(t, "s3cret", cfg.SASL.Password)
		assert.Equal(t, kafka.Zstd, cfg.GetCompressionCodec())
		assert.Equal(t, 50*time.Millisecond, cfg.BatchTimeout)
	})

	t.Run("plain sasl", func(t *testing.T) {
		cfg, err := ParseConnectionString("kafka://b:9092?sasl_user=u&sasl_password=p&sasl_mechanism=plain")
		require.NoError(t, err)
		assert.Equal(t, "PLAIN", cfg.SASL.Mechanism)
	})

	errorCases := map[string]string{
		"wrong scheme":      "redis://localhost:6379",
		"no brokers":        "kafka://?client_id=x",
		"unknown option":    "kafka://b:9092?acks=all",
		"bad compression":   "kafka://b:9092?compression=brotli",
		"bad batch timeout": "kafka://b:9092?batch_timeout=soon",
		"bad mechanism":     "kafka://b:9092?sasl_user=u&sasl_mechanism=GSSAPI",
	}
	for name, cs := range errorCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConnectionString(cs)
			assert.Error(t, err)
		})
	}
}
