package kafka

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

const (
	defaultPort         = "9092"
	defaultClientID     = "eventrelay"
	defaultBatchTimeout = 10 * time.Millisecond
)

// Config contains parameters for connecting to Kafka.
type Config struct {
	Brokers []string
	// ClientID prefixes the client id every connection reports to the brokers.
	ClientID    string
	SASL        *SASLConfig
	Compression string
	// BatchTimeout bounds how long the writer waits to fill a batch. The relay
	// sends one event at a time, so it is kept short.
	BatchTimeout time.Duration
}

// SASLConfig describes SASL authentication settings.
type SASLConfig struct {
	Mechanism string
	Username  string
	Password  string
}

// ParseConnectionString parses
//
//	kafka://broker1:9092,broker2:9092?client_id=x&sasl_user=u&sasl_password=p
//
// Supported query keys: client_id, sasl_user, sasl_password,
// sasl_mechanism (PLAIN, SCRAM-SHA-256, SCRAM-SHA-512), compression
// (none, gzip, snappy, lz4, zstd) and batch_timeout (Go duration).
func ParseConnectionString(cs string) (Config, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(cs), "://")
	if !ok || !strings.EqualFold(scheme, "kafka") {
		return Config{}, fmt.Errorf("unsupported kafka connection string %q", cs)
	}
	// The broker list is not a valid URL host once it carries several
	// ports, so only the query part goes through net/url.
	hosts, rawQuery, _ := strings.Cut(rest, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Config{}, fmt.Errorf("parse kafka options: %w", err)
	}

	cfg := Config{
		ClientID:     defaultClientID,
		Compression:  "none",
		BatchTimeout: defaultBatchTimeout,
	}

	for _, b := range strings.Split(strings.TrimSuffix(hosts, "/"), ",") {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(b); err != nil {
			b = net.JoinHostPort(b, defaultPort)
		}
		cfg.Brokers = append(cfg.Brokers, b)
	}
	if len(cfg.Brokers) == 0 {
		return Config{}, fmt.Errorf("kafka connection string has no brokers")
	}

	for key := range q {
		switch key {
		case "client_id", "sasl_user", "sasl_password", "sasl_mechanism", "compression", "batch_timeout":
		default:
			return Config{}, fmt.Errorf("unsupported kafka connection option %q", key)
		}
	}

	if v := q.Get("client_id"); v != "" {
		cfg.ClientID = v
	}
	if v := q.Get("compression"); v != "" {
		if _, ok := compressionCodecs[v]; !ok {
			return Config{}, fmt.Errorf("unsupported compression %q", v)
		}
		cfg.Compression = v
	}
	if v := q.Get("batch_timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid batch_timeout %q", v)
		}
		cfg.BatchTimeout = d
	}

	if user := q.Get("sasl_user"); user != "" {
		mechanism := strings.ToUpper(q.Get("sasl_mechanism"))
		if mechanism == "" {
			mechanism = "SCRAM-SHA-512"
		}
		cfg.SASL = &SASLConfig{
			Mechanism: mechanism,
			Username:  user,
			Password:  q.Get("sasl_password"),
		}
		if _, err := cfg.SASL.mechanism(); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

var compressionCodecs = map[string]kafka.Compression{
	"none":   0,
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// GetCompressionCodec converts the configured compression string to kafka.Compression.
func (c Config) GetCompressionCodec() kafka.Compression {
	return compressionCodecs[c.Compression]
}

func (s *SASLConfig) mechanism() (sasl.Mechanism, error) {
	switch s.Mechanism {
	case "PLAIN":
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, s.Username, s.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, s.Username, s.Password)
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism %q", s.Mechanism)
	}
}
