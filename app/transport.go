package app

import (
	platformlogger "github.com/zynerotech/eventrelay/logger"
	"github.com/zynerotech/eventrelay/transport"
	"github.com/zynerotech/eventrelay/transport/kafka"
	"github.com/zynerotech/eventrelay/transport/redis"
)

// DefaultDialer routes connection strings to the built-in transports.
func DefaultDialer(m transport.Metrics) transport.Dialer {
	rd := redis.Dialer{Metrics: m, Logger: platformlogger.Component("transport.redis")}
	kd := kafka.Dialer{Metrics: m, Logger: platformlogger.Component("transport.kafka")}
	return transport.Router{
		Schemes: map[string]transport.Dialer{
			"redis":  rd,
			"rediss": rd,
			"kafka":  kd,
		},
		Fallback: rd,
	}
}
