package grpc

import (
	grpc_prom "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
)

// MetricsUnaryInterceptor provides Prometheus metrics for unary calls.
func MetricsUnaryInterceptor(m *grpc_prom.ServerMetrics) grpc.UnaryServerInterceptor {
	return m.UnaryServerInterceptor()
}

// MetricsStreamInterceptor provides Prometheus metrics for streams.
func MetricsStreamInterceptor(m *grpc_prom.ServerMetrics) grpc.StreamServerInterceptor {
	return m.StreamServerInterceptor()
}
