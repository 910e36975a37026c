package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	platformlogger "github.com/zynerotech/eventrelay/logger"
)

// LoggingUnaryInterceptor returns a unary server interceptor for logging.
// Health checks are polled often, so they are logged at debug level.
func LoggingUnaryInterceptor(l *platformlogger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if l != nil {
			ev := l.Info()
			if info.FullMethod == healthCheckMethod {
				ev = l.Debug()
			}
			ev.Str("method", info.FullMethod).Dur("duration", time.Since(start)).Err(err).Msg("grpc request")
		}
		return resp, err
	}
}

// LoggingStreamInterceptor returns a stream server interceptor for logging.
func LoggingStreamInterceptor(l *platformlogger.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		if l != nil {
			l.Info().Str("method", info.FullMethod).Dur("duration", time.Since(start)).Err(err).Msg("grpc stream")
		}
		return err
	}
}

const healthCheckMethod = "/grpc.health.v1.Health/Check"
