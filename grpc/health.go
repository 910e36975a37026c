package grpc

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SetServing reports service as SERVING or NOT_SERVING. The empty name is the
// overall server status.
func (s *Server) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// TrackReadiness polls ready every interval and mirrors the result into the
// health status of service and of the server as a whole. It returns when ctx
// is done.
func (s *Server) TrackReadiness(ctx context.Context, service string, ready func() bool, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	update := func() {
		ok := ready()
		s.SetServing(service, ok)
		if service != "" {
			s.SetServing("", ok)
		}
	}
	update()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
