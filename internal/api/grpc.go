package api

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// server-wide ("") status.
const ServiceName = "tradebot.Trader"

// Health mirrors engine health into the standard gRPC health service:
// SERVING until the engine stops on a fatal error.
type Health struct {
	srv      *health.Server
	status   StatusSource
	interval time.Duration
}

// NewHealth creates a Health reporting SERVING.
func NewHealth(status StatusSource, interval time.Duration) *Health {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h := &Health{srv: health.NewServer(), status: status, interval: interval}
	h.Sync()
	return h
}

// Server returns the registrable health server.
func (h *Health) Server() *health.Server { return h.srv }

// Sync copies the current engine health into the service.
func (h *Health) Sync() {
	st := healthpb.HealthCheckResponse_SERVING
	if h.status != nil && !h.status.Snapshot().Healthy {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
}

// Watch syncs every interval until ctx is done.
func (h *Health) Watch(ctx context.Context) error {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			h.Sync()
		}
	}
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() { h.srv.Shutdown() }
