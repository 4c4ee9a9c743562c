package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// UsersServiceName is the health service name reported for the users API.
const UsersServiceName = "inquisitiveGrimalkin.users"

// Health is a running gRPC health server.
type Health struct {
	srv    *grpc.Server
	status *health.Server
	addr   net.Addr
}

// StartGRPC serves grpc.health.v1.Health on addr and returns once listening.
// Both the overall status and UsersServiceName start as SERVING.
func StartGRPC(addr string) (*Health, error) {
	if addr == "" {
		addr = ":50051"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(UsersServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()

	return &Health{srv: srv, status: hs, addr: lis.Addr()}, nil
}

// Addr is the bound listen address.
func (h *Health) Addr() net.Addr {
	return h.addr
}

// SetServing flips the users service between SERVING and NOT_SERVING.
func (h *Health) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.status.SetServingStatus(UsersServiceName, st)
}

// Shutdown marks everything NOT_SERVING and stops gracefully, forcing a stop
// if ctx ends first.
func (h *Health) Shutdown(ctx context.Context) error {
	h.status.Shutdown()
	done := make(chan struct{})
	go func() { h.srv.GracefulStop(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.srv.Stop()
		return ctx.Err()
	}
}
