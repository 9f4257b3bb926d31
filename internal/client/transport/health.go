package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/retry"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthProbe asks a gRPC endpoint for its serving status.
type HealthProbe struct {
	client  healthpb.HealthClient
	service string
	timeout time.Duration
}

func NewHealthProbe(conn grpc.ClientConnInterface, service string, timeout time.Duration) *HealthProbe {
	return &HealthProbe{client: healthpb.NewHealthClient(conn), service: service, timeout: timeout}
}

func (p *HealthProbe) Ping(ctx context.Context) error {
	resp, err := retry.WithTimeout(ctx, p.timeout, func(ctx context.Context) (*healthpb.HealthCheckResponse, error) {
		return p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	})
	if err != nil {
		return MapError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", common.ErrUnavailable, resp.GetStatus())
	}
	return nil
}
