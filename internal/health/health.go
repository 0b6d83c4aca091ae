package health

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sbilibin2017/chime-auth/internal/logger"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "chime-auth"

// Pinger is satisfied by *sqlx.DB and *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Checker keeps the gRPC health status in sync with database reachability.
type Checker struct {
	pinger   Pinger
	server   *health.Server
	interval time.Duration
	timeout  time.Duration
}

// NewChecker returns a Checker starting in NOT_SERVING until the first probe succeeds.
func NewChecker(pinger Pinger, interval, timeout time.Duration) *Checker {
	c := &Checker{
		pinger:   pinger,
		server:   health.NewServer(),
		interval: interval,
		timeout:  timeout,
	}
	c.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Register attaches the health service to s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.server)
}

// Server exposes the underlying health server.
func (c *Checker) Server() healthpb.HealthServer {
	return c.server
}

// Probe pings the database once and updates the status.
func (c *Checker) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	status := healthpb.HealthCheckResponse_SERVING
	if err := c.pinger.PingContext(ctx); err != nil {
		logger.Log.Warnw("database ping failed", "err", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.setStatus(status)
	return status
}

// Run probes every interval until ctx is done, then marks the service NOT_SERVING.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}

func (c *Checker) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
}
