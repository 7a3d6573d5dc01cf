package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/asakaida/placement/internal/handlers"
)

// healthChecker is implemented by the override store connection
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// reportHealth marks PolicyService NOT_SERVING while the override store is
// unreachable, and SERVING again once it answers
func reportHealth(ctx context.Context, checker healthChecker, hs *health.Server, logger *zap.Logger) {
	servingStatus := healthpb.HealthCheckResponse_SERVING
	if err := checker.HealthCheck(ctx); err != nil {
		logger.Warn("override store health check failed", zap.Error(err))
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus(handlers.PolicyServiceName, servingStatus)
}
