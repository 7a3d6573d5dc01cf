package metrics

import (
	"context"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// InterceptorOption configures UnaryServerInterceptor.
type InterceptorOption func(*interceptorConfig)

type interceptorConfig struct {
	clock clockwork.Clock
}

// WithClock sets the clock used to time requests.
func WithClock(clock clockwork.Clock) InterceptorOption {
	return func(c *interceptorConfig) {
		c.clock = clock
	}
}

// UnaryServerInterceptor returns a gRPC interceptor that records metrics for
// each PolicyService call. Errors are counted per method and per status code,
// so policy denials (PermissionDenied) can be told apart from failures.
func UnaryServerInterceptor(collector *Collector, exporter *PrometheusExporter, opts ...InterceptorOption) grpc.UnaryServerInterceptor {
	cfg := &interceptorConfig{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := cfg.clock.Now()
		method := info.FullMethod

		// Record request
		collector.RecordRequest(method)
		if exporter != nil {
			exporter.RecordRequest(method)
		}

		resp, err := handler(ctx, req)

		// Record duration
		duration := cfg.clock.Since(start).Seconds()
		collector.RecordDuration(method, duration)
		if exporter != nil {
			exporter.RecordDuration(method, duration)
		}

		// Record error with its status code
		if err != nil {
			code := status.Code(err).String()
			collector.RecordError(method, code)
			if exporter != nil {
				exporter.RecordError(method, code)
			}
		}

		return resp, err
	}
}
