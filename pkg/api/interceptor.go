package api

import (
	"context"
	"strings"

	"github.com/cuemby/flock/pkg/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// RequestInterceptor records request counts and latencies for every worker
// RPC and logs failures.
func RequestInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		method := methodName(info.FullMethod)
		timer := metrics.NewTimer()

		resp, err := handler(ctx, req)

		timer.ObserveDurationVec(metrics.WorkerRequestDuration, method)
		code := status.Code(err)
		metrics.WorkerRequestsTotal.WithLabelValues(method, code.String()).Inc()

		if err != nil {
			logger.Warn().Err(err).Str("method", method).Str("code", code.String()).Msg("Request failed")
		} else {
			logger.Debug().Str("method", method).Dur("duration", timer.Duration()).Msg("Request served")
		}
		return resp, err
	}
}

// methodName extracts the method from a full path
// (e.g., "/flock.v1.Worker/Calculate" -> "Calculate")
func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return fullMethod
	}
	return parts[len(parts)-1]
}
