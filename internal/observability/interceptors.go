package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"voice-reminder-assistant/internal/observability/metrics"
)

const healthService = "grpc.health.v1.Health"

// splitMethod splits "/pkg.Service/Method" into its service and method.
func splitMethod(fullMethod string) (service, method string) {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "unknown", name
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// callEvent picks the level for a finished call. Health checks stay at trace
// unless they fail.
func callEvent(logger *zerolog.Logger, service string, code codes.Code) *zerolog.Event {
	switch {
	case code != codes.OK && code != codes.Canceled:
		return logger.Warn()
	case service == healthService:
		return logger.Trace()
	default:
		return logger.Debug()
	}
}

// UnaryServerInterceptor returns a gRPC unary interceptor for metrics and logging.
func UnaryServerInterceptor(m *metrics.Metrics, logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		code := status.Code(err)
		m.RecordRPC(info.FullMethod, code.String(), duration.Seconds())

		service, method := splitMethod(info.FullMethod)
		callEvent(&logger, service, code).
			Str("grpcService", service).
			Str("grpcMethod", method).
			Str("peer", peerAddr(ctx)).
			Str("code", code.String()).
			Dur("duration", duration).
			Msg("gRPC call")

		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor for metrics and
// logging. Health watchers hold their stream open for the life of the client.
func StreamServerInterceptor(m *metrics.Metrics, logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		m.RPCStreamsActive.Inc()

		addr := "unknown"
		if ss != nil {
			addr = peerAddr(ss.Context())
		}
		service, method := splitMethod(info.FullMethod)

		err := handler(srv, ss)

		m.RPCStreamsActive.Dec()
		duration := time.Since(start)
		code := status.Code(err)
		m.RecordRPC(info.FullMethod, code.String(), duration.Seconds())

		// A watcher going away cancels its stream; that is a normal close.
		callEvent(&logger, service, code).
			Str("grpcService", service).
			Str("grpcMethod", method).
			Str("peer", addr).
			Str("code", code.String()).
			Dur("duration", duration).
			Msg("gRPC stream closed")

		return err
	}
}
