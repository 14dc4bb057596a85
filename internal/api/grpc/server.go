// Package grpcapi exposes the standard gRPC health and reflection services.
// The health status follows the capture session's readiness.
package grpcapi

import (
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"voice-reminder-assistant/internal/observability"
	"voice-reminder-assistant/internal/observability/logging"
	"voice-reminder-assistant/internal/observability/metrics"
	"voice-reminder-assistant/internal/service/capture"
	"voice-reminder-assistant/internal/service/permission"
)

// ServiceName is the health service name clients probe for the assistant.
const ServiceName = "voice.reminder.Assistant"

// NewServer creates a gRPC server with the metrics and logging interceptors.
func NewServer(m *metrics.Metrics) *grpc.Server {
	logger := logging.WithComponent("grpc")
	return grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m, logger)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m, logger)),
	)
}

// Health mirrors capture readiness into the gRPC health service. It implements
// capture.Observer.
type Health struct {
	server *health.Server
	logger zerolog.Logger
}

// Register adds the health and reflection services to g.
func Register(g *grpc.Server) *Health {
	h := &Health{
		server: health.NewServer(),
		logger: logging.WithComponent("grpc.health"),
	}
	grpc_health_v1.RegisterHealthServer(g, h.server)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	h.server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// Server returns the underlying health server.
func (h *Health) Server() *health.Server {
	return h.server
}

// SetReady switches the assistant service between SERVING and NOT_SERVING.
func (h *Health) SetReady(ready bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ready {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(ServiceName, status)
}

// CaptureStateChanged implements capture.Observer.
func (h *Health) CaptureStateChanged(s capture.Snapshot) {
	h.SetReady(s.Supported && s.Permission != permission.StatusDenied)
}

// UtteranceRecognized implements capture.Observer.
func (h *Health) UtteranceRecognized(string) {}

// CaptureFailed implements capture.Observer.
func (h *Health) CaptureFailed(kind capture.ErrorKind) {
	if kind == capture.ErrorPermissionDenied || kind == capture.ErrorUnsupported {
		h.logger.Warn().Str("kind", string(kind)).Msg("Assistant no longer serving")
		h.SetReady(false)
	}
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}
