package grpcapi

import (
	"context"
	"testing"

	"google.golang.org/grpc/health/grpc_health_v1"

	"voice-reminder-assistant/internal/observability/metrics"
	"voice-reminder-assistant/internal/service/capture"
	"voice-reminder-assistant/internal/service/permission"
)

func check(t *testing.T, h *Health, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	return resp.Status
}

func TestRegister_InitialStatus(t *testing.T) {
	h := Register(NewServer(metrics.DefaultMetrics))

	if got := check(t, h, ""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected process SERVING, got %v", got)
	}
	if got := check(t, h, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected assistant NOT_SERVING before init, got %v", got)
	}
}

func TestHealth_FollowsCaptureSnapshot(t *testing.T) {
	h := Register(NewServer(metrics.DefaultMetrics))

	tests := []struct {
		name string
		snap capture.Snapshot
		want grpc_health_v1.HealthCheckResponse_ServingStatus
	}{
		{"granted", capture.Snapshot{Supported: true, Permission: permission.StatusGranted}, grpc_health_v1.HealthCheckResponse_SERVING},
		{"not yet probed", capture.Snapshot{Supported: true, Permission: permission.StatusUnknown}, grpc_health_v1.HealthCheckResponse_SERVING},
		{"denied", capture.Snapshot{Supported: true, Permission: permission.StatusDenied}, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
		{"unsupported", capture.Snapshot{Supported: false, Permission: permission.StatusGranted}, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.CaptureStateChanged(tt.snap)
			if got := check(t, h, ServiceName); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHealth_CaptureFailed(t *testing.T) {
	h := Register(NewServer(metrics.DefaultMetrics))
	h.SetReady(true)

	h.CaptureFailed(capture.ErrorNetwork)
	if got := check(t, h, ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected transient failure to keep SERVING, got %v", got)
	}

	h.CaptureFailed(capture.ErrorPermissionDenied)
	if got := check(t, h, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING after denial, got %v", got)
	}
}

func TestHealth_Shutdown(t *testing.T) {
	h := Register(NewServer(metrics.DefaultMetrics))
	h.SetReady(true)
	h.Shutdown()

	if got := check(t, h, ""); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING after shutdown, got %v", got)
	}
}
