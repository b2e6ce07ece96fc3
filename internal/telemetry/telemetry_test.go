package telemetry

import (
	"context"
	"testing"

	"github.com/schoolhub/apiserver/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), config.TelemetryConfig{ServiceName: "test"})
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
