package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetupDisabledInstallsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v, want nil", err)
	}

	_, span := Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	if span.IsRecording() {
		t.Error("span from disabled telemetry is recording")
	}
}

func TestSetupEnabledRecordsSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	shutdown, err := Setup(context.Background(), Config{
		Enabled:     true,
		ServiceName: "roadgen-test",
		Endpoint:    "http://127.0.0.1:1/v1/traces",
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	_, span := Tracer("test").Start(context.Background(), "recorded")
	if !span.IsRecording() {
		t.Error("span from enabled telemetry is not recording")
	}
	span.End()

	// nothing listens on the endpoint, so only the flush attempt is checked
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
