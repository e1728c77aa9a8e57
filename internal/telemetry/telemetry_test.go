package telemetry

import (
	"context"
	"testing"
)

func TestDisabledProvider(t *testing.T) {
	t.Parallel()

	p, err := New(context.Background(), Config{}, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Enabled() {
		t.Error("disabled config should yield a disabled provider")
	}

	// No-op tracers must still be usable.
	_, span := p.Tracer("gateway").Start(context.Background(), "prune")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestNilProvider(t *testing.T) {
	t.Parallel()

	var p *Provider
	if p.Enabled() {
		t.Error("nil provider should report disabled")
	}
	_, span := p.Tracer("gateway").Start(context.Background(), "compact")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestEnabledProviderLifecycle(t *testing.T) {
	t.Parallel()

	// The OTLP/HTTP exporter connects lazily, so constructing and
	// shutting down without recording spans needs no collector.
	p, err := New(context.Background(), Config{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		Insecure:    true,
		SampleRatio: 0.5,
	}, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !p.Enabled() {
		t.Error("provider should be enabled")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
