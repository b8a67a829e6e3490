package otel

import (
	"context"
	"testing"
)

func TestNewProvidersEmptyEndpointIsNoop(t *testing.T) {
	p, err := NewProviders(context.Background(), "", "session-control-plane", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if p.TracerProvider == nil || p.MeterProvider == nil {
		t.Fatal("providers must be non-nil even when disabled")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewProvidersRejectsBadEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), "://", "svc", false); err == nil {
		t.Fatal("malformed endpoint accepted")
	}
}
