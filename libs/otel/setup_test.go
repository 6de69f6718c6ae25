package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_ENABLED", "")
	if cfg := ConfigFromEnv("planning"); cfg.Enabled {
		t.Fatal("expected tracing disabled without an endpoint")
	}

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	cfg := ConfigFromEnv("planning")
	if !cfg.Enabled || cfg.SampleRatio != 0.25 || cfg.ServiceName != "planning" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("OTEL_ENABLED", "false")
	if cfg := ConfigFromEnv("planning"); cfg.Enabled {
		t.Fatal("expected OTEL_ENABLED=false to win")
	}
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSampleRatio(t *testing.T) {
	for raw, want := range map[string]float64{"0.5": 0.5, "0": 0, "1.5": 1, "-1": 1, "x": 1} {
		if got := sampleRatio(raw); got != want {
			t.Fatalf("sampleRatio(%q): expected %v, got %v", raw, want, got)
		}
	}
}
