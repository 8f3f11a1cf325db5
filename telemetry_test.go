package svckit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"pkt.systems/pslog"
)

func TestResolveOTLPTarget(t *testing.T) {
	tests := []struct {
		raw      string
		protocol string
		endpoint string
		path     string
		insecure bool
		wantErr  bool
	}{
		{raw: "otel-collector", protocol: "grpc", endpoint: "otel-collector:4317", insecure: true},
		{raw: "otel-collector:4444", protocol: "grpc", endpoint: "otel-collector:4444", insecure: true},
		{raw: "grpc://collector", protocol: "grpc", endpoint: "collector:4317", insecure: true},
		{raw: "grpcs://collector:4317", protocol: "grpc", endpoint: "collector:4317", insecure: false},
		{raw: "http://collector", protocol: "http", endpoint: "collector:4318", insecure: true},
		{raw: "https://collector/v1/traces", protocol: "http", endpoint: "collector:4318", path: "/v1/traces", insecure: false},
		{raw: "ftp://collector", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			target, err := resolveOTLPTarget(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve %q: %v", tc.raw, err)
			}
			if target.protocol != tc.protocol || target.endpoint != tc.endpoint || target.path != tc.path || target.insecure != tc.insecure {
				t.Fatalf("resolve %q = %+v", tc.raw, target)
			}
		})
	}
}

func TestSetupTelemetryDisabledReturnsNil(t *testing.T) {
	bundle, err := SetupTelemetry(context.Background(), &Config{}, pslog.NoopLogger())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if bundle != nil {
		t.Fatalf("expected nil bundle when nothing is configured")
	}
	if err := bundle.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil bundle shutdown: %v", err)
	}
}

func TestSetupTelemetryRuntimeMetricsRequireListener(t *testing.T) {
	_, err := SetupTelemetry(context.Background(), &Config{RuntimeMetrics: true}, pslog.NoopLogger())
	if err == nil {
		t.Fatalf("expected error without metrics listen address")
	}
}

func TestSetupTelemetryServesMetrics(t *testing.T) {
	ctx := context.Background()
	bundle, err := SetupTelemetry(ctx, &Config{MetricsListen: "127.0.0.1:0"}, pslog.NoopLogger())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if bundle == nil || bundle.metricsLn == nil {
		t.Fatalf("metrics listener missing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := bundle.Shutdown(shutdownCtx); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}()
	url := fmt.Sprintf("http://%s/metrics", bundle.metricsLn.Addr())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("scrape metrics: %v", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}
