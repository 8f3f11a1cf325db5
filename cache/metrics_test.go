package cache

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInstrumentedCountsHitsAndMisses(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	defer otel.SetMeterProvider(prev)

	inner := NewMem(MemConfig{DefaultTTL: time.Minute})
	c, err := WithMetrics(inner, "test")
	if err != nil {
		t.Fatalf("with metrics: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "alpha", []byte("one"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "alpha"); !ok {
		t.Fatal("expected hit")
	}
	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	hits, misses := int64(-1), int64(-1)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			switch m.Name {
			case "cache.hits":
				hits = total
			case "cache.misses":
				misses = total
			}
		}
	}
	if hits != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
	if misses != 1 {
		t.Fatalf("expected 1 miss, got %d", misses)
	}
}

func TestInstrumentedTransparent(t *testing.T) {
	inner := NewMem(MemConfig{DefaultTTL: time.Minute})
	c, err := WithMetrics(inner, "test")
	if err != nil {
		t.Fatalf("with metrics: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	value, err := c.Modify(ctx, "counter", 0, func(current []byte, exists bool) ([]byte, error) {
		return []byte("v"), nil
	})
	if err != nil || string(value) != "v" {
		t.Fatalf("modify through wrapper: %q %v", value, err)
	}
	got, ok, err := c.Get(ctx, "counter")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("get through wrapper: %q ok=%v err=%v", got, ok, err)
	}
}
