package cache

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "pkt.systems/svckit/cache"

// Instrumented decorates a Cache with OpenTelemetry spans and metrics. It is
// transparent: results and errors pass through unchanged.
type Instrumented struct {
	inner  Cache
	tracer trace.Tracer
	attrs  []attribute.KeyValue

	hits     metric.Int64Counter
	misses   metric.Int64Counter
	errs     metric.Int64Counter
	duration metric.Float64Histogram
}

// WithMetrics wraps inner so every operation is traced and counted. The name
// labels the cache instance in metrics ("session", "profile", ...).
func WithMetrics(inner Cache, name string) (*Instrumented, error) {
	if inner == nil {
		return nil, errors.New("cache: nil cache")
	}
	meter := otel.Meter(instrumentationName)
	hits, err := meter.Int64Counter("cache.hits",
		metric.WithDescription("Cache reads that found a live entry."))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("cache.misses",
		metric.WithDescription("Cache reads that found nothing."))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("cache.errors",
		metric.WithDescription("Cache operations that returned an error."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("cache.op.duration",
		metric.WithDescription("Cache operation latency."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Instrumented{
		inner:    inner,
		tracer:   otel.Tracer(instrumentationName),
		attrs:    []attribute.KeyValue{attribute.String("cache.name", name)},
		hits:     hits,
		misses:   misses,
		errs:     errs,
		duration: duration,
	}, nil
}

func (i *Instrumented) observe(ctx context.Context, op string, start time.Time, err error) {
	attrs := append([]attribute.KeyValue{attribute.String("cache.op", op)}, i.attrs...)
	i.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	if err != nil {
		i.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// Get records hit/miss counters around the wrapped read.
func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := i.tracer.Start(ctx, "cache.Get", trace.WithAttributes(i.attrs...))
	defer span.End()
	start := time.Now()
	value, ok, err := i.inner.Get(ctx, key)
	i.observe(ctx, "get", start, err)
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	if err == nil {
		if ok {
			i.hits.Add(ctx, 1, metric.WithAttributes(i.attrs...))
		} else {
			i.misses.Add(ctx, 1, metric.WithAttributes(i.attrs...))
		}
	}
	return value, ok, err
}

// Set times and traces the wrapped write.
func (i *Instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := i.tracer.Start(ctx, "cache.Set", trace.WithAttributes(i.attrs...))
	defer span.End()
	start := time.Now()
	err := i.inner.Set(ctx, key, value, ttl)
	i.observe(ctx, "set", start, err)
	return err
}

// Delete times and traces the wrapped delete.
func (i *Instrumented) Delete(ctx context.Context, key string) error {
	ctx, span := i.tracer.Start(ctx, "cache.Delete", trace.WithAttributes(i.attrs...))
	defer span.End()
	start := time.Now()
	err := i.inner.Delete(ctx, key)
	i.observe(ctx, "delete", start, err)
	return err
}

// Modify times and traces the wrapped CAS loop as a single span.
func (i *Instrumented) Modify(ctx context.Context, key string, ttl time.Duration, fn ModifyFunc) ([]byte, error) {
	ctx, span := i.tracer.Start(ctx, "cache.Modify", trace.WithAttributes(i.attrs...))
	defer span.End()
	start := time.Now()
	value, err := i.inner.Modify(ctx, key, ttl, fn)
	i.observe(ctx, "modify", start, err)
	if errors.Is(err, ErrTooMuchContention) {
		span.SetAttributes(attribute.Bool("cache.contended", true))
	}
	return value, err
}

// Ping forwards to the wrapped driver when it supports connectivity checks.
func (i *Instrumented) Ping(ctx context.Context) error {
	if pinger, ok := i.inner.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Close closes the wrapped driver.
func (i *Instrumented) Close() error { return i.inner.Close() }
