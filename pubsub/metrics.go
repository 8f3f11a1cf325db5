package pubsub

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "pkt.systems/svckit/pubsub"

// Instrumented wraps a PubSub with OpenTelemetry traces and metrics. Publish
// and Subscribe are traced; delivered messages are counted per topic on the
// way through the subscription channel.
type Instrumented struct {
	inner PubSub
	name  string

	tracer    trace.Tracer
	published metric.Int64Counter
	delivered metric.Int64Counter
	errors    metric.Int64Counter
	duration  metric.Float64Histogram
}

// WithMetrics wraps inner with tracing and metrics. The name attribute
// distinguishes multiple pub/sub instances in one process.
func WithMetrics(inner PubSub, name string) *Instrumented {
	meter := otel.Meter(instrumentationName)
	published, _ := meter.Int64Counter("pubsub.published",
		metric.WithDescription("Messages published."))
	delivered, _ := meter.Int64Counter("pubsub.delivered",
		metric.WithDescription("Messages delivered to subscribers."))
	errs, _ := meter.Int64Counter("pubsub.errors",
		metric.WithDescription("Failed pub/sub operations."))
	duration, _ := meter.Float64Histogram("pubsub.op.duration",
		metric.WithDescription("Pub/sub operation latency."),
		metric.WithUnit("s"))
	return &Instrumented{
		inner:     inner,
		name:      name,
		tracer:    otel.Tracer(instrumentationName),
		published: published,
		delivered: delivered,
		errors:    errs,
		duration:  duration,
	}
}

func (i *Instrumented) attrs(topic string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("pubsub.name", i.name),
		attribute.String("pubsub.topic", topic),
	}
}

// Publish forwards to the wrapped implementation inside a span.
func (i *Instrumented) Publish(ctx context.Context, topic string, payload []byte) error {
	attrs := i.attrs(topic)
	ctx, span := i.tracer.Start(ctx, "pubsub.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...))
	defer span.End()
	start := time.Now()
	err := i.inner.Publish(ctx, topic, payload)
	i.duration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(append(attrs, attribute.String("pubsub.op", "publish"))...))
	if err != nil {
		i.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	i.published.Add(ctx, 1, metric.WithAttributes(attrs...))
	return nil
}

// Subscribe forwards to the wrapped implementation; the returned subscription
// counts delivered messages as they are drained.
func (i *Instrumented) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	attrs := i.attrs(topic)
	ctx, span := i.tracer.Start(ctx, "pubsub.Subscribe",
		trace.WithAttributes(attrs...))
	defer span.End()
	sub, err := i.inner.Subscribe(ctx, topic)
	if err != nil {
		i.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	wrapped := &instrumentedSubscription{
		inner: sub,
		ch:    make(chan Message, DefaultSubscriberBuffer),
	}
	go wrapped.pump(i, attrs)
	return wrapped, nil
}

type instrumentedSubscription struct {
	inner Subscription
	ch    chan Message
}

func (s *instrumentedSubscription) pump(i *Instrumented, attrs []attribute.KeyValue) {
	defer close(s.ch)
	for msg := range s.inner.C() {
		s.ch <- msg
		i.delivered.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	}
}

func (s *instrumentedSubscription) C() <-chan Message { return s.ch }

func (s *instrumentedSubscription) Close() error { return s.inner.Close() }

// Ping forwards to the wrapped implementation when it supports pinging.
func (i *Instrumented) Ping(ctx context.Context) error {
	if p, ok := i.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the wrapped implementation.
func (i *Instrumented) Close() error { return i.inner.Close() }
