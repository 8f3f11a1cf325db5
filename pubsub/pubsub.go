// Package pubsub defines a topic-based publish/subscribe contract with
// at-most-once delivery, plus drivers for in-process fanout, Redis channels
// and MQTT brokers. Instances are opened from settings URLs, e.g.
// "mem://?buffer=256", "redis://localhost:6379" or "mqtt://broker:1883".
package pubsub

import (
	"context"
	"errors"
)

// DefaultSubscriberBuffer bounds per-subscriber queues for drivers that
// buffer in-process.
const DefaultSubscriberBuffer = 256

var (
	// ErrClosed reports use of a pub/sub handle after Close.
	ErrClosed = errors.New("pubsub: closed")
)

// Message is a single delivered payload.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription is a live topic subscription. Messages arrive on C in publish
// order per publisher; the channel closes when the subscription or its parent
// is closed.
type Subscription interface {
	C() <-chan Message
	Close() error
}

// PubSub is the minimal contract shared by all drivers. Delivery is
// at-most-once: subscribers that cannot keep up lose messages rather than
// blocking publishers.
type PubSub interface {
	// Publish sends payload to all current subscribers of topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers a new subscriber for topic.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	// Close tears down all subscriptions and the underlying transport.
	Close() error
}

// Pinger is an optional capability for drivers that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
