package pubsub

import (
	"context"

	"pkt.systems/svckit/setting"
)

var registry = setting.NewRegistry[PubSub]("pubsub")

// Register adds a driver for the given scheme. Built-in drivers claim mem,
// memory, redis, rediss, mqtt, mqtts, tcp and ssl.
func Register(open setting.Opener[PubSub], scheme string, aliases ...string) {
	registry.Register(open, scheme, aliases...)
}

// Open instantiates the pub/sub transport described by the settings URL.
func Open(ctx context.Context, rawURL string) (PubSub, error) {
	return registry.Open(ctx, rawURL)
}

// Schemes lists the registered pubsub schemes.
func Schemes() []string { return registry.Schemes() }
