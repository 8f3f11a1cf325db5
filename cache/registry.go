package cache

import (
	"context"

	"pkt.systems/svckit/setting"
)

var registry = setting.NewRegistry[Cache]("cache")

// Register adds a driver for the given scheme. Built-in drivers claim mem,
// memory, redis, rediss, memcached, dynamodb and aws-dynamodb.
func Register(open setting.Opener[Cache], scheme string, aliases ...string) {
	registry.Register(open, scheme, aliases...)
}

// Open instantiates the cache described by the settings URL.
func Open(ctx context.Context, rawURL string) (Cache, error) {
	return registry.Open(ctx, rawURL)
}

// Schemes lists the registered cache schemes.
func Schemes() []string { return registry.Schemes() }
