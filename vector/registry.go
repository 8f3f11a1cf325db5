package vector

import (
	"context"

	"pkt.systems/svckit/setting"
)

var registry = setting.NewRegistry[Index]("vector")

// Register adds a driver for the given scheme. Built-in drivers claim mem,
// memory and pinecone.
func Register(open setting.Opener[Index], scheme string, aliases ...string) {
	registry.Register(open, scheme, aliases...)
}

// Open instantiates the index described by the settings URL.
func Open(ctx context.Context, rawURL string) (Index, error) {
	return registry.Open(ctx, rawURL)
}

// Schemes lists the registered vector schemes.
func Schemes() []string { return registry.Schemes() }
