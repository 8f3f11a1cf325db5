package blob

import (
	"context"

	"pkt.systems/svckit/setting"
)

var registry = setting.NewRegistry[Store]("blob")

// Register adds a driver for the given scheme. Built-in drivers claim mem,
// memory, disk, file, s3, aws, azure and azblob.
func Register(open setting.Opener[Store], scheme string, aliases ...string) {
	registry.Register(open, scheme, aliases...)
}

// Open instantiates the store described by the settings URL.
func Open(ctx context.Context, rawURL string) (Store, error) {
	return registry.Open(ctx, rawURL)
}

// Schemes lists the registered blob schemes.
func Schemes() []string { return registry.Schemes() }
