package notify

import (
	"context"

	"pkt.systems/svckit/setting"
)

var registry = setting.NewRegistry[Notifier]("notify")

// Register adds a driver for the given scheme. Built-in drivers claim fcm,
// firebase and log.
func Register(open setting.Opener[Notifier], scheme string, aliases ...string) {
	registry.Register(open, scheme, aliases...)
}

// Open instantiates the notifier described by the settings URL.
func Open(ctx context.Context, rawURL string) (Notifier, error) {
	return registry.Open(ctx, rawURL)
}

// Schemes lists the registered notify schemes.
func Schemes() []string { return registry.Schemes() }
