package email

import (
	"context"

	"pkt.systems/svckit/setting"
)

var registry = setting.NewRegistry[Emailer]("email")

// Register adds a driver for the given scheme. Built-in drivers claim smtp,
// smtps, ses, aws-ses and log.
func Register(open setting.Opener[Emailer], scheme string, aliases ...string) {
	registry.Register(open, scheme, aliases...)
}

// Open instantiates the emailer described by the settings URL.
func Open(ctx context.Context, rawURL string) (Emailer, error) {
	return registry.Open(ctx, rawURL)
}

// Schemes lists the registered email schemes.
func Schemes() []string { return registry.Schemes() }
