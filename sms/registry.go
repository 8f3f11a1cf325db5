package sms

import (
	"context"

	"pkt.systems/svckit/setting"
)

var registry = setting.NewRegistry[Sender]("sms")

// Register adds a driver for the given scheme. Built-in drivers claim twilio,
// sns, aws-sns and log.
func Register(open setting.Opener[Sender], scheme string, aliases ...string) {
	registry.Register(open, scheme, aliases...)
}

// Open instantiates the sender described by the settings URL.
func Open(ctx context.Context, rawURL string) (Sender, error) {
	return registry.Open(ctx, rawURL)
}

// Schemes lists the registered sms schemes.
func Schemes() []string { return registry.Schemes() }
