package svckit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/svckit/blob"
	"pkt.systems/svckit/cache"
	"pkt.systems/svckit/email"
	"pkt.systems/svckit/internal/svcfields"
	"pkt.systems/svckit/notify"
	"pkt.systems/svckit/pubsub"
	"pkt.systems/svckit/setting"
	"pkt.systems/svckit/sms"
	"pkt.systems/svckit/vector"
)

// ErrNotConfigured indicates the requested service has no settings URL.
var ErrNotConfigured = errors.New("svckit: service not configured")

// schemeOf extracts the URL scheme for use as a metric label.
func schemeOf(rawURL string) string {
	u, err := setting.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	return u.Scheme()
}

// OpenCache opens the configured cache, instrumented when telemetry is on.
func OpenCache(ctx context.Context, cfg *Config) (cache.Cache, error) {
	if strings.TrimSpace(cfg.Cache) == "" {
		return nil, fmt.Errorf("%w: cache", ErrNotConfigured)
	}
	c, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if !cfg.Instrumented() {
		return c, nil
	}
	instrumented, err := cache.WithMetrics(c, schemeOf(cfg.Cache))
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return instrumented, nil
}

// OpenPubSub opens the configured pub/sub bus, instrumented when telemetry
// is on.
func OpenPubSub(ctx context.Context, cfg *Config) (pubsub.PubSub, error) {
	if strings.TrimSpace(cfg.PubSub) == "" {
		return nil, fmt.Errorf("%w: pubsub", ErrNotConfigured)
	}
	ps, err := pubsub.Open(ctx, cfg.PubSub)
	if err != nil {
		return nil, err
	}
	if !cfg.Instrumented() {
		return ps, nil
	}
	return pubsub.WithMetrics(ps, schemeOf(cfg.PubSub)), nil
}

// OpenBlobStore opens the configured blob store wrapped with transient-error
// retries.
func OpenBlobStore(ctx context.Context, cfg *Config, logger pslog.Logger) (blob.Store, error) {
	if strings.TrimSpace(cfg.Blob) == "" {
		return nil, fmt.Errorf("%w: blob", ErrNotConfigured)
	}
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, err
	}
	retryLogger := svcfields.WithSubsystem(logger, "blob.retry")
	return blob.WithRetry(store, retryLogger, blob.RetryConfig{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   DefaultRetryBaseDelay,
	}), nil
}

// OpenEmailer opens the configured email driver.
func OpenEmailer(ctx context.Context, cfg *Config) (email.Emailer, error) {
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, fmt.Errorf("%w: email", ErrNotConfigured)
	}
	return email.Open(ctx, cfg.Email)
}

// OpenSMSSender opens the configured SMS driver.
func OpenSMSSender(ctx context.Context, cfg *Config) (sms.Sender, error) {
	if strings.TrimSpace(cfg.SMS) == "" {
		return nil, fmt.Errorf("%w: sms", ErrNotConfigured)
	}
	return sms.Open(ctx, cfg.SMS)
}

// OpenNotifier opens the configured push notification driver.
func OpenNotifier(ctx context.Context, cfg *Config) (notify.Notifier, error) {
	if strings.TrimSpace(cfg.Notify) == "" {
		return nil, fmt.Errorf("%w: notify", ErrNotConfigured)
	}
	return notify.Open(ctx, cfg.Notify)
}

// OpenVectorStore opens the configured vector index. The vector service has
// no default; an empty setting returns ErrNotConfigured.
func OpenVectorStore(ctx context.Context, cfg *Config) (vector.Index, error) {
	if strings.TrimSpace(cfg.Vector) == "" {
		return nil, fmt.Errorf("%w: vector", ErrNotConfigured)
	}
	return vector.Open(ctx, cfg.Vector)
}
