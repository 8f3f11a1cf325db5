package blob

import (
	"context"
	"io"
	"time"

	"pkt.systems/pslog"
)

// RetryConfig controls retry behaviour for transient backend errors.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// WithRetry returns a store that retries transient errors according to cfg.
// Only errors marked with NewTransientError are retried; conditional write
// failures and not-found errors pass through untouched.
func WithRetry(inner Store, logger pslog.Logger, cfg RetryConfig) Store {
	if inner == nil {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 50 * time.Millisecond
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &retryStore{inner: inner, logger: logger, cfg: cfg, sleep: sleepCtx}
}

type retryStore struct {
	inner  Store
	logger pslog.Logger
	cfg    RetryConfig
	sleep  func(context.Context, time.Duration) error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *retryStore) Get(ctx context.Context, key string) (*Object, error) {
	var obj *Object
	err := r.withRetry(ctx, "get", key, func(ctx context.Context) error {
		var err error
		obj, err = r.inner.Get(ctx, key)
		return err
	})
	return obj, err
}

func (r *retryStore) Stat(ctx context.Context, key string) (Info, error) {
	var info Info
	err := r.withRetry(ctx, "stat", key, func(ctx context.Context) error {
		var err error
		info, err = r.inner.Stat(ctx, key)
		return err
	})
	return info, err
}

// Put retries only when the body is rewindable; a half-consumed stream cannot
// be replayed safely.
func (r *retryStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Info, error) {
	seeker, rewindable := body.(io.Seeker)
	var start int64
	if rewindable {
		if pos, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			start = pos
		} else {
			rewindable = false
		}
	}
	if !rewindable {
		return r.inner.Put(ctx, key, body, opts)
	}
	var info Info
	err := r.withRetry(ctx, "put", key, func(ctx context.Context) error {
		if _, err := seeker.Seek(start, io.SeekStart); err != nil {
			return err
		}
		var err error
		info, err = r.inner.Put(ctx, key, body, opts)
		return err
	})
	return info, err
}

func (r *retryStore) Delete(ctx context.Context, key string, opts DeleteOptions) error {
	return r.withRetry(ctx, "delete", key, func(ctx context.Context) error {
		return r.inner.Delete(ctx, key, opts)
	})
}

func (r *retryStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	var res ListResult
	err := r.withRetry(ctx, "list", opts.Prefix, func(ctx context.Context) error {
		var err error
		res, err = r.inner.List(ctx, opts)
		return err
	})
	return res, err
}

func (r *retryStore) Watch(ctx context.Context, prefix string) (WatchSubscription, error) {
	if feed, ok := r.inner.(ChangeFeed); ok {
		return feed.Watch(ctx, prefix)
	}
	return nil, ErrNotImplemented
}

func (r *retryStore) Ping(ctx context.Context) error {
	if p, ok := r.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (r *retryStore) Close() error { return r.inner.Close() }

func (r *retryStore) withRetry(ctx context.Context, op, key string, fn func(context.Context) error) error {
	attempts := r.cfg.MaxAttempts
	if attempts <= 1 {
		return fn(ctx)
	}
	delay := r.cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == attempts {
			return err
		}
		r.logger.Warn("blob transient error",
			"operation", op,
			"key", key,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		next := time.Duration(float64(delay) * r.cfg.Multiplier)
		if next > r.cfg.MaxDelay {
			next = r.cfg.MaxDelay
		}
		delay = next
	}
	return lastErr
}
