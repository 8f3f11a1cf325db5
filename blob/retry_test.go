package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"pkt.systems/pslog"
)

type flakyStore struct {
	*Mem
	failures int
	calls    int
}

func (f *flakyStore) Get(ctx context.Context, key string) (*Object, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, NewTransientError(errors.New("backend hiccup"))
	}
	return f.Mem.Get(ctx, key)
}

func (f *flakyStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Info, error) {
	f.calls++
	if f.calls <= f.failures {
		// Consume part of the body to prove retries rewind it.
		buf := make([]byte, 1)
		_, _ = body.Read(buf)
		return Info{}, NewTransientError(errors.New("backend hiccup"))
	}
	return f.Mem.Put(ctx, key, body, opts)
}

func newRetryStore(inner Store, attempts int) *retryStore {
	store := WithRetry(inner, pslog.NoopLogger(), RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}).(*retryStore)
	store.sleep = func(context.Context, time.Duration) error { return nil }
	return store
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{Mem: NewMem(), failures: 2}
	putString(t, inner.Mem, "k", "v", PutOptions{})
	store := newRetryStore(inner, 3)

	obj, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	obj.Body.Close()
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyStore{Mem: NewMem(), failures: 10}
	store := newRetryStore(inner, 3)

	_, err := store.Get(context.Background(), "k")
	if err == nil || !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	inner := NewMem()
	store := newRetryStore(inner, 5)

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}
	putString(t, store, "k", "v1", PutOptions{})
	if _, err := store.Put(context.Background(), "k", bytes.NewReader([]byte("v2")), PutOptions{ExpectedETag: "stale"}); !errors.Is(err, ErrCASMismatch) {
		t.Fatalf("stale etag put: err = %v, want ErrCASMismatch", err)
	}
	if _, err := store.Stat(context.Background(), "k"); err != nil {
		t.Fatalf("stat: %v", err)
	}
}

func TestRetryRewindsSeekableBody(t *testing.T) {
	inner := &flakyStore{Mem: NewMem(), failures: 1}
	store := newRetryStore(inner, 3)

	info, err := store.Put(context.Background(), "k", bytes.NewReader([]byte("payload")), PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("payload")) {
		t.Fatalf("size = %d after retried put, want %d", info.Size, len("payload"))
	}
	if got := getString(t, inner.Mem, "k"); got != "payload" {
		t.Fatalf("stored body = %q, want payload", got)
	}
}

func TestIsTransientMarking(t *testing.T) {
	base := errors.New("boom")
	if IsTransient(base) {
		t.Fatalf("unmarked error reported transient")
	}
	marked := NewTransientError(base)
	if !IsTransient(marked) {
		t.Fatalf("marked error not reported transient")
	}
	if !errors.Is(marked, base) {
		t.Fatalf("marking broke errors.Is")
	}
	if NewTransientError(nil) != nil {
		t.Fatalf("NewTransientError(nil) != nil")
	}
}
