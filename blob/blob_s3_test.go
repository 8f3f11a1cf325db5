package blob

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

func setupFakeS3(t *testing.T) (*httptest.Server, S3Config) {
	t.Helper()
	backend := s3mem.New()
	fake := gofakes3.New(backend)
	server := httptest.NewServer(fake.Server())
	bucket := "svckit-test"
	if err := backend.CreateBucket(bucket); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	endpoint := strings.TrimPrefix(server.URL, "http://")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	cfg := S3Config{
		Endpoint:       endpoint,
		Region:         "us-east-1",
		Bucket:         bucket,
		Insecure:       true,
		ForcePathStyle: true,
	}
	return server, cfg
}

func TestS3Lifecycle(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := NewS3(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}
	info := putString(t, store, "reports/2026.csv", "a,b\n1,2\n", PutOptions{ContentType: "text/csv"})
	if info.ETag == "" {
		t.Fatalf("put returned empty etag")
	}
	if got := getString(t, store, "reports/2026.csv"); got != "a,b\n1,2\n" {
		t.Fatalf("get = %q", got)
	}
	stat, err := store.Stat(ctx, "reports/2026.csv")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.ETag != info.ETag {
		t.Fatalf("etag mismatch: %q vs %q", stat.ETag, info.ETag)
	}
	res, err := store.List(ctx, ListOptions{Prefix: "reports/"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Objects) != 1 || res.Objects[0].Key != "reports/2026.csv" {
		t.Fatalf("unexpected listing: %+v", res.Objects)
	}
	if err := store.Delete(ctx, "reports/2026.csv", DeleteOptions{}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Stat(ctx, "reports/2026.csv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stat after delete: err = %v, want ErrNotFound", err)
	}
}

func TestS3ConditionalDelete(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := NewS3(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	info := putString(t, store, "k", "v1", PutOptions{})
	if err := store.Delete(ctx, "k", DeleteOptions{ExpectedETag: "bogus"}); !errors.Is(err, ErrCASMismatch) {
		t.Fatalf("stale etag delete: err = %v, want ErrCASMismatch", err)
	}
	if err := store.Delete(ctx, "k", DeleteOptions{ExpectedETag: info.ETag}); err != nil {
		t.Fatalf("delete with current etag: %v", err)
	}
}

func TestS3PrefixScoping(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()
	cfg.Prefix = "tenant-a"

	store, err := NewS3(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	putString(t, store, "doc", "x", PutOptions{})
	res, err := store.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Objects) != 1 || res.Objects[0].Key != "doc" {
		t.Fatalf("unexpected listing: %+v", res.Objects)
	}
}

func TestS3ListPagination(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := NewS3(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	keys := []string{"inv/1", "inv/2", "inv/3", "inv/4", "inv/5"}
	for _, key := range keys {
		putString(t, store, key, "x", PutOptions{})
	}
	var got []string
	opts := ListOptions{Prefix: "inv/", Limit: 2}
	for {
		res, err := store.List(ctx, opts)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if opts.Limit > 0 && len(res.Objects) > opts.Limit {
			t.Fatalf("page exceeds limit: %d objects", len(res.Objects))
		}
		for _, info := range res.Objects {
			got = append(got, info.Key)
		}
		if !res.Truncated {
			break
		}
		opts.StartAfter = res.NextStartAfter
	}
	if len(got) != len(keys) {
		t.Fatalf("paged listing returned %d keys, want %d: %v", len(got), len(keys), got)
	}
	for i, key := range keys {
		if got[i] != key {
			t.Fatalf("page walk out of order: got %v, want %v", got, keys)
		}
	}
}

func TestOpenAWSScheme(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	store, err := Open(context.Background(), "aws://bucket/prefix?region=eu-north-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*S3); !ok {
		t.Fatalf("open returned %T, want *S3", store)
	}
}

func TestS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(S3Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "context deadline", err: context.DeadlineExceeded, expected: true},
		{name: "net timeout", err: fakeTimeoutErr{}, expected: true},
		{name: "net op timeout", err: &net.OpError{Err: fakeTimeoutErr{}}, expected: true},
		{name: "plain error", err: errors.New("boom"), expected: false},
		{name: "connection refused without wrap", err: syscall.ECONNREFUSED, expected: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryable(tc.err); got != tc.expected {
				t.Fatalf("isRetryable(%v) = %v, want %v", tc.err, got, tc.expected)
			}
		})
	}
}

func TestStripETag(t *testing.T) {
	if got := stripETag(`"abc123"`); got != "abc123" {
		t.Fatalf("stripETag = %q", got)
	}
	if got := stripETag("abc123"); got != "abc123" {
		t.Fatalf("stripETag without quotes = %q", got)
	}
}
