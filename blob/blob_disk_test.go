package blob

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newDiskStore(t *testing.T) *Disk {
	t.Helper()
	store, err := NewDisk(DiskConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	return store
}

func TestDiskLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newDiskStore(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}
	info := putString(t, store, "nested/dir/a.json", `{"x":1}`, PutOptions{})
	if info.ETag == "" || info.Size != 7 {
		t.Fatalf("unexpected info after put: %+v", info)
	}
	if got := getString(t, store, "nested/dir/a.json"); got != `{"x":1}` {
		t.Fatalf("get = %q", got)
	}
	stat, err := store.Stat(ctx, "nested/dir/a.json")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.ETag != info.ETag {
		t.Fatalf("etag mismatch: %q vs %q", stat.ETag, info.ETag)
	}
	if stat.ContentType != "application/json" {
		t.Fatalf("content type = %q, want application/json", stat.ContentType)
	}
	if err := store.Delete(ctx, "nested/dir/a.json", DeleteOptions{}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Stat(ctx, "nested/dir/a.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stat after delete: err = %v, want ErrNotFound", err)
	}
}

func TestDiskConditionalWrites(t *testing.T) {
	ctx := context.Background()
	store := newDiskStore(t)

	first := putString(t, store, "k", "v1", PutOptions{IfNotExists: true})
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v2")), PutOptions{IfNotExists: true}); !errors.Is(err, ErrCASMismatch) {
		t.Fatalf("if-not-exists on existing key: err = %v, want ErrCASMismatch", err)
	}
	second := putString(t, store, "k", "v2", PutOptions{ExpectedETag: first.ETag})
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v3")), PutOptions{ExpectedETag: first.ETag}); !errors.Is(err, ErrCASMismatch) {
		t.Fatalf("stale etag write: err = %v, want ErrCASMismatch", err)
	}
	if err := store.Delete(ctx, "k", DeleteOptions{ExpectedETag: first.ETag}); !errors.Is(err, ErrCASMismatch) {
		t.Fatalf("stale etag delete: err = %v, want ErrCASMismatch", err)
	}
	if err := store.Delete(ctx, "k", DeleteOptions{ExpectedETag: second.ETag}); err != nil {
		t.Fatalf("delete with current etag: %v", err)
	}
}

func TestDiskETagIsContentHash(t *testing.T) {
	store := newDiskStore(t)
	a := putString(t, store, "a", "same", PutOptions{})
	b := putString(t, store, "b", "same", PutOptions{})
	c := putString(t, store, "c", "different", PutOptions{})
	if a.ETag != b.ETag {
		t.Fatalf("identical content produced different etags: %q vs %q", a.ETag, b.ETag)
	}
	if a.ETag == c.ETag {
		t.Fatalf("different content produced identical etags")
	}
}

func TestDiskRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store := newDiskStore(t)
	for _, key := range []string{"../escape", "/abs", "a/../../b", "."} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestDiskListSkipsStaging(t *testing.T) {
	ctx := context.Background()
	store := newDiskStore(t)
	putString(t, store, "a/1", "x", PutOptions{})
	putString(t, store, "a/2", "x", PutOptions{})
	// Stray staging leftovers must never show up as objects.
	leftover := filepath.Join(store.Root(), ".staging", "blob-stray")
	if err := os.WriteFile(leftover, []byte("junk"), 0o644); err != nil {
		t.Fatalf("write staging leftover: %v", err)
	}
	res, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Objects) != 2 || res.Objects[0].Key != "a/1" || res.Objects[1].Key != "a/2" {
		t.Fatalf("unexpected listing: %+v", res.Objects)
	}
}

func TestDiskListPagination(t *testing.T) {
	ctx := context.Background()
	store := newDiskStore(t)
	keys := []string{"logs/1", "logs/2", "logs/3"}
	for _, key := range keys {
		putString(t, store, key, "x", PutOptions{})
	}
	first, err := store.List(ctx, ListOptions{Prefix: "logs/", Limit: 2})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Objects) != 2 || !first.Truncated {
		t.Fatalf("first page = %+v, want 2 truncated objects", first)
	}
	if first.NextStartAfter != "logs/2" {
		t.Fatalf("NextStartAfter = %q, want logs/2", first.NextStartAfter)
	}
	second, err := store.List(ctx, ListOptions{Prefix: "logs/", StartAfter: first.NextStartAfter, Limit: 2})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Objects) != 1 || second.Objects[0].Key != "logs/3" || second.Truncated {
		t.Fatalf("second page = %+v, want only logs/3", second)
	}
}

func TestDiskWatch(t *testing.T) {
	ctx := context.Background()
	store := newDiskStore(t)

	sub, err := store.Watch(ctx, "")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer sub.Close()

	putString(t, store, "watched.txt", "x", PutOptions{})

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				t.Fatalf("watch channel closed")
			}
			if ev.Key == "watched.txt" && ev.Op == OpPut {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for put event")
		}
	}
}

func TestOpenDiskScheme(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(context.Background(), "disk://"+dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	disk, ok := store.(*Disk)
	if !ok {
		t.Fatalf("open returned %T, want *Disk", store)
	}
	if disk.Root() != dir {
		t.Fatalf("root = %q, want %q", disk.Root(), dir)
	}
}
