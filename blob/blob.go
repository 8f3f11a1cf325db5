// Package blob abstracts object storage behind a small Store interface with
// drivers for in-memory maps, local disk, S3-compatible services and Azure
// Blob Storage. Stores are opened from settings URLs such as
// "s3://bucket/prefix?region=eu-north-1" or "disk:///var/lib/app/blobs".
//
// Writes carry optional ETag preconditions so callers can build
// read-modify-write flows without a separate locking service.
package blob

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"
)

var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("blob: not found")
	// ErrCASMismatch indicates a Put or Delete precondition failed because
	// another writer changed the object first.
	ErrCASMismatch = errors.New("blob: cas mismatch")
	// ErrClosed indicates the store was closed.
	ErrClosed = errors.New("blob: store closed")
	// ErrNotImplemented indicates the driver lacks an optional capability.
	ErrNotImplemented = errors.New("blob: not implemented")
)

// Info captures object metadata.
type Info struct {
	Key         string
	ETag        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Object couples an object's content stream with its metadata. Callers own
// the reader and must close it.
type Object struct {
	Info
	Body io.ReadCloser
}

// PutOptions carries optional write preconditions and metadata.
type PutOptions struct {
	// ContentType is stored alongside the object when the driver supports
	// it.
	ContentType string
	// ExpectedETag, when non-empty, makes the write conditional: it fails
	// with ErrCASMismatch unless the stored object still carries this ETag.
	ExpectedETag string
	// IfNotExists makes the write fail with ErrCASMismatch when the key
	// already exists. Mutually exclusive with ExpectedETag.
	IfNotExists bool
}

// DeleteOptions carries optional delete preconditions.
type DeleteOptions struct {
	// ExpectedETag, when non-empty, makes the delete conditional.
	ExpectedETag string
}

// ListOptions guides List traversal.
type ListOptions struct {
	// Prefix restricts the listing to keys starting with it.
	Prefix string
	// StartAfter resumes a listing strictly after this key.
	StartAfter string
	// Limit caps how many objects one call returns; 0 means unbounded.
	Limit int
}

// ListResult is one page of object metadata in lexical key order.
type ListResult struct {
	Objects []Info
	// NextStartAfter feeds the next call's StartAfter when Truncated.
	NextStartAfter string
	Truncated      bool
}

// Store is the object storage contract shared by every driver.
type Store interface {
	// Get opens the object at key for reading.
	Get(ctx context.Context, key string) (*Object, error)
	// Stat returns object metadata without fetching the body.
	Stat(ctx context.Context, key string) (Info, error)
	// Put streams body into the object at key and returns its new metadata.
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Info, error)
	// Delete removes the object at key. Deleting a missing object returns
	// ErrNotFound only when a precondition was supplied.
	Delete(ctx context.Context, key string, opts DeleteOptions) error
	// List returns one page of object metadata in lexical key order,
	// resuming after opts.StartAfter and stopping at opts.Limit entries.
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	// Close releases driver resources.
	Close() error
}

// Pinger is an optional capability for stores that can verify backend
// connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventOp classifies a change feed event.
type EventOp string

const (
	// OpPut signals an object was created or overwritten.
	OpPut EventOp = "put"
	// OpDelete signals an object was removed.
	OpDelete EventOp = "delete"
)

// Event describes one observed object change.
type Event struct {
	Key string
	Op  EventOp
}

// WatchSubscription delivers change events until closed.
type WatchSubscription interface {
	C() <-chan Event
	Close() error
}

// ChangeFeed is an optional capability for stores that can report object
// changes as they happen.
type ChangeFeed interface {
	Watch(ctx context.Context, prefix string) (WatchSubscription, error)
}

// paginateKeys slices a sorted key list down to the page opts selects.
// Drivers without server-side pagination list everything and cut here, the
// same way the in-memory fallback scan does.
func paginateKeys(keys []string, opts ListOptions) (page []string, truncated bool) {
	start := 0
	if opts.StartAfter != "" {
		start = sort.SearchStrings(keys, opts.StartAfter)
		for start < len(keys) && keys[start] <= opts.StartAfter {
			start++
		}
	}
	if start >= len(keys) {
		return nil, false
	}
	keys = keys[start:]
	if opts.Limit > 0 && len(keys) > opts.Limit {
		return keys[:opts.Limit], true
	}
	return keys, false
}

type transientError struct {
	err error
}

func (t transientError) Error() string { return t.err.Error() }
func (t transientError) Unwrap() error { return t.err }

// NewTransientError marks err as retryable.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked as retryable.
func IsTransient(err error) bool {
	var te transientError
	return errors.As(err, &te)
}
