package blob

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, _ *setting.URL) (Store, error) {
		return NewMem(), nil
	}, "mem", "memory")
}

type memObject struct {
	data        []byte
	etag        string
	contentType string
	modTime     time.Time
}

// Mem implements Store on an in-process map; intended for tests and
// single-process deployments.
type Mem struct {
	mu       sync.RWMutex
	objects  map[string]*memObject
	watchers map[*memWatch]struct{}
	closed   bool
}

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		objects:  make(map[string]*memObject),
		watchers: make(map[*memWatch]struct{}),
	}
}

func (m *Mem) Get(ctx context.Context, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{
		Info: m.info(key, obj),
		Body: io.NopCloser(bytes.NewReader(obj.data)),
	}, nil
}

func (m *Mem) Stat(ctx context.Context, key string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Info{}, ErrClosed
	}
	obj, ok := m.objects[key]
	if !ok {
		return Info{}, ErrNotFound
	}
	return m.info(key, obj), nil
}

func (m *Mem) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Info, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Info{}, ErrClosed
	}
	current, exists := m.objects[key]
	if opts.IfNotExists && exists {
		return Info{}, ErrCASMismatch
	}
	if opts.ExpectedETag != "" {
		if !exists || current.etag != opts.ExpectedETag {
			return Info{}, ErrCASMismatch
		}
	}
	obj := &memObject{
		data:        data,
		etag:        xid.New().String(),
		contentType: opts.ContentType,
		modTime:     time.Now(),
	}
	m.objects[key] = obj
	m.notify(Event{Key: key, Op: OpPut})
	return m.info(key, obj), nil
}

func (m *Mem) Delete(ctx context.Context, key string, opts DeleteOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	current, exists := m.objects[key]
	if opts.ExpectedETag != "" {
		if !exists {
			return ErrNotFound
		}
		if current.etag != opts.ExpectedETag {
			return ErrCASMismatch
		}
	}
	if !exists {
		return nil
	}
	delete(m.objects, key)
	m.notify(Event{Key: key, Op: OpDelete})
	return nil
}

func (m *Mem) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ListResult{}, ErrClosed
	}
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, opts.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	page, truncated := paginateKeys(keys, opts)
	res := ListResult{Truncated: truncated}
	for _, key := range page {
		res.Objects = append(res.Objects, m.info(key, m.objects[key]))
	}
	if truncated {
		res.NextStartAfter = page[len(page)-1]
	}
	return res, nil
}

// Watch delivers change events for keys under prefix.
func (m *Mem) Watch(_ context.Context, prefix string) (WatchSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	w := &memWatch{
		parent: m,
		prefix: prefix,
		ch:     make(chan Event, 64),
	}
	m.watchers[w] = struct{}{}
	return w, nil
}

// Close tears down watchers and rejects further operations.
func (m *Mem) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	watchers := make([]*memWatch, 0, len(m.watchers))
	for w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.watchers = make(map[*memWatch]struct{})
	m.mu.Unlock()
	for _, w := range watchers {
		w.shutdown()
	}
	return nil
}

func (m *Mem) info(key string, obj *memObject) Info {
	return Info{
		Key:         key,
		ETag:        obj.etag,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		ModTime:     obj.modTime,
	}
}

// notify runs under the write lock; full watcher queues drop the event.
func (m *Mem) notify(ev Event) {
	for w := range m.watchers {
		if !strings.HasPrefix(ev.Key, w.prefix) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
		}
	}
}

type memWatch struct {
	parent *Mem
	prefix string
	ch     chan Event
	once   sync.Once
}

func (w *memWatch) C() <-chan Event { return w.ch }

func (w *memWatch) Close() error {
	w.parent.mu.Lock()
	delete(w.parent.watchers, w)
	w.parent.mu.Unlock()
	w.shutdown()
	return nil
}

func (w *memWatch) shutdown() {
	w.once.Do(func() { close(w.ch) })
}
