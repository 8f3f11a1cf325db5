package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (Store, error) {
		root := "/" + u.Path()
		if u.Host() != "" {
			// Relative form: disk://data/blobs.
			root = filepath.Join(u.Host(), u.Path())
		}
		return NewDisk(DiskConfig{Root: root})
	}, "disk", "file")
}

// DiskConfig controls the local filesystem driver.
type DiskConfig struct {
	// Root is the directory all objects live under.
	Root string
}

// Disk implements Store on a local directory. Object keys map to relative
// file paths; writes are staged in a temp directory and renamed into place so
// readers never observe partial content. ETags are content hashes, so
// conditional writes compare against what is actually on disk.
type Disk struct {
	root string
	tmp  string

	// mu serializes conditional writes within this process. Cross-process
	// writers race between the hash check and the rename.
	mu sync.Mutex
}

// NewDisk creates the root and staging directories and returns the store.
func NewDisk(cfg DiskConfig) (*Disk, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("blob: disk root directory required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve disk root: %w", err)
	}
	tmp := filepath.Join(root, ".staging")
	for _, dir := range []string{root, tmp} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("blob: prepare %q: %w", dir, err)
		}
	}
	return &Disk{root: root, tmp: tmp}, nil
}

// Root returns the absolute directory objects live under.
func (d *Disk) Root() string { return d.root }

func (d *Disk) path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || cleaned == string(filepath.Separator) ||
		strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return filepath.Join(d.root, cleaned), nil
}

func etagOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

func fileETag(path string) (string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	return etagOf(data), int64(len(data)), nil
}

func (d *Disk) Get(ctx context.Context, key string) (*Object, error) {
	info, err := d.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	path, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob: open %q: %w", key, err)
	}
	return &Object{Info: info, Body: f}, nil
}

func (d *Disk) Stat(_ context.Context, key string) (Info, error) {
	path, err := d.path(key)
	if err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("blob: stat %q: %w", key, err)
	}
	if fi.IsDir() {
		return Info{}, ErrNotFound
	}
	etag, size, err := fileETag(path)
	if err != nil {
		return Info{}, fmt.Errorf("blob: hash %q: %w", key, err)
	}
	return Info{
		Key:         key,
		ETag:        etag,
		Size:        size,
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		ModTime:     fi.ModTime(),
	}, nil
}

func (d *Disk) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Info, error) {
	path, err := d.path(key)
	if err != nil {
		return Info{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Info{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	current, _, statErr := fileETag(path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return Info{}, fmt.Errorf("blob: read current %q: %w", key, statErr)
	}
	if opts.IfNotExists && exists {
		return Info{}, ErrCASMismatch
	}
	if opts.ExpectedETag != "" && (!exists || current != opts.ExpectedETag) {
		return Info{}, ErrCASMismatch
	}

	tmp, err := os.CreateTemp(d.tmp, "blob-*")
	if err != nil {
		return Info{}, fmt.Errorf("blob: create temp file: %w", err)
	}
	moved := false
	defer func() {
		_ = tmp.Close()
		if !moved {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return Info{}, fmt.Errorf("blob: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return Info{}, fmt.Errorf("blob: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("blob: close temp file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Info{}, fmt.Errorf("blob: prepare directory for %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Info{}, fmt.Errorf("blob: rename into place: %w", err)
	}
	moved = true

	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("blob: stat %q: %w", key, err)
	}
	return Info{
		Key:         key,
		ETag:        etagOf(data),
		Size:        int64(len(data)),
		ContentType: opts.ContentType,
		ModTime:     fi.ModTime(),
	}, nil
}

func (d *Disk) Delete(_ context.Context, key string, opts DeleteOptions) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if opts.ExpectedETag != "" {
		current, _, err := fileETag(path)
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("blob: read current %q: %w", key, err)
		}
		if current != opts.ExpectedETag {
			return ErrCASMismatch
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blob: remove %q: %w", key, err)
	}
	return nil
}

func (d *Disk) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path == d.tmp {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, opts.Prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("blob: list %q: %w", opts.Prefix, err)
	}
	sort.Strings(keys)
	page, truncated := paginateKeys(keys, opts)
	res := ListResult{Truncated: truncated}
	for _, key := range page {
		info, err := d.Stat(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// Removed between walk and stat.
			continue
		}
		if err != nil {
			return ListResult{}, err
		}
		res.Objects = append(res.Objects, info)
	}
	if truncated {
		res.NextStartAfter = page[len(page)-1]
	}
	return res, nil
}

// Watch delivers change events for keys under prefix via fsnotify. Only
// directories existing at subscription time are watched; new subdirectories
// are added as their creation events arrive.
func (d *Disk) Watch(_ context.Context, prefix string) (WatchSubscription, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("blob: create watcher: %w", err)
	}
	addDir := func(dir string) error {
		return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() {
				return nil
			}
			if path == d.tmp {
				return fs.SkipDir
			}
			return watcher.Add(path)
		})
	}
	if err := addDir(d.root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("blob: watch %q: %w", d.root, err)
	}
	sub := &diskWatch{
		store:   d,
		watcher: watcher,
		prefix:  prefix,
		ch:      make(chan Event, 64),
		stop:    make(chan struct{}),
	}
	go sub.run()
	return sub, nil
}

func (d *Disk) Close() error { return nil }

type diskWatch struct {
	store   *Disk
	watcher *fsnotify.Watcher
	prefix  string
	ch      chan Event
	stop    chan struct{}
	once    sync.Once
}

func (w *diskWatch) C() <-chan Event { return w.ch }

func (w *diskWatch) Close() error {
	w.once.Do(func() {
		close(w.stop)
		w.watcher.Close()
	})
	return nil
}

func (w *diskWatch) run() {
	defer close(w.ch)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *diskWatch) handle(ev fsnotify.Event) {
	if strings.HasPrefix(ev.Name, w.store.tmp) {
		return
	}
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.watcher.Add(ev.Name)
			return
		}
	}
	rel, err := filepath.Rel(w.store.root, ev.Name)
	if err != nil {
		return
	}
	key := filepath.ToSlash(rel)
	if !strings.HasPrefix(key, w.prefix) {
		return
	}
	var op EventOp
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		op = OpPut
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}
	select {
	case w.ch <- Event{Key: key, Op: op}:
	default:
		// Watcher fell behind; callers re-list on demand.
	}
}
