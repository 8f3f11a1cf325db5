package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (Cache, error) {
		cfg := MemConfig{
			DefaultTTL: u.Duration("ttl", DefaultTTL),
			MaxTries:   u.Int("max-tries", DefaultModifyMaxTries),
		}
		if u.Bool("sweep", true) {
			cfg.SweepInterval = u.Duration("sweep-interval", DefaultSweepInterval)
		}
		return NewMem(cfg), nil
	}, "mem", "memory")
}

// MemConfig configures the in-memory cache.
type MemConfig struct {
	// DefaultTTL applies to Set calls with a non-positive ttl.
	DefaultTTL time.Duration
	// MaxTries caps Modify CAS attempts.
	MaxTries int
	// SweepInterval enables a background janitor that evicts expired
	// entries. Zero disables the janitor; expired entries are then only
	// dropped lazily on read.
	SweepInterval time.Duration

	now func() time.Time
}

type memEntry struct {
	value   []byte
	version uint64
	expires time.Time
}

// Mem is a mutex-guarded map cache with TTL checks; intended for tests and
// single-process deployments.
type Mem struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	closed  bool

	defaultTTL time.Duration
	maxTries   int
	now        func() time.Time

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewMem returns a ready in-memory cache.
func NewMem(cfg MemConfig) *Mem {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultModifyMaxTries
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	m := &Mem{
		entries:    make(map[string]*memEntry),
		defaultTTL: cfg.DefaultTTL,
		maxTries:   cfg.MaxTries,
		now:        cfg.now,
		stopSweep:  make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go m.sweepLoop(cfg.SweepInterval)
	}
	return m
}

// Get returns the live value for key, treating expired entries as misses.
func (m *Mem) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, _, ok, err := m.load(key)
	return value, ok, err
}

func (m *Mem) load(key string) ([]byte, uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, 0, false, ErrClosed
	}
	entry, ok := m.entries[key]
	if !ok || m.now().After(entry.expires) {
		return nil, 0, false, nil
	}
	return append([]byte(nil), entry.value...), entry.version, true, nil
}

// Set stores value under key.
func (m *Mem) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	var version uint64
	if prev, ok := m.entries[key]; ok {
		version = prev.version
	}
	m.entries[key] = &memEntry{
		value:   append([]byte(nil), value...),
		version: version + 1,
		expires: m.now().Add(ttl),
	}
	return nil
}

// Delete removes key.
func (m *Mem) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, key)
	return nil
}

// Modify runs fn outside the lock and swaps the result in only when the entry
// version is unchanged, retrying up to maxTries on interleaved writes.
func (m *Mem) Modify(ctx context.Context, key string, ttl time.Duration, fn ModifyFunc) ([]byte, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	for try := 0; try < m.maxTries; try++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, version, exists, err := m.load(key)
		if err != nil {
			return nil, err
		}
		next, err := fn(current, exists)
		if err != nil {
			return nil, err
		}
		if next == nil {
			if m.swapDelete(key, version, exists) {
				return nil, nil
			}
			continue
		}
		if exists && bytes.Equal(current, next) {
			return next, nil
		}
		if m.swap(key, next, version, exists, ttl) {
			return next, nil
		}
	}
	return nil, ErrTooMuchContention
}

func (m *Mem) swap(key string, next []byte, version uint64, existed bool, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, present := m.entries[key]
	live := present && !m.now().After(entry.expires)
	if live != existed {
		return false
	}
	if live && entry.version != version {
		return false
	}
	// Version numbers stay monotonic per key even across expiry so that a
	// racing Modify holding a pre-expiry snapshot cannot swap in stale data.
	nextVersion := version + 1
	if present && entry.version >= nextVersion {
		nextVersion = entry.version + 1
	}
	m.entries[key] = &memEntry{
		value:   append([]byte(nil), next...),
		version: nextVersion,
		expires: m.now().Add(ttl),
	}
	return true
}

func (m *Mem) swapDelete(key string, version uint64, existed bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, present := m.entries[key]
	if !present {
		return !existed
	}
	live := !m.now().After(entry.expires)
	if !existed {
		if live {
			return false
		}
		delete(m.entries, key)
		return true
	}
	if !live || entry.version != version {
		return false
	}
	delete(m.entries, key)
	return true
}

// Len reports the number of stored entries, including not-yet-swept expired
// ones.
func (m *Mem) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the janitor and rejects further use.
func (m *Mem) Close() error {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}

func (m *Mem) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Mem) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	now := m.now()
	for key, entry := range m.entries {
		if now.After(entry.expires) {
			delete(m.entries, key)
		}
	}
}
