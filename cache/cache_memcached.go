package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (Cache, error) {
		servers := []string{u.Host()}
		if extra := u.String("servers", ""); extra != "" {
			for _, server := range strings.Split(extra, ",") {
				if server = strings.TrimSpace(server); server != "" {
					servers = append(servers, server)
				}
			}
		}
		return NewMemcached(MemcachedConfig{
			Servers:    servers,
			DefaultTTL: u.Duration("ttl", DefaultTTL),
			MaxTries:   u.Int("max-tries", DefaultModifyMaxTries),
			Timeout:    u.Duration("timeout", 0),
		})
	}, "memcached", "memcache")
}

// MemcachedConfig controls the memcached driver.
type MemcachedConfig struct {
	Servers    []string
	DefaultTTL time.Duration
	MaxTries   int
	// Timeout overrides the client socket timeout when > 0.
	Timeout time.Duration
}

// Memcached implements Cache on top of a memcached server pool. Modify uses
// the protocol's native gets/cas pair.
type Memcached struct {
	mc         *memcache.Client
	defaultTTL time.Duration
	maxTries   int
}

// NewMemcached builds a client for the supplied server list.
func NewMemcached(cfg MemcachedConfig) (*Memcached, error) {
	if len(cfg.Servers) == 0 || cfg.Servers[0] == "" {
		return nil, fmt.Errorf("cache: memcached requires at least one server (memcached://host:11211)")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultModifyMaxTries
	}
	mc := memcache.New(cfg.Servers...)
	if cfg.Timeout > 0 {
		mc.Timeout = cfg.Timeout
	}
	return &Memcached{
		mc:         mc,
		defaultTTL: cfg.DefaultTTL,
		maxTries:   cfg.MaxTries,
	}, nil
}

// memcached expirations beyond 30 days are interpreted as absolute unix
// timestamps, so relative TTLs are clamped just below that threshold.
const memcachedMaxRelativeExpiry = 30*24*time.Hour - time.Minute

func expirySeconds(ttl time.Duration) int32 {
	if ttl > memcachedMaxRelativeExpiry {
		ttl = memcachedMaxRelativeExpiry
	}
	return int32(ttl / time.Second)
}

// Get returns the value for key.
func (m *Memcached) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := m.mc.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: memcached get: %w", err)
	}
	return item.Value, true, nil
}

// Set stores value under key.
func (m *Memcached) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	err := m.mc.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: expirySeconds(ttl),
	})
	if err != nil {
		return fmt.Errorf("cache: memcached set: %w", err)
	}
	return nil
}

// Delete removes key.
func (m *Memcached) Delete(_ context.Context, key string) error {
	err := m.mc.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: memcached delete: %w", err)
	}
	return nil
}

// Modify applies fn using gets/cas. Absent keys are created with Add so two
// racing creators cannot both win.
func (m *Memcached) Modify(ctx context.Context, key string, ttl time.Duration, fn ModifyFunc) ([]byte, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	for try := 0; try < m.maxTries; try++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := m.mc.Get(key)
		exists := true
		if errors.Is(err, memcache.ErrCacheMiss) {
			item, exists = nil, false
		} else if err != nil {
			return nil, fmt.Errorf("cache: memcached modify read: %w", err)
		}
		var current []byte
		if exists {
			current = item.Value
		}
		next, err := fn(current, exists)
		if err != nil {
			return nil, err
		}
		if next == nil {
			if !exists {
				return nil, nil
			}
			err = m.mc.Delete(key)
			if errors.Is(err, memcache.ErrCacheMiss) {
				return nil, nil
			}
			if err != nil {
				return nil, fmt.Errorf("cache: memcached modify delete: %w", err)
			}
			return nil, nil
		}
		if !exists {
			err = m.mc.Add(&memcache.Item{
				Key:        key,
				Value:      next,
				Expiration: expirySeconds(ttl),
			})
			if errors.Is(err, memcache.ErrNotStored) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("cache: memcached modify add: %w", err)
			}
			return next, nil
		}
		item.Value = next
		item.Expiration = expirySeconds(ttl)
		err = m.mc.CompareAndSwap(item)
		if errors.Is(err, memcache.ErrCASConflict) || errors.Is(err, memcache.ErrNotStored) {
			continue
		}
		if errors.Is(err, memcache.ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cache: memcached modify cas: %w", err)
		}
		return next, nil
	}
	return nil, ErrTooMuchContention
}

// Ping verifies at least one server responds.
func (m *Memcached) Ping(_ context.Context) error {
	return m.mc.Ping()
}

// Close is a no-op; the client keeps no long-lived connections worth tearing
// down explicitly.
func (m *Memcached) Close() error { return nil }
