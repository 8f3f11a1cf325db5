package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	rediscache "github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(openRedis, "redis", "rediss")
}

// RedisConfig controls the Redis cache driver.
type RedisConfig struct {
	// Options configure the underlying go-redis client.
	Options *redis.Options
	// DefaultTTL applies to Set calls with a non-positive ttl.
	DefaultTTL time.Duration
	// MaxTries caps Modify CAS attempts.
	MaxTries int
	// LocalEntries enables a TinyLFU in-process tier for Get when > 0.
	// Modify always reads the authoritative Redis copy.
	LocalEntries int
	// KeyPrefix namespaces every key; defaults to "cache/".
	KeyPrefix string
}

// Redis implements Cache backed by a Redis server. Values are stored as raw
// bytes so WATCH-based compare-and-swap in Modify observes exactly what Set
// wrote.
type Redis struct {
	rdb        *redis.Client
	tiered     *rediscache.Cache
	defaultTTL time.Duration
	maxTries   int
	prefix     string
}

func openRedis(ctx context.Context, u *setting.URL) (Cache, error) {
	cfg := RedisConfig{
		DefaultTTL:   u.Duration("ttl", DefaultTTL),
		MaxTries:     u.Int("max-tries", DefaultModifyMaxTries),
		LocalEntries: u.Int("local-entries", 0),
		KeyPrefix:    u.String("prefix", ""),
	}
	u.DelegateQuery()
	opts, err := redis.ParseURL(u.WithoutQuery("ttl", "max-tries", "local-entries", "prefix"))
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis URL: %w", err)
	}
	cfg.Options = opts
	return NewRedis(ctx, cfg)
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Options == nil {
		return nil, fmt.Errorf("cache: redis options required")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultModifyMaxTries
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "cache/"
	}
	rdb := redis.NewClient(cfg.Options)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	cacheOpts := &rediscache.Options{Redis: rdb}
	if cfg.LocalEntries > 0 {
		cacheOpts.LocalCache = rediscache.NewTinyLFU(cfg.LocalEntries, cfg.DefaultTTL)
	}
	return &Redis{
		rdb:        rdb,
		tiered:     rediscache.New(cacheOpts),
		defaultTTL: cfg.DefaultTTL,
		maxTries:   cfg.MaxTries,
		prefix:     cfg.KeyPrefix,
	}, nil
}

func (r *Redis) key(key string) string { return r.prefix + key }

// Get returns the value for key, consulting the local tier first when
// enabled.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.tiered.Get(ctx, r.key(key), &value)
	if errors.Is(err, rediscache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}
	return value, true, nil
}

// Set stores value under key.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	err := r.tiered.Set(&rediscache.Item{
		Ctx:   ctx,
		Key:   r.key(key),
		Value: value,
		TTL:   ttl,
	})
	if err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Delete removes key from Redis and the local tier.
func (r *Redis) Delete(ctx context.Context, key string) error {
	err := r.tiered.Delete(ctx, r.key(key))
	if errors.Is(err, rediscache.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: redis delete: %w", err)
	}
	return nil
}

// Modify applies fn under WATCH-based optimistic concurrency. Every attempt
// reads the authoritative server copy, never the local tier.
func (r *Redis) Modify(ctx context.Context, key string, ttl time.Duration, fn ModifyFunc) ([]byte, error) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	fullKey := r.key(key)
	var stored []byte
	attempt := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, fullKey).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			current, exists = nil, false
		} else if err != nil {
			return fmt.Errorf("cache: redis modify read: %w", err)
		}
		next, err := fn(current, exists)
		if err != nil {
			return err
		}
		stored = next
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, fullKey)
				return nil
			}
			pipe.Set(ctx, fullKey, next, ttl)
			return nil
		})
		return err
	}
	for try := 0; try < r.maxTries; try++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := r.rdb.Watch(ctx, attempt, fullKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// Drop any stale local tier copy so the next Get sees the swap.
		_ = r.tiered.Delete(ctx, fullKey)
		return stored, nil
	}
	return nil, ErrTooMuchContention
}

// Ping verifies server connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
