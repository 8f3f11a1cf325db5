package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(ctx context.Context, u *setting.URL) (PubSub, error) {
		u.DelegateQuery()
		opts, err := redis.ParseURL(u.Raw())
		if err != nil {
			return nil, fmt.Errorf("pubsub: parse redis URL: %w", err)
		}
		return NewRedis(ctx, RedisConfig{Options: opts})
	}, "redis", "rediss")
}

// RedisConfig controls the Redis pub/sub driver.
type RedisConfig struct {
	Options *redis.Options
}

// Redis implements PubSub on Redis channels. Delivery inherits Redis
// semantics: at-most-once, fanout to all connected subscribers.
type Redis struct {
	rdb *redis.Client

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

type redisSubscription struct {
	parent *Redis
	ps     *redis.PubSub
	ch     chan Message
	done   chan struct{}
	once   sync.Once
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Options == nil {
		return nil, fmt.Errorf("pubsub: redis options required")
	}
	rdb := redis.NewClient(cfg.Options)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pubsub: redis ping: %w", err)
	}
	return &Redis{
		rdb:  rdb,
		subs: make(map[*redisSubscription]struct{}),
	}, nil
}

// Publish sends payload on the Redis channel named topic.
func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("pubsub: redis publish: %w", err)
	}
	return nil
}

// Subscribe opens a dedicated Redis subscription for topic.
func (r *Redis) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	ps := r.rdb.Subscribe(ctx, topic)
	// Force the SUBSCRIBE handshake so a dead server fails here, not on
	// first receive.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("pubsub: redis subscribe: %w", err)
	}
	sub := &redisSubscription{
		parent: r,
		ps:     ps,
		ch:     make(chan Message, DefaultSubscriberBuffer),
		done:   make(chan struct{}),
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ps.Close()
		return nil, ErrClosed
	}
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
	go sub.pump()
	return sub, nil
}

func (s *redisSubscription) pump() {
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

// C returns the delivery channel.
func (s *redisSubscription) C() <-chan Message { return s.ch }

// Close unsubscribes and stops the pump.
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.parent.mu.Lock()
		delete(s.parent.subs, s)
		s.parent.mu.Unlock()
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// Ping verifies server connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close tears down every subscription and the client pool.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*redisSubscription, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	r.subs = make(map[*redisSubscription]struct{})
	r.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	return r.rdb.Close()
}
