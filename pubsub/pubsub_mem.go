package pubsub

import (
	"context"
	"sync"
	"sync/atomic"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (PubSub, error) {
		return NewMem(MemConfig{
			Buffer: u.Int("buffer", DefaultSubscriberBuffer),
		}), nil
	}, "mem", "memory")
}

// MemConfig configures the in-process fanout.
type MemConfig struct {
	// Buffer bounds each subscriber queue. When a queue is full the oldest
	// buffered message is dropped so publishers never block.
	Buffer int
}

// Mem is an in-process topic fanout; intended for tests and single-process
// deployments.
type Mem struct {
	mu     sync.RWMutex
	topics map[string]map[*memSubscription]struct{}
	closed bool
	buffer int
}

type memSubscription struct {
	parent *Mem
	topic  string
	ch     chan Message
	once   sync.Once

	dropped atomic.Int64
}

// NewMem returns a ready in-process pub/sub fanout.
func NewMem(cfg MemConfig) *Mem {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultSubscriberBuffer
	}
	return &Mem{
		topics: make(map[string]map[*memSubscription]struct{}),
		buffer: cfg.Buffer,
	}
}

// Publish fans payload out to every subscriber of topic. Full subscriber
// queues drop their oldest message to make room.
func (m *Mem) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	for sub := range m.topics[topic] {
		sub.deliver(msg)
	}
	return nil
}

// Subscribe registers a new subscriber for topic.
func (m *Mem) Subscribe(_ context.Context, topic string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	sub := &memSubscription{
		parent: m,
		topic:  topic,
		ch:     make(chan Message, m.buffer),
	}
	watchers, ok := m.topics[topic]
	if !ok {
		watchers = make(map[*memSubscription]struct{})
		m.topics[topic] = watchers
	}
	watchers[sub] = struct{}{}
	return sub, nil
}

// Close tears down every subscription.
func (m *Mem) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var subs []*memSubscription
	for _, watchers := range m.topics {
		for sub := range watchers {
			subs = append(subs, sub)
		}
	}
	m.topics = make(map[string]map[*memSubscription]struct{})
	m.mu.Unlock()
	for _, sub := range subs {
		sub.shutdown()
	}
	return nil
}

// deliver runs under the parent read lock, so the channel cannot be closed
// concurrently: shutdown takes the write lock first.
func (s *memSubscription) deliver(msg Message) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// C returns the delivery channel.
func (s *memSubscription) C() <-chan Message { return s.ch }

// Dropped reports how many messages were discarded because the subscriber
// fell behind.
func (s *memSubscription) Dropped() int64 { return s.dropped.Load() }

// Close detaches the subscription and closes its channel.
func (s *memSubscription) Close() error {
	s.parent.mu.Lock()
	if watchers, ok := s.parent.topics[s.topic]; ok {
		delete(watchers, s)
		if len(watchers) == 0 {
			delete(s.parent.topics, s.topic)
		}
	}
	s.parent.mu.Unlock()
	s.shutdown()
	return nil
}

func (s *memSubscription) shutdown() {
	s.once.Do(func() { close(s.ch) })
}
