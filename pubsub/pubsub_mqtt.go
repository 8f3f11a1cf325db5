package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (PubSub, error) {
		scheme := "tcp"
		switch u.Scheme() {
		case "mqtts", "ssl":
			scheme = "ssl"
		}
		username := u.User()
		password, _ := u.Password()
		return NewMQTT(MQTTConfig{
			Broker:         fmt.Sprintf("%s://%s", scheme, u.Host()),
			ClientID:       u.String("client-id", ""),
			Username:       username,
			Password:       password,
			QoS:            byte(u.Int("qos", 0)),
			ConnectTimeout: u.Duration("connect-timeout", DefaultMQTTConnectTimeout),
		})
	}, "mqtt", "mqtts", "tcp", "ssl")
}

// DefaultMQTTConnectTimeout bounds the initial broker handshake.
const DefaultMQTTConnectTimeout = 10 * time.Second

// MQTTConfig controls the MQTT driver.
type MQTTConfig struct {
	// Broker is a paho broker URI such as "tcp://broker:1883".
	Broker   string
	ClientID string
	Username string
	Password string
	// QoS applies to both publishes and subscriptions (0, 1 or 2).
	QoS            byte
	ConnectTimeout time.Duration
}

// MQTT implements PubSub on an MQTT broker via the paho client.
type MQTT struct {
	client mqtt.Client
	qos    byte

	mu     sync.Mutex
	subs   map[*mqttSubscription]struct{}
	closed bool
}

type mqttSubscription struct {
	parent *MQTT
	topic  string
	ch     chan Message
	once   sync.Once
}

// NewMQTT connects to the broker and waits for the handshake to complete.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("pubsub: mqtt broker required (mqtt://host:1883)")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "svckit-" + uuid.NewString()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultMQTTConnectTimeout
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("pubsub: mqtt qos %d out of range", cfg.QoS)
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("pubsub: mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("pubsub: mqtt connect: %w", err)
	}
	return &MQTT{
		client: client,
		qos:    cfg.QoS,
		subs:   make(map[*mqttSubscription]struct{}),
	}, nil
}

// Publish sends payload to topic at the configured QoS.
func (m *MQTT) Publish(ctx context.Context, topic string, payload []byte) error {
	token := m.client.Publish(topic, m.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("pubsub: mqtt publish: %w", err)
	}
	return nil
}

// Subscribe attaches a handler for topic; messages flow through a bounded
// channel that drops on overflow.
func (m *MQTT) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &mqttSubscription{
		parent: m,
		topic:  topic,
		ch:     make(chan Message, DefaultSubscriberBuffer),
	}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	token := m.client.Subscribe(topic, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case sub.ch <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
		default:
			// Subscriber fell behind; at-most-once allows the drop.
		}
	})
	select {
	case <-token.Done():
	case <-ctx.Done():
		_ = sub.Close()
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("pubsub: mqtt subscribe: %w", err)
	}
	return sub, nil
}

// C returns the delivery channel.
func (s *mqttSubscription) C() <-chan Message { return s.ch }

// Close unsubscribes from the broker and closes the channel.
func (s *mqttSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.parent.mu.Lock()
		delete(s.parent.subs, s)
		closed := s.parent.closed
		s.parent.mu.Unlock()
		if !closed {
			token := s.parent.client.Unsubscribe(s.topic)
			token.Wait()
			err = token.Error()
		}
		close(s.ch)
	})
	return err
}

// Close disconnects from the broker after detaching all subscriptions.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := make([]*mqttSubscription, 0, len(m.subs))
	for sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subs = make(map[*mqttSubscription]struct{})
	m.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	m.client.Disconnect(250)
	return nil
}
