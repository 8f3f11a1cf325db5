package sms

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(ctx context.Context, _ *setting.URL) (Sender, error) {
		return NewLog(pslog.LoggerFromContext(ctx)), nil
	}, "log")
}

// Log implements Sender by recording messages instead of sending them.
// Useful in development and as a test double.
type Log struct {
	logger pslog.Logger

	mu   sync.Mutex
	sent []*Message
}

// NewLog returns a sender that logs deliveries through logger.
func NewLog(logger pslog.Logger) *Log {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Log{logger: logger}
}

// Send validates msg and records it.
func (l *Log) Send(_ context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()
	l.logger.Info("sms.sent", "to", msg.To, "length", len(msg.Body))
	return nil
}

// Sent returns the messages recorded so far.
func (l *Log) Sent() []*Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Message, len(l.sent))
	copy(out, l.sent)
	return out
}

// Close is a no-op.
func (l *Log) Close() error { return nil }
