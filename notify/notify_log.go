package notify

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(ctx context.Context, _ *setting.URL) (Notifier, error) {
		return NewLog(pslog.LoggerFromContext(ctx)), nil
	}, "log")
}

// Log implements Notifier by recording notifications instead of sending
// them. Useful in development and as a test double.
type Log struct {
	logger pslog.Logger

	mu   sync.Mutex
	sent []*Notification
}

// NewLog returns a notifier that logs deliveries through logger.
func NewLog(logger pslog.Logger) *Log {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Log{logger: logger}
}

// Send validates the notification and records it as fully delivered.
func (l *Log) Send(_ context.Context, notification *Notification) (*Result, error) {
	if err := notification.Validate(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.sent = append(l.sent, notification)
	l.mu.Unlock()
	l.logger.Info("notify.sent",
		"tokens", len(notification.Tokens),
		"title", notification.Title,
	)
	return &Result{SuccessCount: len(notification.Tokens)}, nil
}

// Sent returns the notifications recorded so far.
func (l *Log) Sent() []*Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Notification, len(l.sent))
	copy(out, l.sent)
	return out
}

// Close is a no-op.
func (l *Log) Close() error { return nil }
