// Package notify abstracts mobile push notifications behind a small Notifier
// interface with Firebase Cloud Messaging and log-only drivers. Notifiers are
// opened from settings URLs such as
// "fcm://my-project?credentials-file=/etc/fcm.json".
package notify

import (
	"context"
	"errors"
	"fmt"
)

// MaxTokensPerSend caps the device tokens in one notification, matching the
// FCM multicast limit.
const MaxTokensPerSend = 500

// ErrInvalidNotification indicates the notification failed validation before
// any delivery attempt was made.
var ErrInvalidNotification = errors.New("notify: invalid notification")

// Notification is one push notification fanned out to a set of device
// tokens.
type Notification struct {
	Tokens []string
	Title  string
	Body   string
	// Data carries optional key/value payload delivered to the app.
	Data map[string]string
}

// Validate checks tokens and content.
func (n *Notification) Validate() error {
	if len(n.Tokens) == 0 {
		return fmt.Errorf("%w: at least one device token required", ErrInvalidNotification)
	}
	if len(n.Tokens) > MaxTokensPerSend {
		return fmt.Errorf("%w: %d tokens exceeds limit of %d", ErrInvalidNotification, len(n.Tokens), MaxTokensPerSend)
	}
	for i, token := range n.Tokens {
		if token == "" {
			return fmt.Errorf("%w: empty token at index %d", ErrInvalidNotification, i)
		}
	}
	if n.Title == "" && n.Body == "" && len(n.Data) == 0 {
		return fmt.Errorf("%w: empty notification", ErrInvalidNotification)
	}
	return nil
}

// Result reports per-token delivery outcome. A Send returning a Result with
// failures is not an error; only total delivery failure is.
type Result struct {
	SuccessCount int
	FailureCount int
	// FailedTokens lists the tokens the provider rejected, in input order.
	// Callers typically prune these from their registries.
	FailedTokens []string
}

// Notifier fans notifications out to devices through some provider.
type Notifier interface {
	Send(ctx context.Context, notification *Notification) (*Result, error)
	Close() error
}
