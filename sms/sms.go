// Package sms abstracts outbound text messaging behind a small Sender
// interface with Twilio, AWS SNS and log-only drivers. Senders are opened
// from settings URLs such as "twilio://SID:TOKEN@?from=%2B46701234567".
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxBodyLength caps message bodies. Longer texts are rejected rather than
// silently split; concatenation behaviour differs per carrier.
const MaxBodyLength = 1600

// ErrInvalidMessage indicates the message failed validation before any
// delivery attempt was made.
var ErrInvalidMessage = errors.New("sms: invalid message")

// Message is one outbound text message.
type Message struct {
	// To is the recipient in E.164 form, e.g. "+46701234567".
	To string
	// From is the sender number or alphanumeric ID; optional for drivers
	// with a configured default.
	From string
	Body string
}

// Validate checks the recipient number and body.
func (m *Message) Validate() error {
	if err := ValidateE164(m.To); err != nil {
		return err
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: body required", ErrInvalidMessage)
	}
	if len(m.Body) > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters", ErrInvalidMessage, MaxBodyLength)
	}
	return nil
}

// ValidateE164 checks that number is a plausible E.164 phone number: a plus
// sign followed by 8 to 15 digits with a non-zero leading digit.
func ValidateE164(number string) error {
	if !strings.HasPrefix(number, "+") {
		return fmt.Errorf("%w: number %q must start with +", ErrInvalidMessage, number)
	}
	digits := number[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return fmt.Errorf("%w: number %q must have 8-15 digits", ErrInvalidMessage, number)
	}
	if digits[0] == '0' {
		return fmt.Errorf("%w: number %q has a zero country code", ErrInvalidMessage, number)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: number %q contains non-digits", ErrInvalidMessage, number)
		}
	}
	return nil
}

// Sender delivers text messages through some provider.
type Sender interface {
	// Send delivers msg. Validation errors wrap ErrInvalidMessage.
	Send(ctx context.Context, msg *Message) error
	// Close releases provider resources.
	Close() error
}
