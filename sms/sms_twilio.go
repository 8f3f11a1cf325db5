package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (Sender, error) {
		token, _ := u.Password()
		if token == "" {
			token = u.Secret("auth-token", "TWILIO_AUTH_TOKEN")
		}
		accountSID := u.User()
		if accountSID == "" {
			accountSID = setting.FirstEnv("TWILIO_ACCOUNT_SID")
		}
		return NewTwilio(TwilioConfig{
			AccountSID: accountSID,
			AuthToken:  token,
			From:       u.String("from", ""),
		})
	}, "twilio")
}

// TwilioClient is the subset of the Twilio messaging API the driver uses.
type TwilioClient interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioConfig controls the Twilio driver.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// From is the default sender; messages can override it.
	From string
	// Client overrides the Twilio client; tests use this.
	Client TwilioClient
}

// Twilio implements Sender on the Twilio messaging API.
type Twilio struct {
	client TwilioClient
	from   string
}

// NewTwilio builds a client for the configured account.
func NewTwilio(cfg TwilioConfig) (*Twilio, error) {
	if cfg.Client != nil {
		return &Twilio{client: cfg.Client, from: cfg.From}, nil
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("sms: twilio account SID and auth token required")
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Twilio{client: rest.Api, from: cfg.From}, nil
}

// Send validates msg and delivers it through Twilio.
func (t *Twilio) Send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	from := msg.From
	if from == "" {
		from = t.from
	}
	if from == "" {
		return fmt.Errorf("%w: no sender configured", ErrInvalidMessage)
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(from)
	params.SetBody(msg.Body)
	if _, err := t.client.CreateMessage(params); err != nil {
		return fmt.Errorf("sms: twilio send: %w", err)
	}
	return nil
}

// Close is a no-op for the Twilio client.
func (t *Twilio) Close() error { return nil }
