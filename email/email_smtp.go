package email

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	gomail "github.com/wneessen/go-mail"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (Emailer, error) {
		password, _ := u.Password()
		if password == "" {
			password = u.Secret("password", "SMTP_PASSWORD")
		}
		cfg := SMTPConfig{
			Host:     u.Hostname(),
			Port:     u.Int("port", 0),
			Username: u.User(),
			Password: password,
			SSL:      u.Scheme() == "smtps",
			StartTLS: u.Bool("starttls", true),
		}
		if cfg.Port == 0 && u.Port() != "" {
			if port, err := strconv.Atoi(u.Port()); err == nil {
				cfg.Port = port
			}
		}
		return NewSMTP(cfg)
	}, "smtp", "smtps")
}

// SMTPConfig controls the SMTP driver.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL uses implicit TLS (port 465 style) instead of STARTTLS.
	SSL bool
	// StartTLS requires a STARTTLS upgrade; ignored when SSL is set.
	StartTLS bool
}

// SMTP implements Emailer over an SMTP relay.
type SMTP struct {
	client *gomail.Client
}

// NewSMTP builds a client for the configured relay. No connection is made
// until the first Send.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("email: smtp host required")
	}
	opts := []gomail.Option{}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	switch {
	case cfg.SSL:
		opts = append(opts, gomail.WithSSL())
	case cfg.StartTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: smtp client: %w", err)
	}
	return &SMTP{client: client}, nil
}

// Send validates msg and delivers it through the relay.
func (s *SMTP) Send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m, err := buildMail(msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: smtp send: %w", err)
	}
	return nil
}

func buildMail(msg *Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("%w: from %q: %v", ErrInvalidMessage, msg.From, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrInvalidMessage, err)
	}
	if len(msg.Cc) > 0 {
		if err := m.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("%w: cc: %v", ErrInvalidMessage, err)
		}
	}
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return nil, fmt.Errorf("%w: bcc: %v", ErrInvalidMessage, err)
		}
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("%w: reply-to: %v", ErrInvalidMessage, err)
		}
	}
	m.Subject(msg.Subject)
	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
	}
	for _, att := range msg.Attachments {
		var opts []gomail.FileOption
		if att.ContentType != "" {
			opts = append(opts, gomail.WithFileContentType(gomail.ContentType(att.ContentType)))
		}
		if err := m.AttachReader(att.Filename, bytes.NewReader(att.Data), opts...); err != nil {
			return nil, fmt.Errorf("email: attach %q: %w", att.Filename, err)
		}
	}
	return m, nil
}

// Close is a no-op; the client dials per send.
func (s *SMTP) Close() error { return nil }
