package email

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(ctx context.Context, u *setting.URL) (Emailer, error) {
		return NewSES(ctx, SESConfig{
			Region: u.String("region", setting.FirstEnv("AWS_REGION", "AWS_DEFAULT_REGION")),
		})
	}, "ses", "aws-ses")
}

// SESClient is the subset of the SES v2 API the driver uses.
type SESClient interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig controls the AWS SES driver.
type SESConfig struct {
	Region string
	// Client overrides the AWS client; tests use this.
	Client SESClient
}

// SES implements Emailer on AWS Simple Email Service v2. Messages without
// attachments go out as structured content; attachments switch to a raw MIME
// upload.
type SES struct {
	client SESClient
}

// NewSES resolves AWS credentials from the default chain and returns the
// emailer.
func NewSES(ctx context.Context, cfg SESConfig) (*SES, error) {
	if cfg.Client != nil {
		return &SES{client: cfg.Client}, nil
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("email: load aws config: %w", err)
	}
	return &SES{client: sesv2.NewFromConfig(awsCfg)}, nil
}

// Send validates msg and delivers it through SES.
func (s *SES) Send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	input, err := sesInput(msg)
	if err != nil {
		return err
	}
	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("email: ses send: %w", err)
	}
	return nil
}

func sesInput(msg *Message) (*sesv2.SendEmailInput, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &sestypes.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if len(msg.Attachments) > 0 {
		// SES structured content cannot carry attachments; reuse the MIME
		// builder and upload the raw message instead.
		m, err := buildMail(msg)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if _, err := m.WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("email: render raw message: %w", err)
		}
		input.Content = &sestypes.EmailContent{
			Raw: &sestypes.RawMessage{Data: buf.Bytes()},
		}
		return input, nil
	}
	body := &sestypes.Body{}
	if msg.TextBody != "" {
		body.Text = &sestypes.Content{Data: aws.String(msg.TextBody)}
	}
	if msg.HTMLBody != "" {
		body.Html = &sestypes.Content{Data: aws.String(msg.HTMLBody)}
	}
	input.Content = &sestypes.EmailContent{
		Simple: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(msg.Subject)},
			Body:    body,
		},
	}
	return input, nil
}

// Close is a no-op for the AWS client.
func (s *SES) Close() error { return nil }
