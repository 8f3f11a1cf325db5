package sms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(ctx context.Context, u *setting.URL) (Sender, error) {
		return NewSNS(ctx, SNSConfig{
			Region:   u.String("region", setting.FirstEnv("AWS_REGION", "AWS_DEFAULT_REGION")),
			SenderID: u.String("sender-id", ""),
		})
	}, "sns", "aws-sns")
}

// SNSClient is the subset of the SNS API the driver uses.
type SNSClient interface {
	Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSConfig controls the AWS SNS driver.
type SNSConfig struct {
	Region string
	// SenderID is the alphanumeric sender shown to recipients where the
	// destination network supports it.
	SenderID string
	// Client overrides the AWS client; tests use this.
	Client SNSClient
}

// SNS implements Sender by publishing directly to phone numbers through AWS
// SNS. The From field of messages is ignored; SNS sender identity is
// account-level.
type SNS struct {
	client   SNSClient
	senderID string
}

// NewSNS resolves AWS credentials from the default chain and returns the
// sender.
func NewSNS(ctx context.Context, cfg SNSConfig) (*SNS, error) {
	if cfg.Client != nil {
		return &SNS{client: cfg.Client, senderID: cfg.SenderID}, nil
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("sms: load aws config: %w", err)
	}
	return &SNS{client: sns.NewFromConfig(awsCfg), senderID: cfg.SenderID}, nil
}

// Send validates msg and publishes it to the recipient number.
func (s *SNS) Send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	input := &sns.PublishInput{
		PhoneNumber: aws.String(msg.To),
		Message:     aws.String(msg.Body),
	}
	if s.senderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.senderID),
			},
		}
	}
	if _, err := s.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sms: sns publish: %w", err)
	}
	return nil
}

// Close is a no-op for the AWS client.
func (s *SNS) Close() error { return nil }
