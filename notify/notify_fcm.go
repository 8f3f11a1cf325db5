package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(ctx context.Context, u *setting.URL) (Notifier, error) {
		return NewFCM(ctx, FCMConfig{
			ProjectID:       u.Host(),
			CredentialsFile: u.String("credentials-file", setting.FirstEnv("GOOGLE_APPLICATION_CREDENTIALS")),
		})
	}, "fcm", "firebase")
}

// FCMClient is the subset of the Firebase messaging API the driver uses.
type FCMClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMConfig controls the Firebase Cloud Messaging driver.
type FCMConfig struct {
	ProjectID string
	// CredentialsFile points at a service account JSON file; empty falls
	// back to application default credentials.
	CredentialsFile string
	// Client overrides the Firebase client; tests use this.
	Client FCMClient
}

// FCM implements Notifier on Firebase Cloud Messaging.
type FCM struct {
	client FCMClient
}

// NewFCM initializes the Firebase app and messaging client.
func NewFCM(ctx context.Context, cfg FCMConfig) (*FCM, error) {
	if cfg.Client != nil {
		return &FCM{client: cfg.Client}, nil
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: init messaging client: %w", err)
	}
	return &FCM{client: client}, nil
}

// Send validates the notification and fans it out as one multicast. Rejected
// tokens come back in Result.FailedTokens rather than as an error.
func (f *FCM) Send(ctx context.Context, notification *Notification) (*Result, error) {
	if err := notification.Validate(); err != nil {
		return nil, err
	}
	msg := &messaging.MulticastMessage{
		Tokens: notification.Tokens,
		Data:   notification.Data,
	}
	if notification.Title != "" || notification.Body != "" {
		msg.Notification = &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		}
	}
	resp, err := f.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("notify: fcm multicast: %w", err)
	}
	result := &Result{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
	}
	for i, sr := range resp.Responses {
		if sr != nil && !sr.Success && i < len(notification.Tokens) {
			result.FailedTokens = append(result.FailedTokens, notification.Tokens[i])
		}
	}
	return result, nil
}

// Close is a no-op for the Firebase client.
func (f *FCM) Close() error { return nil }
