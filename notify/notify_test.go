package notify

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
)

func TestNotificationValidate(t *testing.T) {
	valid := &Notification{Tokens: []string{"tok-1"}, Title: "hi"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	dataOnly := &Notification{Tokens: []string{"tok-1"}, Data: map[string]string{"k": "v"}}
	if err := dataOnly.Validate(); err != nil {
		t.Fatalf("data-only notification rejected: %v", err)
	}
	cases := []*Notification{
		{Title: "no tokens"},
		{Tokens: []string{""}, Title: "empty token"},
		{Tokens: []string{"tok-1"}},
		{Tokens: make([]string, MaxTokensPerSend+1), Title: "too many"},
	}
	for i := range cases[3].Tokens {
		cases[3].Tokens[i] = "tok"
	}
	for _, n := range cases {
		if err := n.Validate(); !errors.Is(err, ErrInvalidNotification) {
			t.Fatalf("notification %+v: err = %v, want ErrInvalidNotification", n, err)
		}
	}
}

type fakeFCM struct {
	messages []*messaging.MulticastMessage
	resp     *messaging.BatchResponse
	err      error
}

func (f *fakeFCM) SendEachForMulticast(_ context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.messages = append(f.messages, msg)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestFCMSendReportsPartialFailures(t *testing.T) {
	ctx := context.Background()
	fake := &fakeFCM{
		resp: &messaging.BatchResponse{
			SuccessCount: 2,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true},
				{Success: false},
				{Success: true},
			},
		},
	}
	notifier, err := NewFCM(ctx, FCMConfig{Client: fake})
	if err != nil {
		t.Fatalf("new fcm: %v", err)
	}
	result, err := notifier.Send(ctx, &Notification{
		Tokens: []string{"tok-a", "tok-b", "tok-c"},
		Title:  "build finished",
		Body:   "all green",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.SuccessCount != 2 || result.FailureCount != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.FailedTokens) != 1 || result.FailedTokens[0] != "tok-b" {
		t.Fatalf("failed tokens = %v, want [tok-b]", result.FailedTokens)
	}
	msg := fake.messages[0]
	if msg.Notification == nil || msg.Notification.Title != "build finished" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestFCMSendDataOnly(t *testing.T) {
	ctx := context.Background()
	fake := &fakeFCM{resp: &messaging.BatchResponse{SuccessCount: 1, Responses: []*messaging.SendResponse{{Success: true}}}}
	notifier, err := NewFCM(ctx, FCMConfig{Client: fake})
	if err != nil {
		t.Fatalf("new fcm: %v", err)
	}
	if _, err := notifier.Send(ctx, &Notification{
		Tokens: []string{"tok-a"},
		Data:   map[string]string{"sync": "now"},
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if fake.messages[0].Notification != nil {
		t.Fatalf("data-only send produced a display notification")
	}
}

func TestFCMRejectsInvalidNotification(t *testing.T) {
	fake := &fakeFCM{}
	notifier, err := NewFCM(context.Background(), FCMConfig{Client: fake})
	if err != nil {
		t.Fatalf("new fcm: %v", err)
	}
	if _, err := notifier.Send(context.Background(), &Notification{}); !errors.Is(err, ErrInvalidNotification) {
		t.Fatalf("err = %v, want ErrInvalidNotification", err)
	}
	if len(fake.messages) != 0 {
		t.Fatalf("invalid notification reached the provider")
	}
}

func TestLogNotifier(t *testing.T) {
	sink := NewLog(nil)
	result, err := sink.Send(context.Background(), &Notification{Tokens: []string{"a", "b"}, Title: "t"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.SuccessCount != 2 || result.FailureCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if sent := sink.Sent(); len(sent) != 1 {
		t.Fatalf("unexpected recorded notifications: %+v", sent)
	}
}

func TestOpenLogScheme(t *testing.T) {
	notifier, err := Open(context.Background(), "log://")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer notifier.Close()
	if _, ok := notifier.(*Log); !ok {
		t.Fatalf("open returned %T, want *Log", notifier)
	}
}
