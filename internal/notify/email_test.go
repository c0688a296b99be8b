package notify

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "reports@example.org",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSenderFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "SG.test",
		FromEmail: "reports@example.org",
	}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Sanctuary" {
		t.Errorf("expected default from name 'Sanctuary', got %q", sender.fromName)
	}

	sender = NewSendGridSender(SendGridConfig{
		APIKey:    "SG.test",
		FromEmail: "reports@example.org",
		FromName:  "Sanctuary Ops",
	}, nil)
	if sender == nil || sender.fromName != "Sanctuary Ops" {
		t.Errorf("expected configured from name to win")
	}
}

func TestSendGridSenderSendNilClient(t *testing.T) {
	sender := &SendGridSender{}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "organizer@example.org",
		Subject: "Broadcast sent - Spring Sale",
		Body:    "Delivered to: 120",
	})

	if err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestNewSESSenderRequiresIdentity(t *testing.T) {
	client := sesv2.New(sesv2.Options{Region: "us-east-1"})

	if sender := NewSESSender(nil, SESConfig{FromEmail: "reports@example.org"}, nil); sender != nil {
		t.Error("expected nil sender without a client")
	}
	if sender := NewSESSender(client, SESConfig{}, nil); sender != nil {
		t.Error("expected nil sender without a verified from address")
	}
	if sender := NewSESSender(client, SESConfig{FromEmail: "reports@example.org"}, nil); sender == nil {
		t.Error("expected sender with client and identity")
	}
}

func TestStubEmailSenderSend(t *testing.T) {
	sender := NewStubEmailSender(nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "organizer@example.org",
		Subject: "Broadcast sent - Spring Sale",
		Body:    "Delivered to: 120",
	})

	if err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}
