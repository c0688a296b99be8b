package gateway

import "context"

// SendResult reports what the provider accepted for a single message.
type SendResult struct {
	ProviderMessageID string
	InitialStatus     string
}

// SMSGateway delivers one SMS to one recipient.
type SMSGateway interface {
	Send(ctx context.Context, to, body string) (SendResult, error)
}
