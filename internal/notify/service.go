package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sanctuaryhq/sanctuary/internal/gateway"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

// SMSSender sends SMS messages to the organizer.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ServiceConfig controls which alert channels fire.
type ServiceConfig struct {
	// AdminPhone receives a courtesy SMS for conversational inbound
	// messages when EnableSMSNotifications is set.
	AdminPhone             string
	EnableSMSNotifications bool

	// DashboardBaseURL is the admin UI origin used for inbox deep links.
	DashboardBaseURL string

	// ReportRecipients receive the post-broadcast summary email.
	ReportRecipients []string
}

// Service fans organizer alerts out to chat, SMS, and email. Every
// channel is optional; a nil sender just skips that channel.
type Service struct {
	notifier Notifier
	sms      SMSSender
	email    EmailSender
	cfg      ServiceConfig
	logger   *logging.Logger
}

// NewService creates a notification service.
func NewService(notifier Notifier, sms SMSSender, email EmailSender, cfg ServiceConfig, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	cfg.DashboardBaseURL = strings.TrimRight(cfg.DashboardBaseURL, "/")
	return &Service{
		notifier: notifier,
		sms:      sms,
		email:    email,
		cfg:      cfg,
		logger:   logger,
	}
}

// NotifyInbound posts an inbound-message alert to the chat notifier.
// It returns the thread reference of the new post so callers can file
// future messages from the same subscriber under it; the reference is
// empty when chat is unconfigured.
func (s *Service) NotifyInbound(ctx context.Context, text, threadRef string) (string, error) {
	if s.notifier == nil {
		s.logger.Debug("notify: chat notifier not configured, skipping")
		return "", nil
	}
	ts, err := s.notifier.Post(ctx, text, threadRef)
	if err != nil {
		return "", fmt.Errorf("notify: post inbound alert: %w", err)
	}
	return ts, nil
}

// AlertConversation texts the organizer a deep link to a conversation.
// Fired only for conversational inbound messages, never for keyword
// traffic.
func (s *Service) AlertConversation(ctx context.Context, subscriberID uuid.UUID, fromDisplay string) error {
	if !s.cfg.EnableSMSNotifications || s.cfg.AdminPhone == "" || s.sms == nil {
		return nil
	}

	body := fmt.Sprintf("Sanctuary: new message from %s. Reply: %s/inbox/%s",
		fromDisplay, s.cfg.DashboardBaseURL, subscriberID)

	if err := s.sms.SendSMS(ctx, s.cfg.AdminPhone, body); err != nil {
		s.logger.Error("notify: failed to send admin SMS", "error", err, "to", s.cfg.AdminPhone)
		return fmt.Errorf("notify: admin SMS: %w", err)
	}
	s.logger.Info("notify: admin SMS sent", "subscriber_id", subscriberID)
	return nil
}

// BroadcastReport summarizes a finished campaign for the report email.
type BroadcastReport struct {
	CampaignName string
	SentTo       int
	Failed       int
	TotalCost    float64
	SegmentCount int
	LinksTracked int
}

// SendBroadcastReport emails the campaign summary to the configured
// recipients. Callers treat failures as log-only.
func (s *Service) SendBroadcastReport(ctx context.Context, report BroadcastReport) error {
	if s.email == nil || len(s.cfg.ReportRecipients) == 0 {
		return nil
	}

	name := report.CampaignName
	if name == "" {
		name = "Untitled broadcast"
	}

	subject := fmt.Sprintf("Broadcast sent - %s", name)
	body := fmt.Sprintf(`Your broadcast "%s" has finished sending.

Delivered to: %d
Failed: %d
Segments per message: %d
Links tracked: %d
Estimated cost: $%.2f

— Sanctuary`, name, report.SentTo, report.Failed, report.SegmentCount, report.LinksTracked, report.TotalCost)

	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2>Broadcast sent</h2>
<p>Your broadcast <strong>%s</strong> has finished sending.</p>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Delivered to:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Failed:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Segments per message:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Links tracked:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Estimated cost:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">$%.2f</td></tr>
</table>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">— Sanctuary</p>
</div>`, name, report.SentTo, report.Failed, report.SegmentCount, report.LinksTracked, report.TotalCost)

	var errs []error
	for _, recipient := range s.cfg.ReportRecipients {
		msg := EmailMessage{
			To:      recipient,
			Subject: subject,
			Body:    body,
			HTML:    html,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send report email", "error", err, "to", recipient)
			errs = append(errs, err)
		} else {
			s.logger.Info("notify: report email sent", "to", recipient, "campaign", name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d report email(s) failed", len(errs))
	}
	return nil
}

// GatewaySender adapts the outbound SMS gateway to the notifier's
// one-way interface.
type GatewaySender struct {
	gw     gateway.SMSGateway
	logger *logging.Logger
}

// NewGatewaySender wraps an SMS gateway for organizer alerts.
func NewGatewaySender(gw gateway.SMSGateway, logger *logging.Logger) *GatewaySender {
	if logger == nil {
		logger = logging.Default()
	}
	return &GatewaySender{gw: gw, logger: logger}
}

// SendSMS sends an SMS message through the gateway.
func (g *GatewaySender) SendSMS(ctx context.Context, to, body string) error {
	if g.gw == nil {
		g.logger.Warn("notify: SMS gateway not configured")
		return nil
	}
	_, err := g.gw.Send(ctx, to, body)
	return err
}

// StubSMSSender is a no-op sender for testing.
type StubSMSSender struct {
	logger *logging.Logger
}

// NewStubSMSSender creates a stub SMS sender.
func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

// SendSMS logs but doesn't send.
func (s *StubSMSSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info("stub SMS sender: would send", "to", to, "body_preview", truncate(body, 50))
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Ensure interface compliance
var _ SMSSender = (*GatewaySender)(nil)
var _ SMSSender = (*StubSMSSender)(nil)
