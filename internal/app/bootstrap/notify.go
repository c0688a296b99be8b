package bootstrap

import (
	"context"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/sanctuaryhq/sanctuary/internal/config"
	"github.com/sanctuaryhq/sanctuary/internal/gateway"
	"github.com/sanctuaryhq/sanctuary/internal/notify"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

// BuildNotifier returns the chat notifier, or nil when Slack is not
// configured.
func BuildNotifier(cfg *appconfig.Config, logger *logging.Logger) notify.Notifier {
	if cfg == nil {
		return nil
	}
	slack := notify.NewSlackNotifier(notify.SlackConfig{
		BotToken:  cfg.SlackBotToken,
		ChannelID: cfg.SlackChannel,
	}, logger)
	if slack == nil {
		// A typed nil inside the interface would defeat the service's
		// nil checks.
		return nil
	}
	return slack
}

// BuildEmailSender picks the report email provider from configuration.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: firstNonEmpty(cfg.ReportFromEmail, cfg.SendGridFromEmail),
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender == nil {
			logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty, reports disabled")
			return nil
		}
		return sender
	case "ses":
		client := buildSESClient(ctx, cfg, logger)
		if client == nil {
			return nil
		}
		sender := notify.NewSESSender(client, notify.SESConfig{
			FromEmail: cfg.ReportFromEmail,
		}, logger)
		if sender == nil {
			logger.Warn("ses selected but REPORT_FROM_EMAIL is empty, reports disabled")
			return nil
		}
		return sender
	case "":
		return nil
	default:
		logger.Warn("unknown email provider, reports disabled", "provider", cfg.EmailProvider)
		return nil
	}
}

func buildSESClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *sesv2.Client {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		logger.Error("load AWS config failed, SES reports disabled", "error", err)
		return nil
	}
	return sesv2.NewFromConfig(awsCfg)
}

// BuildNotifyService assembles the organizer alert fan-out. The SMS
// channel rides the same gateway broadcasts use.
func BuildNotifyService(
	ctx context.Context,
	cfg *appconfig.Config,
	gw gateway.SMSGateway,
	logger *logging.Logger,
) *notify.Service {
	var sms notify.SMSSender
	if gw != nil {
		sms = notify.NewGatewaySender(gw, logger)
	}
	return notify.NewService(
		BuildNotifier(cfg, logger),
		sms,
		BuildEmailSender(ctx, cfg, logger),
		notify.ServiceConfig{
			AdminPhone:             cfg.AdminPhoneNumber,
			EnableSMSNotifications: cfg.EnableSMSNotifications,
			DashboardBaseURL:       cfg.PublicBaseURL,
			ReportRecipients:       cfg.ReportRecipients,
		},
		logger,
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
