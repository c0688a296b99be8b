package bootstrap

import (
	"strings"

	appconfig "github.com/sanctuaryhq/sanctuary/internal/config"
	"github.com/sanctuaryhq/sanctuary/internal/gateway"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

// BuildSMSGateway creates the outbound SMS gateway. The second return
// names why the gateway is absent so the caller can log one clear line.
func BuildSMSGateway(cfg *appconfig.Config, logger *logging.Logger) (gateway.SMSGateway, string) {
	if cfg == nil {
		return nil, "missing config"
	}
	if strings.TrimSpace(cfg.TwilioAccountSID) == "" || strings.TrimSpace(cfg.TwilioAuthToken) == "" {
		return nil, "twilio credentials not set"
	}
	if strings.TrimSpace(cfg.TwilioMessagingServiceSID) == "" && strings.TrimSpace(cfg.TwilioFromNumber) == "" {
		return nil, "no messaging service sid or from number"
	}

	tw := gateway.NewTwilio(gateway.TwilioConfig{
		AccountSID:          cfg.TwilioAccountSID,
		AuthToken:           cfg.TwilioAuthToken,
		MessagingServiceSID: cfg.TwilioMessagingServiceSID,
		FromNumber:          cfg.TwilioFromNumber,
		MaxAttempts:         cfg.TwilioRetryMaxAttempts,
		Timeout:             cfg.GatewaySendTimeout,
	}, logger)
	return tw, ""
}
