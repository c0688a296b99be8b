package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var twilioTracer = otel.Tracer("sanctuary.internal.gateway.twilio")

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig carries credentials and client knobs for the REST API.
type TwilioConfig struct {
	AccountSID          string
	AuthToken           string
	MessagingServiceSID string
	FromNumber          string
	MaxAttempts         int
	Timeout             time.Duration
	// BaseURL overrides the API host. Tests point it at a local server.
	BaseURL string
}

// Twilio posts SMS messages using Twilio's REST API.
type Twilio struct {
	cfg        TwilioConfig
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilio builds a client with sane defaults.
func NewTwilio(cfg TwilioConfig, logger *logging.Logger) *Twilio {
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Twilio{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

var _ SMSGateway = (*Twilio)(nil)

// Send dispatches a single SMS, retrying transient failures.
func (t *Twilio) Send(ctx context.Context, to, body string) (SendResult, error) {
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return SendResult{}, errors.New("gateway: twilio credentials missing")
	}
	if to == "" {
		return SendResult{}, errors.New("gateway: to required")
	}
	if strings.TrimSpace(body) == "" {
		return SendResult{}, errors.New("gateway: body required")
	}
	if t.cfg.MessagingServiceSID == "" && t.cfg.FromNumber == "" {
		return SendResult{}, errors.New("gateway: messaging service sid or from number required")
	}

	ctx, span := twilioTracer.Start(ctx, "gateway.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("sanctuary.to", to))

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("Body", body)
	if t.cfg.MessagingServiceSID != "" {
		payload.Set("MessagingServiceSid", t.cfg.MessagingServiceSID)
	} else {
		payload.Set("From", t.cfg.FromNumber)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.cfg.AccountSID)

	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					SID    string `json:"sid"`
					Status string `json:"status"`
				}
				if len(respBody) > 0 {
					if err := json.Unmarshal(respBody, &parsed); err != nil {
						t.logger.Warn("twilio response parse failed", "error", err)
					}
				}
				t.logger.Info("twilio sms sent", "to", to, "provider_message_id", parsed.SID)
				return SendResult{ProviderMessageID: parsed.SID, InitialStatus: parsed.Status}, nil
			}
			lastErr = fmt.Errorf("gateway: twilio send failed: %s", formatTwilioError(resp.StatusCode, respBody))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				break
			}
		}

		if attempt < t.cfg.MaxAttempts {
			time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
	}
	return SendResult{}, lastErr
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	// Fallback: return raw body (truncated by the read limit).
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
