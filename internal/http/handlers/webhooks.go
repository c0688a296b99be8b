package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/sanctuaryhq/sanctuary/internal/gateway"
	"github.com/sanctuaryhq/sanctuary/internal/inbound"
	"github.com/sanctuaryhq/sanctuary/internal/keyword"
	"github.com/sanctuaryhq/sanctuary/internal/message"
	"github.com/sanctuaryhq/sanctuary/internal/observability/metrics"
	"github.com/sanctuaryhq/sanctuary/internal/subscriber"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var webhookTracer = otel.Tracer("sanctuary.internal.http.handlers.webhooks")

type inboundProcessor interface {
	Process(ctx context.Context, fromPhone, body string) (*inbound.Decision, error)
}

type messageLog interface {
	InsertInbound(ctx context.Context, phoneNumber, content string) (uuid.UUID, error)
	InsertOutbound(ctx context.Context, rec message.OutboundRecord) (uuid.UUID, error)
}

type statusReconciler interface {
	Apply(ctx context.Context, upd message.StatusUpdate) error
}

type threadRecorder interface {
	RememberThreadRef(ctx context.Context, id uuid.UUID, ref string) error
}

type readMarker interface {
	MarkRead(ctx context.Context, subscriberID uuid.UUID) error
}

type inboundNotifier interface {
	NotifyInbound(ctx context.Context, text, threadRef string) (string, error)
	AlertConversation(ctx context.Context, subscriberID uuid.UUID, fromDisplay string) error
}

// WebhookConfig gates provider signature checks on the webhook routes.
type WebhookConfig struct {
	ValidateSignature bool
	TwilioAuthToken   string
}

// WebhookHandler terminates provider callbacks. Inbound SMS runs the
// keyword state machine and effects its decision; delivery status
// reconciles outbound message rows. Both endpoints ack 200 on internal
// failure so the provider does not retry what we have already logged.
type WebhookHandler struct {
	processor   inboundProcessor
	messages    messageLog
	reconciler  statusReconciler
	subscribers threadRecorder
	inbox       readMarker
	notify      inboundNotifier
	metrics     *metrics.Metrics
	cfg         WebhookConfig
	logger      *logging.Logger
}

// NewWebhookHandler creates the provider webhook handler.
func NewWebhookHandler(
	processor inboundProcessor,
	messages messageLog,
	reconciler statusReconciler,
	subscribers threadRecorder,
	inbox readMarker,
	notify inboundNotifier,
	m *metrics.Metrics,
	cfg WebhookConfig,
	logger *logging.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		processor:   processor,
		messages:    messages,
		reconciler:  reconciler,
		subscribers: subscribers,
		inbox:       inbox,
		notify:      notify,
		metrics:     m,
		cfg:         cfg,
		logger:      logger,
	}
}

// InboundSMS handles POST /api/webhooks/sms.
//
// The contract with the provider: 400 only when the payload is missing
// required fields, 401 on a bad signature, otherwise always 200 TwiML.
// A processing failure after the payload parsed acks with an empty
// response body so the subscriber never sees an error text.
func (h *WebhookHandler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "WebhookHandler.InboundSMS")
	defer span.End()

	if h.cfg.ValidateSignature {
		if !gateway.ValidateTwilioSignature(r, h.cfg.TwilioAuthToken, buildAbsoluteURL(r)) {
			h.logger.Warn("twilio signature rejected", "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	from := r.PostFormValue("From")
	to := r.PostFormValue("To")
	body := r.PostFormValue("Body")
	if from == "" || to == "" || body == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	phone, err := subscriber.NormalizePhone(from)
	if err != nil {
		h.logger.Warn("inbound from unroutable number", "from", from, "error", err)
		h.metrics.ObserveInbound("unknown", "rejected")
		writeTwiML(w, "")
		return
	}

	if _, err := h.messages.InsertInbound(ctx, phone, body); err != nil {
		h.logger.Error("persist inbound message failed", "error", err, "phone", phone)
		h.metrics.ObserveInbound("unknown", "error")
		writeTwiML(w, "")
		return
	}

	decision, err := h.processor.Process(ctx, phone, body)
	if err != nil {
		h.logger.Error("inbound processing failed", "error", err, "phone", phone)
		h.metrics.ObserveInbound("unknown", "error")
		writeTwiML(w, "")
		return
	}
	h.metrics.ObserveInbound(decision.Intent.String(), "ok")

	// Effects run before the ack so the reply row and read marker land
	// in order. Each one is log-only; a dead Slack token must not turn
	// into a failed webhook.
	if decision.AutoReply != "" {
		h.recordAutoReply(ctx, phone, decision.AutoReply)
	}
	if decision.Notify != nil {
		h.postNotification(ctx, phone, decision)
	}
	if decision.MarkReadNow && decision.SubscriberID != nil {
		if err := h.inbox.MarkRead(ctx, *decision.SubscriberID); err != nil {
			h.logger.Error("mark conversation read failed", "error", err, "subscriber_id", *decision.SubscriberID)
		}
	}

	writeTwiML(w, decision.AutoReply)
}

// recordAutoReply files the TwiML reply as an outbound row. The provider
// sends it for us, so there is no provider message id to store.
func (h *WebhookHandler) recordAutoReply(ctx context.Context, phone, reply string) {
	_, err := h.messages.InsertOutbound(ctx, message.OutboundRecord{
		PhoneNumber: phone,
		Content:     reply,
		Status:      message.StatusSent,
	})
	if err != nil {
		h.logger.Error("persist auto-reply failed", "error", err, "phone", phone)
	}
}

func (h *WebhookHandler) postNotification(ctx context.Context, phone string, decision *inbound.Decision) {
	n := decision.Notify
	ts, err := h.notify.NotifyInbound(ctx, n.Text, n.ThreadRef)
	if err != nil {
		h.logger.Error("notifier post failed", "error", err, "subscriber_id", n.SubscriberID)
	} else if n.RememberThread && ts != "" {
		if err := h.subscribers.RememberThreadRef(ctx, n.SubscriberID, ts); err != nil {
			h.logger.Error("remember thread ref failed", "error", err, "subscriber_id", n.SubscriberID)
		}
	}

	if decision.Intent == keyword.IntentConversational {
		if err := h.notify.AlertConversation(ctx, n.SubscriberID, subscriber.FormatPhone(phone)); err != nil {
			h.logger.Error("conversation alert failed", "error", err, "subscriber_id", n.SubscriberID)
		}
	}
}

// DeliveryStatus handles POST /api/webhooks/delivery-status. The
// endpoint always acks 200; an unknown message id or status is logged
// and dropped rather than bounced back to the provider.
func (h *WebhookHandler) DeliveryStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "WebhookHandler.DeliveryStatus")
	defer span.End()

	if h.cfg.ValidateSignature {
		if !gateway.ValidateTwilioSignature(r, h.cfg.TwilioAuthToken, buildAbsoluteURL(r)) {
			h.logger.Warn("twilio signature rejected", "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Warn("unparsable delivery status payload", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	upd := message.StatusUpdate{
		ProviderMessageID: r.PostFormValue("MessageSid"),
		ProviderStatus:    r.PostFormValue("MessageStatus"),
		ErrorCode:         r.PostFormValue("ErrorCode"),
		ErrorMessage:      r.PostFormValue("ErrorMessage"),
	}
	if upd.ProviderMessageID == "" || upd.ProviderStatus == "" {
		h.logger.Warn("delivery status missing identifiers",
			"message_sid", upd.ProviderMessageID, "status", upd.ProviderStatus)
	} else if err := h.reconciler.Apply(ctx, upd); err != nil {
		h.logger.Error("delivery status reconcile failed", "error", err, "message_sid", upd.ProviderMessageID)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
