package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/sanctuaryhq/sanctuary/internal/gateway"
	"github.com/sanctuaryhq/sanctuary/internal/message"
	"github.com/sanctuaryhq/sanctuary/internal/observability/metrics"
	"github.com/sanctuaryhq/sanctuary/internal/subscriber"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var subscriberTracer = otel.Tracer("sanctuary.internal.http.handlers.subscribers")

// bulkImportLimit bounds one import request. Larger rosters go in
// batches; the cap keeps a single request from holding a connection
// for minutes.
const bulkImportLimit = 5000

type subscriberStore interface {
	List(ctx context.Context, q subscriber.ListQuery) ([]subscriber.Subscriber, int, error)
	Create(ctx context.Context, phone string) (*subscriber.Subscriber, error)
	AddIfAbsent(ctx context.Context, phone string) (*subscriber.Subscriber, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*subscriber.Subscriber, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	ListExists(ctx context.Context, id uuid.UUID) (bool, error)
	Enroll(ctx context.Context, subscriberID, listID uuid.UUID, via string) error
}

type conversationLog interface {
	InsertOutbound(ctx context.Context, rec message.OutboundRecord) (uuid.UUID, error)
	ListByPhone(ctx context.Context, phone string, limit int) ([]message.Message, error)
}

type inboxMarker interface {
	MarkRead(ctx context.Context, subscriberID uuid.UUID) error
}

// SubscriberHandler manages the roster and operator replies.
type SubscriberHandler struct {
	store    subscriberStore
	messages conversationLog
	inbox    inboxMarker
	gateway  gateway.SMSGateway
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewSubscriberHandler creates the subscriber API handler.
func NewSubscriberHandler(
	store subscriberStore,
	messages conversationLog,
	inbox inboxMarker,
	gw gateway.SMSGateway,
	m *metrics.Metrics,
	logger *logging.Logger,
) *SubscriberHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SubscriberHandler{
		store:    store,
		messages: messages,
		inbox:    inbox,
		gateway:  gw,
		metrics:  m,
		logger:   logger,
	}
}

// List handles GET /api/subscribers.
func (h *SubscriberHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := subscriberTracer.Start(r.Context(), "SubscriberHandler.List")
	defer span.End()

	q := subscriber.ListQuery{
		Search: r.URL.Query().Get("search"),
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	subs, total, err := h.store.List(ctx, q)
	if err != nil {
		h.logger.Error("list subscribers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load subscribers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscribers": subs, "total": total})
}

type createSubscriberRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	ListID      string `json:"listId"`
}

// Create handles POST /api/subscribers. A listId enrolls the new
// subscriber as a manual add.
func (h *SubscriberHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := subscriberTracer.Start(r.Context(), "SubscriberHandler.Create")
	defer span.End()

	var req createSubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	phone, err := subscriber.NormalizePhone(req.PhoneNumber)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Valid phoneNumber is required")
		return
	}
	listID, ok := parseOptionalUUID(req.ListID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid listId")
		return
	}
	if listID != nil {
		exists, err := h.store.ListExists(ctx, *listID)
		if err != nil {
			h.logger.Error("check list failed", "error", err, "list_id", *listID)
			writeError(w, http.StatusInternalServerError, "Failed to create subscriber")
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "List not found")
			return
		}
	}

	created, err := h.store.Create(ctx, phone)
	if err != nil {
		if errors.Is(err, subscriber.ErrDuplicatePhone) {
			writeError(w, http.StatusConflict, "Subscriber already exists")
			return
		}
		h.logger.Error("create subscriber failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create subscriber")
		return
	}

	if listID != nil {
		if err := h.store.Enroll(ctx, created.ID, *listID, subscriber.ViaManual); err != nil {
			h.logger.Error("enroll new subscriber failed", "error", err, "subscriber_id", created.ID, "list_id", *listID)
		}
	}

	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /api/subscribers/{id}.
func (h *SubscriberHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := subscriberTracer.Start(r.Context(), "SubscriberHandler.Get")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscriber id")
		return
	}

	sub, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, subscriber.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Subscriber not found")
			return
		}
		h.logger.Error("get subscriber failed", "error", err, "subscriber_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to load subscriber")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type setActiveRequest struct {
	IsActive bool `json:"isActive"`
}

// SetActive handles PUT /api/subscribers/{id}. Deactivation here is the
// dashboard equivalent of an inbound STOP; the row stays for history.
func (h *SubscriberHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	ctx, span := subscriberTracer.Start(r.Context(), "SubscriberHandler.SetActive")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscriber id")
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.store.SetActive(ctx, id, req.IsActive); err != nil {
		if errors.Is(err, subscriber.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Subscriber not found")
			return
		}
		h.logger.Error("set subscriber active failed", "error", err, "subscriber_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to update subscriber")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "isActive": req.IsActive})
}

// Messages handles GET /api/subscribers/{id}/messages, the conversation
// history pane. Oldest first so the thread reads top to bottom.
func (h *SubscriberHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx, span := subscriberTracer.Start(r.Context(), "SubscriberHandler.Messages")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscriber id")
		return
	}

	sub, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, subscriber.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Subscriber not found")
			return
		}
		h.logger.Error("get subscriber failed", "error", err, "subscriber_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	msgs, err := h.messages.ListByPhone(ctx, sub.PhoneNumber, queryInt(r, "limit", 200))
	if err != nil {
		h.logger.Error("list messages failed", "error", err, "subscriber_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

type replyRequest struct {
	Message string `json:"message"`
}

// Reply handles POST /api/subscribers/{id}/reply. The operator answer
// goes out through the gateway, lands in the conversation log with its
// provider id, and clears the unread flag since the operator has
// plainly seen the thread.
func (h *SubscriberHandler) Reply(w http.ResponseWriter, r *http.Request) {
	ctx, span := subscriberTracer.Start(r.Context(), "SubscriberHandler.Reply")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscriber id")
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	if h.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "SMS sending is not configured")
		return
	}

	sub, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, subscriber.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Subscriber not found")
			return
		}
		h.logger.Error("get subscriber failed", "error", err, "subscriber_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to send reply")
		return
	}

	result, err := h.gateway.Send(ctx, sub.PhoneNumber, req.Message)
	if err != nil {
		h.metrics.ObserveOutbound("reply", string(message.StatusFailed))
		h.logger.Error("reply send failed", "error", err, "subscriber_id", id)
		writeError(w, http.StatusBadGateway, "Failed to send reply")
		return
	}
	h.metrics.ObserveOutbound("reply", string(message.StatusSent))

	if _, err := h.messages.InsertOutbound(ctx, message.OutboundRecord{
		PhoneNumber:       sub.PhoneNumber,
		Content:           req.Message,
		Status:            message.StatusSent,
		ProviderMessageID: result.ProviderMessageID,
	}); err != nil {
		h.logger.Error("persist reply failed", "error", err, "subscriber_id", id)
	}
	if err := h.inbox.MarkRead(ctx, id); err != nil {
		h.logger.Error("mark read after reply failed", "error", err, "subscriber_id", id)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"providerMessageId": result.ProviderMessageID,
	})
}

type bulkImportRequest struct {
	PhoneNumbers []string `json:"phoneNumbers"`
	ListID       string   `json:"listId"`
}

type bulkImportResponse struct {
	Success  bool `json:"success"`
	Total    int  `json:"total"`
	Added    int  `json:"added"`
	Skipped  int  `json:"skipped"`
	Rejected int  `json:"rejected"`
	Enrolled int  `json:"enrolled"`

	RejectedNumbers []string `json:"rejectedNumbers,omitempty"`
}

// BulkImport handles POST /api/subscribers/bulk. Each entry lands in
// exactly one bucket: added, skipped (already on the roster), or
// rejected (not a usable US number). With a listId both added and
// skipped entries are enrolled, so re-importing a roster into a new
// list does what the organizer expects.
func (h *SubscriberHandler) BulkImport(w http.ResponseWriter, r *http.Request) {
	ctx, span := subscriberTracer.Start(r.Context(), "SubscriberHandler.BulkImport")
	defer span.End()

	var req bulkImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.PhoneNumbers) == 0 {
		writeError(w, http.StatusBadRequest, "phoneNumbers is required")
		return
	}
	if len(req.PhoneNumbers) > bulkImportLimit {
		writeError(w, http.StatusBadRequest, "Import limited to 5000 numbers per request")
		return
	}

	listID, ok := parseOptionalUUID(req.ListID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid listId")
		return
	}
	if listID != nil {
		exists, err := h.store.ListExists(ctx, *listID)
		if err != nil {
			h.logger.Error("check list failed", "error", err, "list_id", *listID)
			writeError(w, http.StatusInternalServerError, "Import failed")
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "List not found")
			return
		}
	}

	resp := bulkImportResponse{Success: true, Total: len(req.PhoneNumbers)}
	for _, raw := range req.PhoneNumbers {
		phone, err := subscriber.NormalizePhone(raw)
		if err != nil {
			resp.Rejected++
			resp.RejectedNumbers = append(resp.RejectedNumbers, raw)
			continue
		}

		sub, created, err := h.store.AddIfAbsent(ctx, phone)
		if err != nil {
			h.logger.Error("bulk import row failed", "error", err, "phone", phone)
			resp.Rejected++
			resp.RejectedNumbers = append(resp.RejectedNumbers, raw)
			continue
		}
		if created {
			resp.Added++
		} else {
			resp.Skipped++
		}

		if listID != nil {
			if err := h.store.Enroll(ctx, sub.ID, *listID, subscriber.ViaBulkImport); err != nil {
				h.logger.Error("bulk import enroll failed", "error", err, "subscriber_id", sub.ID)
			} else {
				resp.Enrolled++
			}
		}
	}

	h.logger.Info("bulk import finished",
		"total", resp.Total, "added", resp.Added, "skipped", resp.Skipped, "rejected", resp.Rejected)
	writeJSON(w, http.StatusOK, resp)
}
