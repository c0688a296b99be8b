package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/sanctuaryhq/sanctuary/internal/analytics"
	"github.com/sanctuaryhq/sanctuary/internal/inbox"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var inboxTracer = otel.Tracer("sanctuary.internal.http.handlers.inbox")

const inboxStatsCacheKey = "sanctuary:stats:inbox"

type inboxStore interface {
	List(ctx context.Context, q inbox.ListQuery) ([]inbox.Conversation, error)
	Stats(ctx context.Context) (*inbox.Stats, error)
	MarkRead(ctx context.Context, subscriberID uuid.UUID) error
	MarkUnread(ctx context.Context, subscriberID uuid.UUID) error
	MarkAllRead(ctx context.Context) (int64, error)
}

// InboxHandler serves the two-way conversation views.
type InboxHandler struct {
	store  inboxStore
	cache  *analytics.Cache
	logger *logging.Logger
}

// NewInboxHandler creates the inbox API handler. The cache is optional
// and only shields the stats badge, which the dashboard polls.
func NewInboxHandler(store inboxStore, cache *analytics.Cache, logger *logging.Logger) *InboxHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &InboxHandler{store: store, cache: cache, logger: logger}
}

// List handles GET /api/inbox.
func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := inboxTracer.Start(r.Context(), "InboxHandler.List")
	defer span.End()

	q := inbox.ListQuery{
		Filter: r.URL.Query().Get("filter"),
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	conversations, err := h.store.List(ctx, q)
	if err != nil {
		if errors.Is(err, inbox.ErrBadFilter) {
			writeError(w, http.StatusBadRequest, "Filter must be all, unread, or read")
			return
		}
		h.logger.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// Stats handles GET /api/inbox/stats.
func (h *InboxHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, span := inboxTracer.Start(r.Context(), "InboxHandler.Stats")
	defer span.End()

	var cached inbox.Stats
	if h.cache.Get(ctx, inboxStatsCacheKey, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		h.logger.Error("inbox stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load inbox stats")
		return
	}
	h.cache.Set(ctx, inboxStatsCacheKey, stats)

	writeJSON(w, http.StatusOK, stats)
}

// MarkRead handles POST /api/conversations/{id}/mark-read.
func (h *InboxHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, "InboxHandler.MarkRead", h.store.MarkRead)
}

// MarkUnread handles POST /api/conversations/{id}/mark-unread.
func (h *InboxHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, "InboxHandler.MarkUnread", h.store.MarkUnread)
}

func (h *InboxHandler) mark(w http.ResponseWriter, r *http.Request, span string, op func(context.Context, uuid.UUID) error) {
	ctx, sp := inboxTracer.Start(r.Context(), span)
	defer sp.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}

	if err := op(ctx, id); err != nil {
		if errors.Is(err, inbox.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("update read marker failed", "error", err, "subscriber_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to update conversation")
		return
	}
	h.cache.Invalidate(ctx, inboxStatsCacheKey)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// MarkAllRead handles POST /api/conversations/mark-all-read.
func (h *InboxHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx, span := inboxTracer.Start(r.Context(), "InboxHandler.MarkAllRead")
	defer span.End()

	updated, err := h.store.MarkAllRead(ctx)
	if err != nil {
		h.logger.Error("mark all read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update conversations")
		return
	}
	h.cache.Invalidate(ctx, inboxStatsCacheKey)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}
