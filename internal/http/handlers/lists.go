package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/sanctuaryhq/sanctuary/internal/subscriber"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var listTracer = otel.Tracer("sanctuary.internal.http.handlers.lists")

type listStore interface {
	CreateList(ctx context.Context, name, description string) (*subscriber.List, error)
	GetList(ctx context.Context, id uuid.UUID) (*subscriber.List, error)
	ListLists(ctx context.Context) ([]subscriber.List, error)
	UpdateList(ctx context.Context, id uuid.UUID, name, description string) (*subscriber.List, error)
	DeleteList(ctx context.Context, id uuid.UUID) error
	ListMembers(ctx context.Context, listID uuid.UUID) ([]subscriber.Subscriber, error)
	Enroll(ctx context.Context, subscriberID, listID uuid.UUID, via string) error
	Unenroll(ctx context.Context, listID, subscriberID uuid.UUID) error
}

// ListHandler manages subscriber lists and their memberships.
type ListHandler struct {
	store  listStore
	logger *logging.Logger
}

// NewListHandler creates the list CRUD handler.
func NewListHandler(store listStore, logger *logging.Logger) *ListHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ListHandler{store: store, logger: logger}
}

type listRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// List handles GET /api/lists.
func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := listTracer.Start(r.Context(), "ListHandler.List")
	defer span.End()

	lists, err := h.store.ListLists(ctx)
	if err != nil {
		h.logger.Error("list lists failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load lists")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lists": lists})
}

// Create handles POST /api/lists.
func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := listTracer.Start(r.Context(), "ListHandler.Create")
	defer span.End()

	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "List name is required")
		return
	}

	created, err := h.store.CreateList(ctx, strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		h.respondListError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /api/lists/{id}.
func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := listTracer.Start(r.Context(), "ListHandler.Get")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid list id")
		return
	}

	list, err := h.store.GetList(ctx, id)
	if err != nil {
		h.respondListError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Update handles PUT /api/lists/{id}.
func (h *ListHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := listTracer.Start(r.Context(), "ListHandler.Update")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid list id")
		return
	}

	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "List name is required")
		return
	}

	updated, err := h.store.UpdateList(ctx, id, strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		h.respondListError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/lists/{id}. Lists referenced by a signup
// keyword refuse to go; retarget the keyword first.
func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := listTracer.Start(r.Context(), "ListHandler.Delete")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid list id")
		return
	}

	if err := h.store.DeleteList(ctx, id); err != nil {
		h.respondListError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Members handles GET /api/lists/{id}/members.
func (h *ListHandler) Members(w http.ResponseWriter, r *http.Request) {
	ctx, span := listTracer.Start(r.Context(), "ListHandler.Members")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid list id")
		return
	}

	if _, err := h.store.GetList(ctx, id); err != nil {
		h.respondListError(w, err)
		return
	}
	members, err := h.store.ListMembers(ctx, id)
	if err != nil {
		h.logger.Error("list members failed", "error", err, "list_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to load members")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members, "count": len(members)})
}

type memberRequest struct {
	SubscriberID string `json:"subscriberId"`
}

// AddMember handles POST /api/lists/{id}/members.
func (h *ListHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	ctx, span := listTracer.Start(r.Context(), "ListHandler.AddMember")
	defer span.End()

	listID, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid list id")
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	subscriberID, err := uuid.Parse(req.SubscriberID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscriberId")
		return
	}

	if _, err := h.store.GetList(ctx, listID); err != nil {
		h.respondListError(w, err)
		return
	}
	if err := h.store.Enroll(ctx, subscriberID, listID, subscriber.ViaManual); err != nil {
		// The list was just checked, so a not-found here is the subscriber.
		if errors.Is(err, subscriber.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Subscriber not found")
			return
		}
		h.respondListError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// RemoveMember handles DELETE /api/lists/{id}/members/{subscriberId}.
func (h *ListHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx, span := listTracer.Start(r.Context(), "ListHandler.RemoveMember")
	defer span.End()

	listID, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid list id")
		return
	}
	subscriberID, err := parseUUIDParam(r, "subscriberId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscriberId")
		return
	}

	if err := h.store.Unenroll(ctx, listID, subscriberID); err != nil {
		if errors.Is(err, subscriber.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Membership not found")
			return
		}
		h.logger.Error("unenroll failed", "error", err, "list_id", listID, "subscriber_id", subscriberID)
		writeError(w, http.StatusInternalServerError, "Failed to remove member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *ListHandler) respondListError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscriber.ErrNotFound):
		writeError(w, http.StatusNotFound, "List not found")
	case errors.Is(err, subscriber.ErrDuplicateName):
		writeError(w, http.StatusConflict, "A list with that name already exists")
	case errors.Is(err, subscriber.ErrListInUse):
		writeError(w, http.StatusConflict, "List is linked to a signup keyword")
	default:
		h.logger.Error("list write failed", "error", err)
		writeError(w, http.StatusInternalServerError, "List operation failed")
	}
}
