package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/sanctuaryhq/sanctuary/internal/keyword"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var keywordTracer = otel.Tracer("sanctuary.internal.http.handlers.keywords")

type keywordStore interface {
	Create(ctx context.Context, word, autoResponse string, listID *uuid.UUID) (*keyword.SignupKeyword, error)
	Update(ctx context.Context, id uuid.UUID, word, autoResponse string, isActive bool, listID *uuid.UUID) (*keyword.SignupKeyword, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]keyword.SignupKeyword, error)
}

// KeywordHandler manages signup keywords for the admin dashboard.
type KeywordHandler struct {
	store  keywordStore
	logger *logging.Logger
}

// NewKeywordHandler creates the keyword CRUD handler.
func NewKeywordHandler(store keywordStore, logger *logging.Logger) *KeywordHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &KeywordHandler{store: store, logger: logger}
}

type keywordRequest struct {
	Keyword      string `json:"keyword"`
	AutoResponse string `json:"autoResponse"`
	IsActive     *bool  `json:"isActive"`
	ListID       string `json:"listId"`
}

// List handles GET /api/keywords.
func (h *KeywordHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := keywordTracer.Start(r.Context(), "KeywordHandler.List")
	defer span.End()

	keywords, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error("list keywords failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load keywords")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywords": keywords})
}

// Create handles POST /api/keywords.
func (h *KeywordHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := keywordTracer.Start(r.Context(), "KeywordHandler.Create")
	defer span.End()

	var req keywordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	listID, ok := parseOptionalUUID(req.ListID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid listId")
		return
	}

	created, err := h.store.Create(ctx, req.Keyword, req.AutoResponse, listID)
	if err != nil {
		h.respondKeywordError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/keywords/{id}.
func (h *KeywordHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := keywordTracer.Start(r.Context(), "KeywordHandler.Update")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid keyword id")
		return
	}

	var req keywordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	listID, ok := parseOptionalUUID(req.ListID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid listId")
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	updated, err := h.store.Update(ctx, id, req.Keyword, req.AutoResponse, isActive, listID)
	if err != nil {
		h.respondKeywordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/keywords/{id}.
func (h *KeywordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := keywordTracer.Start(r.Context(), "KeywordHandler.Delete")
	defer span.End()

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid keyword id")
		return
	}

	if err := h.store.Delete(ctx, id); err != nil {
		h.respondKeywordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *KeywordHandler) respondKeywordError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, keyword.ErrEmptyKeyword):
		writeError(w, http.StatusBadRequest, "Keyword is required")
	case errors.Is(err, keyword.ErrEmptyResponse):
		writeError(w, http.StatusBadRequest, "Auto-response is required")
	case errors.Is(err, keyword.ErrUnknownList):
		writeError(w, http.StatusBadRequest, "Linked list does not exist")
	case errors.Is(err, keyword.ErrDuplicate):
		writeError(w, http.StatusConflict, "Keyword already exists")
	case errors.Is(err, keyword.ErrNotFound):
		writeError(w, http.StatusNotFound, "Keyword not found")
	default:
		h.logger.Error("keyword write failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Keyword operation failed")
	}
}

// parseOptionalUUID maps "" to nil and reports malformed values.
func parseOptionalUUID(raw string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}
