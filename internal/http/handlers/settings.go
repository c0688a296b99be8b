package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/sanctuaryhq/sanctuary/internal/appconfig"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var settingsTracer = otel.Tracer("sanctuary.internal.http.handlers.settings")

type settingsStore interface {
	Get(ctx context.Context) (*appconfig.Config, error)
	Update(ctx context.Context, cfg appconfig.Config) (*appconfig.Config, error)
}

// SettingsHandler serves the application-wide messaging defaults.
type SettingsHandler struct {
	store  settingsStore
	logger *logging.Logger
}

// NewSettingsHandler creates the settings handler.
func NewSettingsHandler(store settingsStore, logger *logging.Logger) *SettingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SettingsHandler{store: store, logger: logger}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := settingsTracer.Start(r.Context(), "SettingsHandler.Get")
	defer span.End()

	cfg, err := h.store.Get(ctx)
	if err != nil {
		h.logger.Error("load settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Update handles PUT /api/settings. The whole document is replaced; the
// dashboard always sends every field.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := settingsTracer.Start(r.Context(), "SettingsHandler.Update")
	defer span.End()

	var cfg appconfig.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	updated, err := h.store.Update(ctx, cfg)
	if err != nil {
		if errors.Is(err, appconfig.ErrInvalid) {
			writeError(w, http.StatusBadRequest, "All message fields are required")
			return
		}
		h.logger.Error("update settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
