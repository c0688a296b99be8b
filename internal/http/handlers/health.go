package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

type dbPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers load balancer probes.
type HealthHandler struct {
	db     dbPinger
	logger *logging.Logger
}

// NewHealthHandler creates the health check handler.
func NewHealthHandler(db dbPinger, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{db: db, logger: logger}
}

// Check handles GET /health. Databaseless deployments (tests, smoke
// environments) report ok with the check skipped.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "skipped"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check db ping failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}
