package handlers

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/sanctuaryhq/sanctuary/internal/analytics"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var analyticsTracer = otel.Tracer("sanctuary.internal.http.handlers.analytics")

type analyticsService interface {
	DashboardStats(ctx context.Context) (*analytics.DashboardStats, error)
	RecentMessages(ctx context.Context, limit int) ([]analytics.RecentMessage, error)
	CampaignReport(ctx context.Context) (*analytics.Report, error)
}

// AnalyticsHandler serves dashboard counters and the campaign report.
type AnalyticsHandler struct {
	svc    analyticsService
	logger *logging.Logger
}

// NewAnalyticsHandler creates the analytics handler.
func NewAnalyticsHandler(svc analyticsService, logger *logging.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AnalyticsHandler{svc: svc, logger: logger}
}

// DashboardStats handles GET /api/dashboard/stats.
func (h *AnalyticsHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := analyticsTracer.Start(r.Context(), "AnalyticsHandler.DashboardStats")
	defer span.End()

	stats, err := h.svc.DashboardStats(ctx)
	if err != nil {
		h.logger.Error("dashboard stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RecentMessages handles GET /api/dashboard/messages.
func (h *AnalyticsHandler) RecentMessages(w http.ResponseWriter, r *http.Request) {
	ctx, span := analyticsTracer.Start(r.Context(), "AnalyticsHandler.RecentMessages")
	defer span.End()

	msgs, err := h.svc.RecentMessages(ctx, queryInt(r, "limit", 20))
	if err != nil {
		h.logger.Error("recent messages failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// CampaignReport handles GET /api/analytics.
func (h *AnalyticsHandler) CampaignReport(w http.ResponseWriter, r *http.Request) {
	ctx, span := analyticsTracer.Start(r.Context(), "AnalyticsHandler.CampaignReport")
	defer span.End()

	report, err := h.svc.CampaignReport(ctx)
	if err != nil {
		h.logger.Error("campaign report failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load analytics")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
