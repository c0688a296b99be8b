package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/sanctuaryhq/sanctuary/internal/observability/metrics"
	"github.com/sanctuaryhq/sanctuary/internal/shortlink"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

var redirectTracer = otel.Tracer("sanctuary.internal.http.handlers.redirect")

type linkResolver interface {
	FindByCode(ctx context.Context, code string) (*shortlink.Link, error)
	InsertClick(ctx context.Context, linkID uuid.UUID, subscriberID string) error
}

// RedirectHandler serves short link redirects on the public origin.
type RedirectHandler struct {
	links   linkResolver
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewRedirectHandler creates the short link redirect handler.
func NewRedirectHandler(links linkResolver, m *metrics.Metrics, logger *logging.Logger) *RedirectHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedirectHandler{links: links, metrics: m, logger: logger}
}

const linkNotFoundPage = `<!DOCTYPE html>
<html>
<head><title>Link not found</title></head>
<body>
<h1>Link not found</h1>
<p>This link does not exist or has expired.</p>
</body>
</html>`

// Resolve handles GET /sanctuary/{code}. A known code records the click
// and issues a 308 so clients replay the method on the target; an
// unknown code renders a small HTML page instead of a JSON error since
// the audience is a person tapping a text message.
func (h *RedirectHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx, span := redirectTracer.Start(r.Context(), "RedirectHandler.Resolve")
	defer span.End()

	code := chi.URLParam(r, "code")
	link, err := h.links.FindByCode(ctx, code)
	if err != nil {
		h.logger.Error("short link lookup failed", "error", err, "code", code)
		h.notFound(w)
		return
	}
	if link == nil {
		h.notFound(w)
		return
	}

	// Attribution is best effort. Only a well-formed subscriber id is
	// kept; a missing or garbled one never blocks the redirect.
	sid := r.URL.Query().Get("sid")
	if _, parseErr := uuid.Parse(sid); parseErr != nil {
		sid = ""
	}
	if err := h.links.InsertClick(ctx, link.ID, sid); err != nil {
		h.logger.Error("record link click failed", "error", err, "code", code)
	}
	h.metrics.ObserveLinkClick()

	http.Redirect(w, r, link.OriginalURL, http.StatusPermanentRedirect)
}

func (h *RedirectHandler) notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(linkNotFoundPage))
}
