// Package router assembles the HTTP surface: public webhook and redirect
// routes, the JWT-protected admin API, and operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sanctuaryhq/sanctuary/internal/http/handlers"
	httpmiddleware "github.com/sanctuaryhq/sanctuary/internal/http/middleware"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	Health      *handlers.HealthHandler
	Webhooks    *handlers.WebhookHandler
	Redirects   *handlers.RedirectHandler
	Broadcasts  *handlers.BroadcastHandler
	Inbox       *handlers.InboxHandler
	Keywords    *handlers.KeywordHandler
	Lists       *handlers.ListHandler
	Subscribers *handlers.SubscriberHandler
	Settings    *handlers.SettingsHandler
	Analytics   *handlers.AnalyticsHandler

	MetricsHandler http.Handler

	// AdminJWTSecret guards everything under /api except the webhook
	// routes. Empty means the admin surface refuses all requests, which
	// is the safe default for a misconfigured deployment.
	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// WebhookRatePerSecond throttles the public routes per client IP.
	// Zero disables throttling (tests, local dev).
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	throttle := func(next http.Handler) http.Handler { return next }
	if cfg.WebhookRatePerSecond > 0 {
		throttle = httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, cfg.WebhookBurst)
	}

	// Public endpoints (provider webhooks, short links, health checks)
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Check)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks != nil {
			public.With(throttle).Route("/api/webhooks", func(wh chi.Router) {
				wh.Post("/sms", cfg.Webhooks.InboundSMS)
				wh.Post("/delivery-status", cfg.Webhooks.DeliveryStatus)
			})
		}
		if cfg.Redirects != nil {
			public.With(throttle).Get("/sanctuary/{code}", cfg.Redirects.Resolve)
		}
	})

	// Admin API (protected by JWT)
	r.Group(func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))

		if cfg.Broadcasts != nil {
			admin.Post("/api/broadcast", cfg.Broadcasts.Send)
			admin.Post("/api/broadcast/test", cfg.Broadcasts.SendTest)
		}
		if cfg.Inbox != nil {
			admin.Get("/api/inbox", cfg.Inbox.List)
			admin.Get("/api/inbox/stats", cfg.Inbox.Stats)
			admin.Post("/api/conversations/mark-all-read", cfg.Inbox.MarkAllRead)
			admin.Post("/api/conversations/{id}/mark-read", cfg.Inbox.MarkRead)
			admin.Post("/api/conversations/{id}/mark-unread", cfg.Inbox.MarkUnread)
		}
		if cfg.Keywords != nil {
			admin.Route("/api/keywords", func(kw chi.Router) {
				kw.Get("/", cfg.Keywords.List)
				kw.Post("/", cfg.Keywords.Create)
				kw.Put("/{id}", cfg.Keywords.Update)
				kw.Delete("/{id}", cfg.Keywords.Delete)
			})
		}
		if cfg.Lists != nil {
			admin.Route("/api/lists", func(ls chi.Router) {
				ls.Get("/", cfg.Lists.List)
				ls.Post("/", cfg.Lists.Create)
				ls.Get("/{id}", cfg.Lists.Get)
				ls.Put("/{id}", cfg.Lists.Update)
				ls.Delete("/{id}", cfg.Lists.Delete)
				ls.Get("/{id}/members", cfg.Lists.Members)
				ls.Post("/{id}/members", cfg.Lists.AddMember)
				ls.Delete("/{id}/members/{subscriberId}", cfg.Lists.RemoveMember)
			})
		}
		if cfg.Subscribers != nil {
			admin.Route("/api/subscribers", func(sub chi.Router) {
				sub.Get("/", cfg.Subscribers.List)
				sub.Post("/", cfg.Subscribers.Create)
				sub.Post("/bulk", cfg.Subscribers.BulkImport)
				sub.Get("/{id}", cfg.Subscribers.Get)
				sub.Put("/{id}", cfg.Subscribers.SetActive)
				sub.Get("/{id}/messages", cfg.Subscribers.Messages)
				sub.Post("/{id}/reply", cfg.Subscribers.Reply)
			})
		}
		if cfg.Settings != nil {
			admin.Get("/api/settings", cfg.Settings.Get)
			admin.Put("/api/settings", cfg.Settings.Update)
		}
		if cfg.Analytics != nil {
			admin.Get("/api/analytics", cfg.Analytics.CampaignReport)
			admin.Get("/api/dashboard/stats", cfg.Analytics.DashboardStats)
			admin.Get("/api/dashboard/messages", cfg.Analytics.RecentMessages)
		}
	})

	return r
}
