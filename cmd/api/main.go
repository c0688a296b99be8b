package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sanctuaryhq/sanctuary/internal/analytics"
	"github.com/sanctuaryhq/sanctuary/internal/api/router"
	appbootstrap "github.com/sanctuaryhq/sanctuary/internal/app/bootstrap"
	appsettings "github.com/sanctuaryhq/sanctuary/internal/appconfig"
	"github.com/sanctuaryhq/sanctuary/internal/broadcast"
	appconfig "github.com/sanctuaryhq/sanctuary/internal/config"
	"github.com/sanctuaryhq/sanctuary/internal/http/handlers"
	"github.com/sanctuaryhq/sanctuary/internal/inbound"
	"github.com/sanctuaryhq/sanctuary/internal/inbox"
	"github.com/sanctuaryhq/sanctuary/internal/keyword"
	"github.com/sanctuaryhq/sanctuary/internal/message"
	observemetrics "github.com/sanctuaryhq/sanctuary/internal/observability/metrics"
	"github.com/sanctuaryhq/sanctuary/internal/shortlink"
	"github.com/sanctuaryhq/sanctuary/internal/subscriber"
	"github.com/sanctuaryhq/sanctuary/migrations"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting sanctuary API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Production safety check: warn loudly if signature validation is disabled
	if !cfg.TwilioValidateSignature && (cfg.Env == "production" || cfg.Env == "staging") {
		logger.Error("SECURITY WARNING: Twilio signature validation is disabled in production/staging - webhooks accept unsigned requests!")
	}

	metricsHandler, appMetrics, registry := setupMetrics()

	// Setup application context
	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	dbPool := connectPostgresPool(appCtx, cfg.DatabaseURL, logger)
	defer dbPool.Close()
	sqlDB := connectSQLDB(dbPool, logger)
	defer sqlDB.Close()
	runAutoMigrate(sqlDB, logger)

	// Initialize stores
	subscribers := subscriber.NewStore(dbPool)
	keywords := keyword.NewStore(dbPool)
	messages := message.NewStore(dbPool)
	broadcasts := broadcast.NewStore(dbPool)
	links := shortlink.NewStore(dbPool)
	inboxStore := inbox.NewStore(dbPool)
	settings := appsettings.NewStore(dbPool)

	// Initialize domain services
	processor := inbound.NewProcessor(subscribers, keywords, settings, logger)
	tokenizer := shortlink.NewTokenizer(links, cfg.PublicBaseURL, logger)
	reconciler := message.NewReconciler(messages, logger)

	redisClient := appbootstrap.BuildRedisClient(appCtx, cfg, logger, false)
	if redisClient != nil {
		defer redisClient.Close()
	}
	statsCache := appbootstrap.BuildStatsCache(redisClient, cfg, logger)

	gw, gwReason := appbootstrap.BuildSMSGateway(cfg, logger)
	if gw != nil {
		logger.Info("sms gateway initialized",
			"validate_signature", cfg.TwilioValidateSignature,
			"retry_max_attempts", cfg.TwilioRetryMaxAttempts,
		)
	} else {
		logger.Warn("sms sending disabled", "reason", gwReason)
	}

	notifySvc := appbootstrap.BuildNotifyService(appCtx, cfg, gw, logger)

	engine := broadcast.NewEngine(broadcasts, messages, tokenizer, gw, appMetrics, logger, broadcast.EngineConfig{
		Workers:     cfg.BroadcastWorkers,
		SendTimeout: cfg.GatewaySendTimeout,
	})

	analyticsSvc := analytics.NewService(sqlDB, statsCache, registry, logger)

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin API requests will be rejected")
	}

	// Setup router
	routerCfg := &router.Config{
		Logger: logger,

		Health: handlers.NewHealthHandler(dbPool, logger),
		Webhooks: handlers.NewWebhookHandler(
			processor,
			messages,
			reconciler,
			subscribers,
			inboxStore,
			notifySvc,
			appMetrics,
			handlers.WebhookConfig{
				ValidateSignature: cfg.TwilioValidateSignature,
				TwilioAuthToken:   cfg.TwilioAuthToken,
			},
			logger,
		),
		Redirects:   handlers.NewRedirectHandler(links, appMetrics, logger),
		Broadcasts:  handlers.NewBroadcastHandler(engine, notifySvc, logger),
		Inbox:       handlers.NewInboxHandler(inboxStore, statsCache, logger),
		Keywords:    handlers.NewKeywordHandler(keywords, logger),
		Lists:       handlers.NewListHandler(subscribers, logger),
		Subscribers: handlers.NewSubscriberHandler(subscribers, messages, inboxStore, gw, appMetrics, logger),
		Settings:    handlers.NewSettingsHandler(settings, logger),
		Analytics:   handlers.NewAnalyticsHandler(analyticsSvc, logger),

		MetricsHandler: metricsHandler,

		AdminJWTSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,

		WebhookRatePerSecond: cfg.WebhookRatePerSecond,
		WebhookBurst:         cfg.WebhookBurst,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stop()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *observemetrics.Metrics, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	m := observemetrics.New(registry)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return handler, m, registry
}

func connectPostgresPool(ctx context.Context, dbURL string, logger *logging.Logger) *pgxpool.Pool {
	if dbURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to postgres")
	return pool
}

func connectSQLDB(pool *pgxpool.Pool, logger *logging.Logger) *sql.DB {
	db := stdlib.OpenDBFromPool(pool)
	if logger != nil {
		logger.Info("sql db wrapper initialized")
	}
	return db
}

func runAutoMigrate(db *sql.DB, logger *logging.Logger) {
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("auto-migrate: failed to open migrations source", "error", err)
		return
	}
	dbDriver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		logger.Error("auto-migrate: failed to create db driver", "error", err)
		return
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Error("auto-migrate: failed to create migrator", "error", err)
		return
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("auto-migrate: migration failed", "error", err)
		return
	}
	logger.Info("auto-migrate: database migrations applied")
}
