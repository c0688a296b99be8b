package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	// PublicBaseURL is the origin minted into short links, resolved from the
	// first non-empty of PUBLIC_BASE_URL, VERCEL_PROJECT_PRODUCTION_URL,
	// VERCEL_URL, NEXTAUTH_URL. Hosting platforms export bare hostnames, so
	// scheme-less values are prefixed with https.
	PublicBaseURL string

	TwilioAccountSID          string
	TwilioAuthToken           string
	TwilioMessagingServiceSID string
	TwilioFromNumber          string
	TwilioValidateSignature   bool
	TwilioRetryMaxAttempts    int
	GatewaySendTimeout        time.Duration

	AdminPhoneNumber       string
	EnableSMSNotifications bool

	SlackBotToken string
	SlackChannel  string

	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// Per-IP throttle on the public webhook and redirect routes. A zero
	// rate disables throttling.
	WebhookRatePerSecond float64
	WebhookBurst         int

	BroadcastWorkers int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	StatsCacheTTL time.Duration

	// Email reports for completed broadcasts. Provider is "sendgrid", "ses",
	// or empty to disable.
	EmailProvider      string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	ReportFromEmail    string
	ReportRecipients   []string
}

// Load reads configuration from environment variables
func Load() *Config {
	env := getEnv("ENV", "development")

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      env,
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		PublicBaseURL: resolveBaseURL(),

		TwilioAccountSID:          getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:           getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioMessagingServiceSID: getEnv("TWILIO_MESSAGING_SERVICE_SID", ""),
		TwilioFromNumber:          getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioValidateSignature:   getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", env == "production"),
		TwilioRetryMaxAttempts:    getEnvAsInt("TWILIO_RETRY_MAX_ATTEMPTS", 3),
		GatewaySendTimeout:        getEnvAsDuration("GATEWAY_SEND_TIMEOUT", 10*time.Second),

		AdminPhoneNumber:       getEnv("ADMIN_PHONE_NUMBER", ""),
		EnableSMSNotifications: getEnvAsBool("ENABLE_SMS_NOTIFICATIONS", true),

		SlackBotToken: getEnv("SLACK_BOT_TOKEN", ""),
		SlackChannel:  getEnv("SLACK_CHANNEL", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),

		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 10),
		WebhookBurst:         getEnvAsInt("WEBHOOK_BURST", 30),

		BroadcastWorkers: getEnvAsInt("BROADCAST_WORKERS", 4),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		StatsCacheTTL: getEnvAsDuration("STATS_CACHE_TTL", 15*time.Second),

		EmailProvider:      strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", ""))),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Sanctuary"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		ReportFromEmail:    getEnv("REPORT_FROM_EMAIL", ""),
		ReportRecipients:   getEnvAsSlice("REPORT_EMAIL_RECIPIENTS"),
	}
}

func resolveBaseURL() string {
	candidates := []string{
		os.Getenv("PUBLIC_BASE_URL"),
		os.Getenv("VERCEL_PROJECT_PRODUCTION_URL"),
		os.Getenv("VERCEL_URL"),
		os.Getenv("NEXTAUTH_URL"),
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !strings.HasPrefix(c, "http://") && !strings.HasPrefix(c, "https://") {
			c = "https://" + c
		}
		return strings.TrimRight(c, "/")
	}
	return "http://localhost:3000"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsSlice splits a comma-separated environment variable, dropping
// empty entries.
func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
