package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PUBLIC_BASE_URL", "")
	t.Setenv("VERCEL_PROJECT_PRODUCTION_URL", "")
	t.Setenv("VERCEL_URL", "")
	t.Setenv("NEXTAUTH_URL", "")
	t.Setenv("ENABLE_SMS_NOTIFICATIONS", "")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.PublicBaseURL != "http://localhost:3000" {
		t.Fatalf("expected localhost base URL, got %s", cfg.PublicBaseURL)
	}
	if !cfg.EnableSMSNotifications {
		t.Fatalf("expected SMS notifications enabled by default")
	}
	if cfg.TwilioValidateSignature {
		t.Fatalf("expected signature validation off outside production")
	}
	if cfg.BroadcastWorkers != 4 {
		t.Fatalf("expected default broadcast workers, got %d", cfg.BroadcastWorkers)
	}
	if cfg.GatewaySendTimeout != 10*time.Second {
		t.Fatalf("expected default gateway timeout, got %s", cfg.GatewaySendTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("TWILIO_ACCOUNT_SID", "ACtest")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "")
	t.Setenv("ENABLE_SMS_NOTIFICATIONS", "false")
	t.Setenv("BROADCAST_WORKERS", "8")
	t.Setenv("GATEWAY_SEND_TIMEOUT", "5s")
	t.Setenv("REPORT_EMAIL_RECIPIENTS", "a@example.org, b@example.org,")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if !cfg.TwilioValidateSignature {
		t.Fatalf("expected signature validation on by default in production")
	}
	if cfg.EnableSMSNotifications {
		t.Fatalf("expected SMS notifications disabled when explicitly false")
	}
	if cfg.BroadcastWorkers != 8 {
		t.Fatalf("expected worker override, got %d", cfg.BroadcastWorkers)
	}
	if cfg.GatewaySendTimeout != 5*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.GatewaySendTimeout)
	}
	if len(cfg.ReportRecipients) != 2 || cfg.ReportRecipients[0] != "a@example.org" {
		t.Fatalf("expected parsed recipients, got %v", cfg.ReportRecipients)
	}
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "explicit base URL wins",
			env: map[string]string{
				"PUBLIC_BASE_URL": "https://sms.example.org/",
				"VERCEL_URL":      "deploy-abc.vercel.app",
			},
			want: "https://sms.example.org",
		},
		{
			name: "vercel production host gets scheme",
			env:  map[string]string{"VERCEL_PROJECT_PRODUCTION_URL": "sanctuary.vercel.app"},
			want: "https://sanctuary.vercel.app",
		},
		{
			name: "deploy URL before auth URL",
			env: map[string]string{
				"VERCEL_URL":   "deploy-abc.vercel.app",
				"NEXTAUTH_URL": "https://auth.example.org",
			},
			want: "https://deploy-abc.vercel.app",
		},
		{
			name: "auth URL fallback",
			env:  map[string]string{"NEXTAUTH_URL": "http://auth.example.org"},
			want: "http://auth.example.org",
		},
		{
			name: "localhost when nothing set",
			env:  map[string]string{},
			want: "http://localhost:3000",
		},
	}

	keys := []string{"PUBLIC_BASE_URL", "VERCEL_PROJECT_PRODUCTION_URL", "VERCEL_URL", "NEXTAUTH_URL"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				t.Setenv(k, tt.env[k])
			}
			if got := resolveBaseURL(); got != tt.want {
				t.Fatalf("resolveBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
