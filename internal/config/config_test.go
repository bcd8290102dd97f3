package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SIGNING_KEY", "secret")
	t.Setenv("ENVIRONMENT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Production {
		t.Fatalf("dev environment must not be production")
	}
	if cfg.Verification.CodeTTL != 10*time.Minute {
		t.Fatalf("expected 10m code ttl, got %v", cfg.Verification.CodeTTL)
	}
	if cfg.Verification.ResendCooldown != 60*time.Second {
		t.Fatalf("expected 60s cooldown, got %v", cfg.Verification.ResendCooldown)
	}
	if cfg.Verification.RejectVerifiedConfirm {
		t.Fatalf("verified reconfirm must succeed by default")
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("expected 1h access ttl, got %v", cfg.AccessTTL)
	}
	if cfg.Mail.SMTPConfigured() {
		t.Fatalf("smtp must not be configured by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SIGNING_KEY", "secret")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("OTP_TTL_MINUTES", "5")
	t.Setenv("OTP_RESEND_COOLDOWN_SECONDS", "30")
	t.Setenv("OTP_REJECT_VERIFIED_CONFIRM", "true")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("EMAIL_FROM", "no-reply@example.com")
	t.Setenv("ACCESS_TTL", "bogus")
	t.Setenv("CLIENT_URL", "https://app.medai.test, https://admin.medai.test,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Production {
		t.Fatalf("ENVIRONMENT=production must enable production mode")
	}
	if cfg.Verification.CodeTTL != 5*time.Minute || cfg.Verification.ResendCooldown != 30*time.Second || !cfg.Verification.RejectVerifiedConfirm {
		t.Fatalf("unexpected verification config: %+v", cfg.Verification)
	}
	if !cfg.Mail.SMTPConfigured() {
		t.Fatalf("expected smtp configured")
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("invalid duration must fall back to default, got %v", cfg.AccessTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.medai.test" {
		t.Fatalf("unexpected cors origins %q", cfg.CORSOrigins)
	}
}

func TestLoadProductionFlagOverride(t *testing.T) {
	t.Setenv("SIGNING_KEY", "secret")
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("PRODUCTION", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Production {
		t.Fatalf("PRODUCTION=true must win")
	}
}

func TestLoadRequiresSigningKey(t *testing.T) {
	t.Setenv("SIGNING_KEY", "")
	if _, err := Load(); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected ErrMissingSigningKey, got %v", err)
	}
}
