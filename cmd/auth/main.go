package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medai-auth/internal/config"
	"medai-auth/internal/mail"
	"medai-auth/internal/observability/logging"
	"medai-auth/internal/observability/metrics"
	"medai-auth/internal/ratelimit"
	"medai-auth/internal/service"
	impl "medai-auth/internal/service/impl"
	"medai-auth/internal/store"
	httpx "medai-auth/internal/transport/http"
	"medai-auth/pkg/db"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const serviceName = "auth"

func main() {
	cfg, err := config.Load()
	logger := logging.NewLogger(logging.Config{
		ServiceName:    serviceName,
		Environment:    cfg.Environment,
		Level:          cfg.Log.Level,
		File:           cfg.Log.File,
		FileMaxSizeMB:  cfg.Log.FileMaxSizeMB,
		FileMaxAgeDays: cfg.Log.FileMaxAgeDays,
		FileMaxBackups: cfg.Log.FileMaxBackups,
	})
	slog.SetDefault(logger)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	logger.Info("starting service", "production", cfg.Production)
	metrics.MustRegister(serviceName)

	// 1) DB
	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.DBLogSQL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(gdb); err != nil {
			logger.Error("automigrate", "error", err)
			os.Exit(1)
		}
	}
	st := store.New(gdb)

	// 2) Mail transport
	mailer, closeMailer, err := newMailer(cfg)
	if err != nil {
		logger.Error("mail transport", "error", err)
		os.Exit(1)
	}
	defer closeMailer()

	// 3) Attempt limiter (optional)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = ratelimit.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			// the limiter fails open, so a missing Redis is not fatal
			logger.Warn("redis unavailable, attempt limiter disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	limiter := ratelimit.New(redisClient, cfg.RateLimitPerMinute, time.Minute)

	// 4) Services
	pw := impl.NewPasswordServiceArgon2id()
	ts := impl.NewTokenServiceHS256(impl.TokenConfig{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		SigningKey: []byte(cfg.SigningKey),
	}, st)
	gate := impl.NewVerificationServiceImpl(impl.VerificationConfig{
		CodeTTL:        cfg.Verification.CodeTTL,
		ResendCooldown: cfg.Verification.ResendCooldown,
		Production:     cfg.Production,

		RejectVerifiedConfirm: cfg.Verification.RejectVerifiedConfirm,
	}, st.Users(), mailer)
	as := impl.NewAuthServiceImpl(st, pw, ts, gate)

	// 5) HTTP
	handler := httpx.NewRouter(as, httpx.Options{
		TrustProxy:               cfg.TrustProxy,
		Limiter:                  limiter,
		CORSOrigins:              cfg.CORSOrigins,
		GlobalRateLimitPerMinute: cfg.GlobalRateLimitPerMinute,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("auth service listening", "addr", srv.Addr, "issuer", cfg.Issuer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "error", err)
	}
}

// newMailer picks the verification mail transport: a NATS queue when
// NATS_URL is set, direct SMTP when configured, otherwise none.
func newMailer(cfg config.Config) (service.EmailService, func(), error) {
	switch {
	case cfg.Mail.NATSURL != "":
		nc, err := nats.Connect(cfg.Mail.NATSURL, nats.Name("medai-auth"))
		if err != nil {
			return nil, nil, err
		}
		slog.Info("verification mail via nats", "subject", cfg.Mail.Subject)
		return mail.NewNATSMailer(nc, cfg.Mail.Subject), func() { _ = nc.Drain() }, nil
	case cfg.Mail.SMTPConfigured():
		servers, err := mail.ServerListFromConfig(cfg.Mail)
		if err != nil {
			return nil, nil, err
		}
		m, err := mail.NewSMTPMailer(servers)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("verification mail via smtp", "servers", len(servers.Servers))
		return m, m.Close, nil
	default:
		if cfg.Production {
			slog.Error("email not configured in production; verification codes cannot be delivered")
		} else {
			slog.Warn("email not configured; verification codes will be returned in responses")
		}
		return mail.NoopMailer{}, func() {}, nil
	}
}
