package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"medai-auth/internal/config"
	"medai-auth/internal/mail"
	"medai-auth/internal/observability/logging"
	"medai-auth/internal/observability/metrics"

	"github.com/nats-io/nats.go"
)

const serviceName = "mailer"

// mailer consumes queued verification mails and sends them over SMTP.
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
	if err != nil && !errors.Is(err, config.ErrMissingSigningKey) {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	metrics.MustRegister(serviceName)

	if cfg.Mail.NATSURL == "" {
		logger.Error("NATS_URL is required")
		os.Exit(1)
	}
	servers, err := mail.ServerListFromConfig(cfg.Mail)
	if err != nil {
		logger.Error("smtp config", "error", err)
		os.Exit(1)
	}
	smtpMailer, err := mail.NewSMTPMailer(servers)
	if err != nil {
		logger.Error("smtp pool", "error", err)
		os.Exit(1)
	}
	defer smtpMailer.Close()

	nc, err := nats.Connect(cfg.Mail.NATSURL, nats.Name("medai-mailer"))
	if err != nil {
		logger.Error("nats connect", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := mail.NewWorker(smtpMailer, cfg.Mail.Timeout)
	if err := worker.Run(ctx, nc, cfg.Mail.Subject, "mailer"); err != nil {
		logger.Error("mail worker", "error", err)
		os.Exit(1)
	}
	logger.Info("mailer stopped")
}
