package mail

import (
	"context"
	"time"

	"medai-auth/internal/observability/metrics"
	"medai-auth/internal/service"
)

var _ service.EmailService = NoopMailer{}

// NoopMailer stands in when no transport is configured.
type NoopMailer struct{}

func (NoopMailer) SendVerification(context.Context, string, string, time.Duration) (bool, error) {
	metrics.MailDispatchTotal.WithLabelValues("none", "unconfigured").Inc()
	return false, nil
}
