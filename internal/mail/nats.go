package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medai-auth/internal/events"
	"medai-auth/internal/observability/metrics"
	"medai-auth/internal/service"

	"github.com/nats-io/nats.go"
)

var _ service.EmailService = (*NATSMailer)(nil)

// publisher is the part of *nats.Conn the mailer uses.
type publisher interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSMailer queues verification mails for cmd/mailer instead of talking
// SMTP on the request path.
type NATSMailer struct {
	conn    publisher
	subject string
	now     func() time.Time
}

func NewNATSMailer(nc *nats.Conn, subject string) *NATSMailer {
	return newNATSMailer(nc, subject)
}

func newNATSMailer(conn publisher, subject string) *NATSMailer {
	if subject == "" {
		subject = events.SubjectVerificationMail
	}
	return &NATSMailer{conn: conn, subject: subject, now: func() time.Time { return time.Now().UTC() }}
}

// SendVerification reports delivered once the server has acknowledged the
// publish with a flush. Whether the worker manages to send is not observed.
func (n *NATSMailer) SendVerification(ctx context.Context, to, code string, ttl time.Duration) (bool, error) {
	job := events.VerificationMailRequested{
		To:            to,
		Code:          code,
		ExpiresInMins: ExpiryMinutes(ttl),
		RequestedAt:   n.now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("encode mail job: %w", err)
	}
	if err := n.conn.Publish(n.subject, raw); err != nil {
		metrics.MailDispatchTotal.WithLabelValues("nats", "failed").Inc()
		return false, fmt.Errorf("publish mail job: %w", err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		metrics.MailDispatchTotal.WithLabelValues("nats", "failed").Inc()
		return false, fmt.Errorf("flush mail job: %w", err)
	}
	metrics.MailDispatchTotal.WithLabelValues("nats", "queued").Inc()
	return true, nil
}
