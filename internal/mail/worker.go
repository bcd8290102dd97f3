package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medai-auth/internal/events"

	"github.com/nats-io/nats.go"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Worker turns queued verification jobs into emails. Each job is attempted
// once; failures are logged and dropped, the user can ask for a new code.
type Worker struct {
	sender  Sender
	timeout time.Duration
}

func NewWorker(sender Sender, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Worker{sender: sender, timeout: timeout}
}

var errBadJob = errors.New("malformed mail job")

func (w *Worker) Handle(ctx context.Context, data []byte) error {
	var job events.VerificationMailRequested
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("%w: %w", errBadJob, err)
	}
	if job.To == "" || job.Code == "" {
		return fmt.Errorf("%w: missing recipient or code", errBadJob)
	}
	minutes := job.ExpiresInMins
	if minutes < 1 {
		minutes = 1
	}
	msg, err := RenderVerification(job.To, job.Code, minutes)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.sender.Send(ctx, msg)
}

// Run queue-subscribes so several mailer replicas share the load, and blocks
// until ctx is done. Pending messages are drained before returning.
func (w *Worker) Run(ctx context.Context, nc *nats.Conn, subject, queue string) error {
	// jobs still draining at shutdown must not inherit the cancellation
	jobCtx := context.WithoutCancel(ctx)
	sub, err := nc.QueueSubscribe(subject, queue, func(m *nats.Msg) {
		if err := w.Handle(jobCtx, m.Data); err != nil {
			slog.Error("verification mail job failed", "subject", m.Subject, "error", err)
			return
		}
		slog.Info("verification mail sent", "subject", m.Subject)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	slog.Info("mail worker subscribed", "subject", subject, "queue", queue)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	return nil
}
