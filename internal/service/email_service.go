package service

import (
	"context"
	"time"
)

// EmailService dispatches verification codes. A false return with a nil
// error means no transport is configured; an error means the transport
// failed.
type EmailService interface {
	SendVerification(ctx context.Context, to, code string, ttl time.Duration) (bool, error)
}
