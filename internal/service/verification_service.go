package service

import (
	"context"
	"time"

	"medai-auth/internal/domain"
)

// IssueResult describes a code issuance.
type IssueResult struct {
	AlreadyVerified bool
	Delivered       bool
	ExpiresAt       time.Time
	// DevCode carries the plaintext code when mail is not configured and
	// the service is not running in production. Empty otherwise.
	DevCode string
}

type ResendResult struct {
	AlreadyVerified bool
	// Issue is nil when no code was issued (unknown or verified account).
	Issue *IssueResult
}

// VerificationService gates login behind a confirmed email address.
type VerificationService interface {
	Issue(ctx context.Context, user *domain.User) (*IssueResult, error)
	Confirm(ctx context.Context, email, code string) (user *domain.User, alreadyVerified bool, err error)
	Resend(ctx context.Context, email string) (*ResendResult, error)
	// CheckCooldown reports a *domain.RateLimitError when a new code may
	// not be sent to user yet.
	CheckCooldown(user *domain.User) error
}
