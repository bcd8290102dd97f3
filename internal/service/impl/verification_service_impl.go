package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medai-auth/internal/domain"
	"medai-auth/internal/observability/metrics"
	"medai-auth/internal/observability/middleware"
	"medai-auth/internal/otp"
	"medai-auth/internal/service"
	"medai-auth/internal/store"
)

var _ service.VerificationService = (*VerificationServiceImpl)(nil)

type VerificationConfig struct {
	CodeTTL        time.Duration // default 10m
	ResendCooldown time.Duration // default 60s
	// Production forbids handing the plaintext code back to the caller.
	Production bool
	// RejectVerifiedConfirm makes Confirm on an already verified account
	// fail with ErrInvalidCode instead of succeeding. Off by default, in
	// which case any code confirms a verified account.
	RejectVerifiedConfirm bool
	// Clock overrides the time source. Nil means time.Now in UTC.
	Clock func() time.Time
}

// Compared against when the account does not exist, so that branch also
// pays for a hash.
var absentAccountHash = otp.Hash("absent-account")

type VerificationServiceImpl struct {
	cfg      VerificationConfig
	accounts accountStore
	mail     service.EmailService
	now      func() time.Time
	generate func() (string, error)
}

func NewVerificationServiceImpl(cfg VerificationConfig, accounts accountStore, mail service.EmailService) *VerificationServiceImpl {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.ResendCooldown < 0 {
		cfg.ResendCooldown = 0
	}
	now := cfg.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &VerificationServiceImpl{
		cfg:      cfg,
		accounts: accounts,
		mail:     mail,
		now:      now,
		generate: otp.Generate,
	}
}

func (v *VerificationServiceImpl) Issue(ctx context.Context, user *domain.User) (*service.IssueResult, error) {
	if user == nil {
		return nil, errors.New("issue code: nil user")
	}
	if user.EmailVerified {
		metrics.OTPIssuedTotal.WithLabelValues("already_verified").Inc()
		return &service.IssueResult{AlreadyVerified: true}, nil
	}
	return v.issue(ctx, user)
}

func (v *VerificationServiceImpl) Confirm(ctx context.Context, email, code string) (*domain.User, bool, error) {
	code = otp.Normalize(code)

	user, err := v.accounts.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			otp.Matches(code, absentAccountHash)
			metrics.OTPConfirmationsTotal.WithLabelValues("invalid").Inc()
			return nil, false, domain.ErrInvalidCode
		}
		return nil, false, fmt.Errorf("load account: %w", err)
	}

	now := v.nowTime()
	switch user.VerificationState() {
	case domain.StateVerified:
		if v.cfg.RejectVerifiedConfirm {
			otp.Matches(code, absentAccountHash)
			metrics.OTPConfirmationsTotal.WithLabelValues("invalid").Inc()
			return nil, false, domain.ErrInvalidCode
		}
		metrics.OTPConfirmationsTotal.WithLabelValues("already_verified").Inc()
		return user, true, nil
	case domain.StateUnverifiedNoCode:
		metrics.OTPConfirmationsTotal.WithLabelValues("expired").Inc()
		return nil, false, domain.ErrCodeExpired
	}
	if now.After(*user.OTPExpiresAt) {
		metrics.OTPConfirmationsTotal.WithLabelValues("expired").Inc()
		return nil, false, domain.ErrCodeExpired
	}
	if !otp.WellFormed(code) || !otp.Matches(code, *user.OTPHash) {
		metrics.OTPConfirmationsTotal.WithLabelValues("invalid").Inc()
		return nil, false, domain.ErrInvalidCode
	}

	next := *user
	next.MarkVerified(now)
	if err := v.accounts.SaveVerification(ctx, &next); err != nil {
		metrics.OTPConfirmationsTotal.WithLabelValues("failure").Inc()
		return nil, false, fmt.Errorf("save verification: %w", err)
	}

	metrics.OTPConfirmationsTotal.WithLabelValues("verified").Inc()
	slog.Info("email verified", append(middleware.LogAttrs(ctx), "user_id", next.ID)...)
	return &next, false, nil
}

func (v *VerificationServiceImpl) Resend(ctx context.Context, email string) (*service.ResendResult, error) {
	user, err := v.accounts.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			metrics.OTPResendsTotal.WithLabelValues("unknown_account").Inc()
			return &service.ResendResult{}, nil
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if user.VerificationState() == domain.StateVerified {
		metrics.OTPResendsTotal.WithLabelValues("already_verified").Inc()
		return &service.ResendResult{AlreadyVerified: true}, nil
	}
	if err := v.CheckCooldown(user); err != nil {
		metrics.OTPResendsTotal.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	res, err := v.issue(ctx, user)
	if res == nil {
		metrics.OTPResendsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.OTPResendsTotal.WithLabelValues("issued").Inc()
	return &service.ResendResult{Issue: res}, err
}

// CheckCooldown returns a *domain.RateLimitError while the last code sent to
// user is younger than the resend cooldown.
func (v *VerificationServiceImpl) CheckCooldown(user *domain.User) error {
	if user.OTPSentAt == nil {
		return nil
	}
	elapsed := v.nowTime().Sub(*user.OTPSentAt)
	if elapsed < v.cfg.ResendCooldown {
		return &domain.RateLimitError{RetryAfter: v.cfg.ResendCooldown - elapsed}
	}
	return nil
}

// issue stores a fresh code and then mails it. Once the store write has
// succeeded the result is returned even if the mail transport fails.
func (v *VerificationServiceImpl) issue(ctx context.Context, user *domain.User) (*service.IssueResult, error) {
	code, err := v.generate()
	if err != nil {
		metrics.OTPIssuedTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	now := v.nowTime()

	next := *user
	next.SetPendingCode(otp.Hash(code), now, v.cfg.CodeTTL)
	if err := v.accounts.SaveVerification(ctx, &next); err != nil {
		metrics.OTPIssuedTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("save verification code: %w", err)
	}
	*user = next

	res := &service.IssueResult{ExpiresAt: *next.OTPExpiresAt}
	logAttrs := append(middleware.LogAttrs(ctx), "user_id", user.ID)

	delivered, err := v.dispatch(ctx, user.Email, code)
	switch {
	case err != nil:
		metrics.OTPIssuedTotal.WithLabelValues("dispatch_failed").Inc()
		slog.Error("verification email dispatch failed", append(logAttrs, "error", err)...)
		return res, fmt.Errorf("%w: %w", domain.ErrMailDispatch, err)
	case delivered:
		res.Delivered = true
		metrics.OTPIssuedTotal.WithLabelValues("delivered").Inc()
		slog.Info("verification code issued", logAttrs...)
	case v.cfg.Production:
		metrics.OTPIssuedTotal.WithLabelValues("mail_unconfigured").Inc()
		slog.Error("email not configured; verification code was not delivered", logAttrs...)
	default:
		res.DevCode = code
		metrics.OTPIssuedTotal.WithLabelValues("mail_unconfigured").Inc()
		slog.Warn("email not configured; returning verification code to caller", append(logAttrs, "otp", code)...)
	}
	return res, nil
}

func (v *VerificationServiceImpl) dispatch(ctx context.Context, to, code string) (bool, error) {
	if v.mail == nil {
		return false, nil
	}
	return v.mail.SendVerification(ctx, to, code, v.cfg.CodeTTL)
}

func (v *VerificationServiceImpl) nowTime() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now().UTC()
}
