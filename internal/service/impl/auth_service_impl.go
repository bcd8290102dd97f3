package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"medai-auth/internal/domain"
	"medai-auth/internal/dto"
	"medai-auth/internal/events"
	"medai-auth/internal/netutil"
	"medai-auth/internal/observability/metrics"
	"medai-auth/internal/observability/middleware"
	"medai-auth/internal/otp"
	"medai-auth/internal/service"
	"medai-auth/internal/store"

	"github.com/google/uuid"
)

var _ service.AuthService = (*AuthServiceImpl)(nil)

const minPasswordLength = 8

const (
	msgCodeResent      = "A new verification code has been sent."
	msgAlreadyVerified = "Email is already verified."
	msgResendGeneric   = "If an unverified account exists for this email, a new code has been sent."
)

type AuthServiceImpl struct {
	Store           dataStore
	PasswordService service.PasswordService
	TService        service.TokenService
	Verifier        service.VerificationService
	now             func() time.Time
}

func NewAuthServiceImpl(st *store.Store, passwordService service.PasswordService, tokenService service.TokenService, verifier service.VerificationService) *AuthServiceImpl {
	return &AuthServiceImpl{
		Store:           gormStoreAdapter{store: st},
		PasswordService: passwordService,
		TService:        tokenService,
		Verifier:        verifier,
	}
}

func (a *AuthServiceImpl) Signup(ctx context.Context, r dto.SignupRequest, ip, ua string) (*dto.SignupResponse, error) {
	// 1) basic validation
	username := strings.TrimSpace(r.Username)
	email, err := validateEmail(r.Email)
	if err != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if username == "" {
		metrics.AuthRegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyUsername
	}
	if r.Password == "" {
		metrics.AuthRegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyPassword
	}
	if len(r.Password) < minPasswordLength {
		metrics.AuthRegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrPasswordLength
	}
	phone := normalizePhone(r.Phone)

	// 2) existing account: verified is final, unverified is a retry
	existing, err := a.Store.Users().GetByEmail(ctx, email)
	switch {
	case err == nil && existing.EmailVerified:
		metrics.AuthRegistrationsTotal.WithLabelValues("already_registered").Inc()
		return nil, domain.ErrAlreadyRegistered
	case err == nil:
		return a.retrySignup(ctx, existing, username, phone, r.Password, ip, ua)
	case !errors.Is(err, store.ErrRecordNotFound):
		metrics.AuthRegistrationsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	hash, salt, paramsJSON, algo, ver, err := a.PasswordService.Hash(r.Password)
	if err != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// 3) single transaction: create user + password credential
	now := a.nowTime()
	user := &domain.User{
		ID:        uuid.New(),
		Email:     email,
		Username:  username,
		Phone:     phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = a.Store.WithTx(ctx, func(tx storeTx) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return tx.Credentials().UpsertPassword(ctx, &domain.PasswordCredential{
			ID:          uuid.New(),
			UserID:      user.ID,
			Algo:        algo,
			Hash:        hash,
			Salt:        salt,
			ParamsJSON:  paramsJSON,
			PasswordVer: ver,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// lost a race against a concurrent signup for the same address
			metrics.AuthRegistrationsTotal.WithLabelValues("already_registered").Inc()
			return nil, domain.ErrAlreadyRegistered
		}
		metrics.AuthRegistrationsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("create account: %w", err)
	}

	a.audit(ctx, &user.ID, domain.AuditSignup, events.UserRegistered{UserID: user.ID.String(), Email: user.Email, At: now}, ip, ua)

	// 4) issue the first code outside the transaction
	res, err := a.Verifier.Issue(ctx, user)
	if err != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues("created_mail_failed").Inc()
		return nil, err
	}
	metrics.AuthRegistrationsTotal.WithLabelValues("created").Inc()
	slog.Info("account created", append(middleware.LogAttrs(ctx), "user_id", user.ID)...)

	return &dto.SignupResponse{
		VerificationRequired: true,
		Email:                user.Email,
		Created:              true,
		DevOTP:               res.DevCode,
	}, nil
}

// retrySignup re-sends a code to an unverified account. The stored
// password and profile only change when the caller already knows the stored
// password; anyone else just triggers a new code, subject to the resend
// cooldown.
func (a *AuthServiceImpl) retrySignup(ctx context.Context, user *domain.User, username string, phone *string, password, ip, ua string) (*dto.SignupResponse, error) {
	if err := a.Verifier.CheckCooldown(user); err != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues("retry_rate_limited").Inc()
		return nil, err
	}

	now := a.nowTime()
	profileUpdated := false
	err := a.Store.WithTx(ctx, func(tx storeTx) error {
		cred, err := tx.Credentials().GetPasswordByUserID(ctx, user.ID)
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}
		if cred == nil {
			return nil
		}
		if _, ok := a.PasswordService.Verify(password, cred); !ok {
			return nil
		}
		user.Username = username
		user.Phone = phone
		user.UpdatedAt = now
		profileUpdated = true
		return tx.Users().UpdateProfile(ctx, user)
	})
	if err != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("update unverified account: %w", err)
	}

	a.audit(ctx, &user.ID, domain.AuditSignupRetry, events.SignupRetried{UserID: user.ID.String(), Email: user.Email, ProfileUpdated: profileUpdated, At: now}, ip, ua)

	res, err := a.Verifier.Issue(ctx, user)
	if err != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues("retry_mail_failed").Inc()
		return nil, err
	}
	metrics.AuthRegistrationsTotal.WithLabelValues("retry").Inc()

	return &dto.SignupResponse{
		VerificationRequired: true,
		Email:                user.Email,
		Created:              false,
		DevOTP:               res.DevCode,
	}, nil
}

func (a *AuthServiceImpl) VerifyEmail(ctx context.Context, r dto.VerifyEmailRequest, ip, ua string) (*dto.AuthResponse, error) {
	email := domain.NormalizeEmail(r.Email)
	code := otp.Normalize(r.OTP)
	if email == "" || code == "" {
		return nil, ErrEmptyCredential
	}

	user, alreadyVerified, err := a.Verifier.Confirm(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if !alreadyVerified {
		a.audit(ctx, &user.ID, domain.AuditEmailVerified, events.EmailVerified{UserID: user.ID.String(), Email: user.Email, At: a.nowTime()}, ip, ua)
	}
	if user.IsDisabled {
		return nil, domain.ErrUserDisabled
	}

	tokens, err := a.TService.Issue(ctx, user, ip, ua)
	if err != nil {
		return nil, err
	}
	return &dto.AuthResponse{TokenResponse: *tokens, User: dto.UserFromDomain(user)}, nil
}

func (a *AuthServiceImpl) ResendOTP(ctx context.Context, r dto.ResendOTPRequest, ip, ua string) (*dto.ResendOTPResponse, error) {
	email, err := validateEmail(r.Email)
	if err != nil {
		return nil, err
	}

	res, err := a.Verifier.Resend(ctx, email)
	if err != nil {
		return nil, err
	}
	switch {
	case res.AlreadyVerified:
		return &dto.ResendOTPResponse{Message: msgAlreadyVerified}, nil
	case res.Issue == nil:
		return &dto.ResendOTPResponse{Message: msgResendGeneric}, nil
	}

	a.audit(ctx, nil, domain.AuditOTPResent, events.VerificationCodeResent{Email: email, At: a.nowTime()}, ip, ua)
	return &dto.ResendOTPResponse{Message: msgCodeResent, DevOTP: res.Issue.DevCode}, nil
}

func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.AuthResponse, error) {
	email := domain.NormalizeEmail(r.Email)
	if email == "" || r.Password == "" {
		metrics.AuthLoginsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyCredential
	}

	var user *domain.User

	// Credential checks and the optional rehash share a transaction; the
	// session is issued after commit.
	err := a.Store.WithTx(ctx, func(tx storeTx) error {
		// 1) load user by email
		var err error
		user, err = tx.Users().GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrInvalidCredentials // don't leak which field failed
			}
			return err
		}

		// 2) load stored password credential
		cred, err := tx.Credentials().GetPasswordByUserID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrInvalidCredentials
			}
			return err
		}

		// 3) verify password (and decide if we should rehash)
		rehashNeeded, ok := a.PasswordService.Verify(r.Password, cred)
		if !ok {
			return domain.ErrInvalidCredentials
		}
		if user.IsDisabled {
			return domain.ErrUserDisabled
		}
		if !user.EmailVerified {
			return domain.ErrEmailNotVerified
		}

		// 4) optional transparent rehash (policy upgrade)
		if rehashNeeded {
			newHash, newSalt, newParamsJSON, algo, ver, err := a.PasswordService.Hash(r.Password)
			if err != nil {
				return err
			}
			cred.Algo = algo
			cred.Hash = newHash
			cred.Salt = newSalt
			cred.ParamsJSON = newParamsJSON
			cred.PasswordVer = ver
			cred.UpdatedAt = a.nowTime()
			if err := tx.Credentials().UpsertPassword(ctx, cred); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		a.recordLoginFailure(ctx, user, err, ip, ua)
		return nil, err
	}

	// 5) mint tokens + persist session (TokenService handles session write)
	tokens, err := a.TService.Issue(ctx, user, ip, ua)
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.AuthLoginsTotal.WithLabelValues("success").Inc()
	a.audit(ctx, &user.ID, domain.AuditLogin, nil, ip, ua)

	return &dto.AuthResponse{TokenResponse: *tokens, User: dto.UserFromDomain(user)}, nil
}

func (a *AuthServiceImpl) recordLoginFailure(ctx context.Context, user *domain.User, err error, ip, ua string) {
	result := "failure"
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		result = "invalid_credentials"
	case errors.Is(err, domain.ErrUserDisabled):
		result = "disabled"
	case errors.Is(err, domain.ErrEmailNotVerified):
		result = "unverified"
	}
	metrics.AuthLoginsTotal.WithLabelValues(result).Inc()
	if user == nil {
		return
	}
	a.audit(ctx, &user.ID, domain.AuditLoginFailed, map[string]string{"reason": result}, ip, ua)
}

func (a *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string, ip, ua string) (*dto.TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, domain.ErrInvalidToken
	}
	return a.TService.Refresh(ctx, refreshToken, ip, ua)
}

func (a *AuthServiceImpl) Logout(ctx context.Context, refreshToken string, ip, ua string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.ErrInvalidToken
	}
	sess, err := a.TService.RevokeByRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}
	at := a.nowTime()
	if sess.RevokedAt != nil {
		at = *sess.RevokedAt
	}
	a.audit(ctx, &sess.UserID, domain.AuditLogout, events.SessionRevoked{
		SessionID: sess.ID.String(),
		UserID:    sess.UserID.String(),
		At:        at,
	}, ip, ua)
	return nil
}

func (a *AuthServiceImpl) Me(ctx context.Context, accessToken string) (*dto.User, error) {
	claims, err := a.TService.VerifyAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	user, err := a.Store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if user.IsDisabled {
		return nil, domain.ErrUserDisabled
	}
	out := dto.UserFromDomain(user)
	return &out, nil
}

// audit is best effort; a failed write is logged and never fails the request.
func (a *AuthServiceImpl) audit(ctx context.Context, userID *domain.UserID, action string, meta any, ip, ua string) {
	entry := &domain.AuditLog{
		UserID:    userID,
		Action:    action,
		IP:        normalizeIP(ip),
		UserAgent: netutil.TruncateUserAgent(ua),
		CreatedAt: a.nowTime(),
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err == nil {
			entry.Metadata = raw
		}
	}
	if err := a.Store.Audit().Record(ctx, entry); err != nil {
		slog.Warn("audit write failed", append(middleware.LogAttrs(ctx), "action", action, "error", err)...)
	}
}

func (a *AuthServiceImpl) nowTime() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now().UTC()
}

// validateEmail normalizes an address and rejects anything that is not a
// bare addr-spec.
func validateEmail(raw string) (string, error) {
	email := domain.NormalizeEmail(raw)
	if email == "" {
		return "", ErrEmptyEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func normalizePhone(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
