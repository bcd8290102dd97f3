package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"medai-auth/internal/domain"
	"medai-auth/internal/dto"
	"medai-auth/internal/netutil"
	"medai-auth/internal/observability/metrics"
	"medai-auth/internal/observability/middleware"
	"medai-auth/internal/service"
	"medai-auth/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var _ service.TokenService = (*TokenServiceImpl)(nil)

// ====== Config ======

type TokenConfig struct {
	Issuer     string
	Audience   string
	AccessTTL  time.Duration // e.g. 1h
	RefreshTTL time.Duration // e.g. 30 * 24h
	SigningKey []byte        // HS256 secret
}

// ====== Claims ======

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type AccessClaims struct {
	SID   string `json:"sid"` // session id
	Type  string `json:"typ"`
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	SID                  string `json:"sid"`
	Type                 string `json:"typ"`
	jwt.RegisteredClaims        // jti == refresh_id
}

// ====== Service ======

type TokenServiceImpl struct {
	cfg   TokenConfig
	store *store.Store
	now   func() time.Time
}

func NewTokenServiceHS256(cfg TokenConfig, st *store.Store) *TokenServiceImpl {
	return &TokenServiceImpl{cfg: cfg, store: st, now: func() time.Time { return time.Now().UTC() }}
}

// Issue creates a Session row with a fresh RefreshID and returns access+refresh tokens.
func (t *TokenServiceImpl) Issue(ctx context.Context, user *domain.User, ip, ua string) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("issue", result).Inc()
	}()
	now := t.now()

	sess := &domain.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		RefreshID: uuid.New(),
		ExpiresAt: now.Add(t.cfg.RefreshTTL),
		CreatedAt: now,
		IP:        normalizeIP(ip),
		UserAgent: netutil.TruncateUserAgent(ua),
	}
	if err := t.store.Sessions().Create(ctx, sess); err != nil {
		result = "failure"
		return nil, fmt.Errorf("create session: %w", err)
	}

	tokens, err := t.mint(user.ID, sess, now)
	if err != nil {
		result = "failure"
		return nil, err
	}

	slog.Info("issued tokens", append(middleware.LogAttrs(ctx), "session_id", sess.ID, "user_id", user.ID)...)
	return tokens, nil
}

// Refresh validates the refresh JWT, checks session and user state, rotates
// the refresh id and returns new tokens. A disabled user loses every session.
func (t *TokenServiceImpl) Refresh(ctx context.Context, refreshToken string, ip, ua string) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("refresh", result).Inc()
	}()
	now := t.now()

	sess, claims, err := t.activeSessionForRefresh(ctx, refreshToken, now)
	if err != nil {
		result = "failure"
		return nil, err
	}

	user, err := t.store.Users().GetByID(ctx, sess.UserID)
	if err != nil {
		result = "failure"
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if user.IsDisabled {
		result = "disabled"
		if n, err := t.store.Sessions().RevokeAllForUser(ctx, user.ID, now); err != nil {
			slog.Warn("revoke sessions of disabled user failed", append(middleware.LogAttrs(ctx), "user_id", user.ID, "error", err)...)
		} else {
			slog.Info("revoked sessions of disabled user", append(middleware.LogAttrs(ctx), "user_id", user.ID, "sessions", n)...)
		}
		return nil, domain.ErrUserDisabled
	}

	newRID := uuid.New()
	newExp := now.Add(t.cfg.RefreshTTL)
	ip = normalizeIP(ip)
	ua = netutil.TruncateUserAgent(ua)
	if err := t.store.Sessions().Rotate(ctx, sess.ID, uuid.MustParse(claims.ID), newRID, newExp, ip, ua); err != nil {
		result = "failure"
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	sess.RefreshID = newRID
	sess.ExpiresAt = newExp

	tokens, err := t.mint(sess.UserID, sess, now)
	if err != nil {
		result = "failure"
		return nil, err
	}

	slog.Info("refreshed tokens", append(middleware.LogAttrs(ctx), "session_id", sess.ID, "user_id", sess.UserID)...)
	return tokens, nil
}

// VerifyAccess checks an access token and the session behind it.
func (t *TokenServiceImpl) VerifyAccess(ctx context.Context, accessToken string) (*dto.VerifyResponse, error) {
	claims := &AccessClaims{}
	if _, err := t.parser().ParseWithClaims(accessToken, claims, t.keyFunc); err != nil {
		return nil, domain.ErrInvalidToken
	}
	if claims.Type != tokenTypeAccess {
		return nil, domain.ErrInvalidToken
	}
	sid, err := uuid.Parse(claims.SID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	sess, err := t.store.Sessions().Get(ctx, sid)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if !sess.Active(t.now()) {
		return nil, domain.ErrInvalidToken
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return &dto.VerifyResponse{
		Valid:     true,
		UserID:    claims.Subject,
		SessionID: sess.ID.String(),
		ExpiresAt: exp,
	}, nil
}

// RevokeByRefresh ends the session a refresh token belongs to.
func (t *TokenServiceImpl) RevokeByRefresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	now := t.now()
	sess, _, err := t.activeSessionForRefresh(ctx, refreshToken, now)
	if err != nil {
		return nil, err
	}
	if err := t.store.Sessions().Revoke(ctx, sess.ID, now); err != nil {
		return nil, err
	}
	sess.RevokedAt = &now
	return sess, nil
}

// ====== Helpers ======

func (t *TokenServiceImpl) activeSessionForRefresh(ctx context.Context, refreshToken string, now time.Time) (*domain.Session, *RefreshClaims, error) {
	claims := &RefreshClaims{}
	if _, err := t.parser().ParseWithClaims(refreshToken, claims, t.keyFunc); err != nil {
		return nil, nil, domain.ErrInvalidToken
	}
	if claims.Type != tokenTypeRefresh {
		return nil, nil, domain.ErrInvalidToken
	}
	rid, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, nil, domain.ErrInvalidToken
	}
	sess, err := t.store.Sessions().GetByRefreshID(ctx, rid)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil, domain.ErrInvalidToken
		}
		return nil, nil, err
	}
	if !sess.Active(now) {
		return nil, nil, domain.ErrInvalidToken
	}
	return sess, claims, nil
}

func (t *TokenServiceImpl) mint(userID uuid.UUID, sess *domain.Session, now time.Time) (*dto.TokenResponse, error) {
	access, err := t.signAccess(userID, sess, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := t.signRefresh(userID, sess, now)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.cfg.AccessTTL.Seconds()),
	}, nil
}

func (t *TokenServiceImpl) signAccess(userID uuid.UUID, sess *domain.Session, now time.Time) (string, error) {
	claims := AccessClaims{
		SID:   sess.ID.String(),
		Type:  tokenTypeAccess,
		Scope: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.SigningKey)
}

func (t *TokenServiceImpl) signRefresh(userID uuid.UUID, sess *domain.Session, now time.Time) (string, error) {
	claims := RefreshClaims{
		SID:  sess.ID.String(),
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        sess.RefreshID.String(), // binds the JWT to the session row
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.SigningKey)
}

func (t *TokenServiceImpl) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(t.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
}

func (t *TokenServiceImpl) keyFunc(*jwt.Token) (interface{}, error) {
	return t.cfg.SigningKey, nil
}

func normalizeIP(ip string) string {
	if normalized, ok := netutil.NormalizeIP(ip); ok {
		return normalized
	}
	return strings.TrimSpace(ip)
}
