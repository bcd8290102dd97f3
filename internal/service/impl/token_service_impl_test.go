package impl

import (
	"context"
	"testing"
	"time"

	"medai-auth/internal/domain"
	"medai-auth/internal/store"
	"medai-auth/pkg/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSQLiteStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), db.GormConfig(db.Config{}))
	require.NoError(t, err, "open sqlite")
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb), "automigrate")
	return store.New(gdb)
}

func testTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer:     "medai-auth",
		Audience:   "medai",
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
		SigningKey: []byte("test-signing-key-0123456789abcdef"),
	}
}

func newTestTokenService(t *testing.T, st *store.Store, clock *fakeClock) *TokenServiceImpl {
	t.Helper()
	ts := NewTokenServiceHS256(testTokenConfig(), st)
	ts.now = clock.now
	return ts
}

func tokenUser(t *testing.T, st *store.Store) *domain.User {
	t.Helper()
	id := uuid.New()
	user := &domain.User{ID: id, Email: "frank+" + id.String()[:8] + "@example.com", Username: "frank", EmailVerified: true}
	require.NoError(t, st.Users().Create(context.Background(), user))
	return user
}

func TestTokenIssueAndVerifyAccess(t *testing.T) {
	st := setupSQLiteStore(t)
	clock := &fakeClock{t: gateEpoch}
	ts := newTestTokenService(t, st, clock)
	ctx := context.Background()
	user := tokenUser(t, st)

	tokens, err := ts.Issue(ctx, user, "::ffff:10.0.0.7", "unit-test")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.EqualValues(t, 3600, tokens.ExpiresIn)

	claims, err := ts.VerifyAccess(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.Valid)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.True(t, claims.ExpiresAt.Equal(gateEpoch.Add(time.Hour)))

	sid := uuid.MustParse(claims.SessionID)
	sess, err := st.Sessions().Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", sess.IP, "mapped addresses are unmapped")
	assert.Equal(t, user.ID, sess.UserID)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	st := setupSQLiteStore(t)
	ts := newTestTokenService(t, st, &fakeClock{t: gateEpoch})
	ctx := context.Background()

	tokens, err := ts.Issue(ctx, tokenUser(t, st), "", "")
	require.NoError(t, err)

	_, err = ts.VerifyAccess(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = ts.Refresh(ctx, tokens.AccessToken, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenRefreshRotates(t *testing.T) {
	st := setupSQLiteStore(t)
	clock := &fakeClock{t: gateEpoch}
	ts := newTestTokenService(t, st, clock)
	ctx := context.Background()

	first, err := ts.Issue(ctx, tokenUser(t, st), "", "")
	require.NoError(t, err)

	clock.advance(time.Minute)
	second, err := ts.Refresh(ctx, first.RefreshToken, "10.0.0.8", "unit-test")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = ts.Refresh(ctx, first.RefreshToken, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken, "a rotated refresh token must not be replayable")

	_, err = ts.Refresh(ctx, second.RefreshToken, "", "")
	assert.NoError(t, err)
}

func TestTokenRevokeEndsSession(t *testing.T) {
	st := setupSQLiteStore(t)
	ts := newTestTokenService(t, st, &fakeClock{t: gateEpoch})
	ctx := context.Background()

	tokens, err := ts.Issue(ctx, tokenUser(t, st), "", "")
	require.NoError(t, err)

	sess, err := ts.RevokeByRefresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, sess.RevokedAt)

	_, err = ts.VerifyAccess(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = ts.Refresh(ctx, tokens.RefreshToken, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = ts.RevokeByRefresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenAccessExpires(t *testing.T) {
	st := setupSQLiteStore(t)
	clock := &fakeClock{t: gateEpoch}
	ts := newTestTokenService(t, st, clock)
	ctx := context.Background()

	tokens, err := ts.Issue(ctx, tokenUser(t, st), "", "")
	require.NoError(t, err)

	clock.advance(time.Hour + time.Second)
	_, err = ts.VerifyAccess(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenRejectsForeignTokens(t *testing.T) {
	st := setupSQLiteStore(t)
	clock := &fakeClock{t: gateEpoch}
	ts := newTestTokenService(t, st, clock)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*TokenConfig)
	}{
		{name: "other issuer", mutate: func(c *TokenConfig) { c.Issuer = "someone-else" }},
		{name: "other audience", mutate: func(c *TokenConfig) { c.Audience = "other-app" }},
		{name: "other key", mutate: func(c *TokenConfig) { c.SigningKey = []byte("a-different-signing-key-0123456") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testTokenConfig()
			tc.mutate(&cfg)
			foreign := NewTokenServiceHS256(cfg, st)
			foreign.now = clock.now

			tokens, err := foreign.Issue(ctx, tokenUser(t, st), "", "")
			require.NoError(t, err)
			_, err = ts.VerifyAccess(ctx, tokens.AccessToken)
			assert.ErrorIs(t, err, domain.ErrInvalidToken)
		})
	}

	_, err := ts.VerifyAccess(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenRefreshRejectsDisabledUser(t *testing.T) {
	st := setupSQLiteStore(t)
	ts := newTestTokenService(t, st, &fakeClock{t: gateEpoch})
	ctx := context.Background()
	user := tokenUser(t, st)

	first, err := ts.Issue(ctx, user, "", "")
	require.NoError(t, err)
	second, err := ts.Issue(ctx, user, "", "")
	require.NoError(t, err)

	require.NoError(t, st.DB.Model(&domain.User{}).Where("id = ?", user.ID).Update("is_disabled", true).Error)

	_, err = ts.Refresh(ctx, first.RefreshToken, "", "")
	assert.ErrorIs(t, err, domain.ErrUserDisabled)

	// every session of the user is gone, not just the one presented
	_, err = ts.VerifyAccess(ctx, second.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = ts.Refresh(ctx, second.RefreshToken, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}
