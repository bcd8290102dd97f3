package domain

import (
	"errors"
	"testing"
	"time"
)

func TestVerificationStateTransitions(t *testing.T) {
	u := &User{}
	if got := u.VerificationState(); got != StateUnverifiedNoCode {
		t.Fatalf("new user: expected %v, got %v", StateUnverifiedNoCode, got)
	}

	sent := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u.SetPendingCode("hash", sent, 10*time.Minute)
	if got := u.VerificationState(); got != StateCodePending {
		t.Fatalf("after issue: expected %v, got %v", StateCodePending, got)
	}
	if !u.OTPExpiresAt.After(*u.OTPSentAt) {
		t.Fatalf("expiry %v must be after sent %v", u.OTPExpiresAt, u.OTPSentAt)
	}

	u.MarkVerified(sent.Add(time.Minute))
	if got := u.VerificationState(); got != StateVerified {
		t.Fatalf("after confirm: expected %v, got %v", StateVerified, got)
	}
	if u.OTPHash != nil || u.OTPExpiresAt != nil || u.OTPSentAt != nil {
		t.Fatalf("verified user must have no otp fields: %+v", u)
	}
	if u.EmailVerifiedAt == nil || !u.EmailVerifiedAt.Equal(sent.Add(time.Minute)) {
		t.Fatalf("unexpected verifiedAt: %v", u.EmailVerifiedAt)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Test.COM "); got != "alice@test.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}

func TestRateLimitError(t *testing.T) {
	cases := []struct {
		wait time.Duration
		want int
	}{
		{wait: 1 * time.Second, want: 1},
		{wait: 1500 * time.Millisecond, want: 2},
		{wait: 59 * time.Second, want: 59},
		{wait: 0, want: 1},
	}
	for _, tc := range cases {
		err := error(&RateLimitError{RetryAfter: tc.wait})
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected errors.Is(ErrRateLimited)")
		}
		var rl *RateLimitError
		if !errors.As(err, &rl) || rl.RetryAfterSeconds() != tc.want {
			t.Fatalf("wait %v: expected %d seconds, got %+v", tc.wait, tc.want, rl)
		}
	}
}
