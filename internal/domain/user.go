package domain

import (
	"strings"
	"time"
)

type User struct {
	ID              UserID     `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email           string     `gorm:"type:citext;uniqueIndex:ux_users_email" db:"email" json:"email"`
	Username        string     `gorm:"type:text;not null" db:"username" json:"username"`
	Phone           *string    `gorm:"type:text" db:"phone" json:"phone,omitempty"`
	EmailVerified   bool       `gorm:"not null;default:false" db:"email_verified" json:"emailVerified"`
	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"emailVerifiedAt,omitempty"`
	IsDisabled      bool       `gorm:"not null;default:false" db:"is_disabled" json:"isDisabled"`

	// Pending verification code. Only the hash is ever stored.
	OTPHash      *string    `gorm:"column:otp_hash;type:text" db:"otp_hash" json:"-"`
	OTPExpiresAt *time.Time `gorm:"column:otp_expires_at" db:"otp_expires_at" json:"-"`
	OTPSentAt    *time.Time `gorm:"column:otp_sent_at" db:"otp_sent_at" json:"-"`

	CreatedAt time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// VerificationState is the email verification sub-state of an account.
type VerificationState int

const (
	StateUnverifiedNoCode VerificationState = iota
	StateCodePending
	StateVerified
)

func (s VerificationState) String() string {
	switch s {
	case StateCodePending:
		return "code_pending"
	case StateVerified:
		return "verified"
	default:
		return "unverified"
	}
}

func (u *User) VerificationState() VerificationState {
	switch {
	case u.EmailVerified:
		return StateVerified
	case u.OTPHash != nil && u.OTPExpiresAt != nil:
		return StateCodePending
	default:
		return StateUnverifiedNoCode
	}
}

// SetPendingCode records a freshly issued code. All three fields move together.
func (u *User) SetPendingCode(hash string, sentAt time.Time, ttl time.Duration) {
	exp := sentAt.Add(ttl)
	u.OTPHash = &hash
	u.OTPSentAt = &sentAt
	u.OTPExpiresAt = &exp
	u.UpdatedAt = sentAt
}

// MarkVerified moves the account to the terminal Verified state.
func (u *User) MarkVerified(at time.Time) {
	u.EmailVerified = true
	u.EmailVerifiedAt = &at
	u.ClearPendingCode()
	u.UpdatedAt = at
}

func (u *User) ClearPendingCode() {
	u.OTPHash = nil
	u.OTPExpiresAt = nil
	u.OTPSentAt = nil
}

// NormalizeEmail trims and lower-cases an address so lookups are
// case-insensitive regardless of the backing column type.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
