package dto

import (
	"time"

	"medai-auth/internal/domain"
)

// User is the public view of an account. OTP state never leaves the service.
type User struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Phone           *string    `json:"phone,omitempty"`
	EmailVerified   bool       `json:"emailVerified"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func UserFromDomain(u *domain.User) User {
	return User{
		ID:              u.ID.String(),
		Username:        u.Username,
		Email:           u.Email,
		Phone:           u.Phone,
		EmailVerified:   u.EmailVerified,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
}
