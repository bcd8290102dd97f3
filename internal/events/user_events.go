package events

import "time"

type UserRegistered struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	At     time.Time `json:"at"`
}

type EmailVerified struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	At     time.Time `json:"at"`
}

type VerificationCodeResent struct {
	Email string    `json:"email"`
	At    time.Time `json:"at"`
}

// SignupRetried is recorded when signup is repeated for an unverified
// account. ProfileUpdated is false when the submitted password did not
// match the stored one.
type SignupRetried struct {
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	ProfileUpdated bool      `json:"profileUpdated"`
	At             time.Time `json:"at"`
}
