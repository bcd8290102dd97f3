package dto

type SignupRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Phone    *string `json:"phone,omitempty"`
}

type SignupResponse struct {
	VerificationRequired bool   `json:"verificationRequired"`
	Email                string `json:"email"`
	// Created is false when an existing unverified account was re-issued a code.
	Created bool `json:"-"`
	// DevOTP is only populated outside production when mail is not configured.
	DevOTP string `json:"devOtp,omitempty"`
}
