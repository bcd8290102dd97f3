package dto

type VerifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type ResendOTPRequest struct {
	Email string `json:"email"`
}

type ResendOTPResponse struct {
	Message string `json:"message"`
	DevOTP  string `json:"devOtp,omitempty"`
}
