package service

import (
	"context"

	"medai-auth/internal/dto"
)

type AuthService interface {
	Signup(ctx context.Context, r dto.SignupRequest, ip, ua string) (*dto.SignupResponse, error)
	VerifyEmail(ctx context.Context, r dto.VerifyEmailRequest, ip, ua string) (*dto.AuthResponse, error)
	ResendOTP(ctx context.Context, r dto.ResendOTPRequest, ip, ua string) (*dto.ResendOTPResponse, error)
	Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string, ip, ua string) (*dto.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string, ip, ua string) error
	Me(ctx context.Context, accessToken string) (*dto.User, error)
}
