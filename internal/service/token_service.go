package service

import (
	"context"

	"medai-auth/internal/domain"
	"medai-auth/internal/dto"
)

type TokenService interface {
	Issue(ctx context.Context, user *domain.User, ip, ua string) (*dto.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string, ip, ua string) (*dto.TokenResponse, error)
	VerifyAccess(ctx context.Context, accessToken string) (*dto.VerifyResponse, error)
	RevokeByRefresh(ctx context.Context, refreshToken string) (*domain.Session, error)
}
