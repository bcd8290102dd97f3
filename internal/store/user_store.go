package store

import (
	"context"

	"medai-auth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	usr.Email = domain.NormalizeEmail(usr.Email)
	return translate(u.db.WithContext(ctx).Create(usr).Error)
}

func (u *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "email = ?", domain.NormalizeEmail(email)).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UpdateProfile rewrites the user-editable identity fields.
func (u *UserStore) UpdateProfile(ctx context.Context, usr *domain.User) error {
	res := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", usr.ID).
		Updates(map[string]any{
			"username":   usr.Username,
			"phone":      usr.Phone,
			"updated_at": usr.UpdatedAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SaveVerification writes the whole verification sub-state in a single
// UPDATE so the OTP fields never change independently of each other.
func (u *UserStore) SaveVerification(ctx context.Context, usr *domain.User) error {
	res := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", usr.ID).
		Updates(map[string]any{
			"email_verified":    usr.EmailVerified,
			"email_verified_at": usr.EmailVerifiedAt,
			"otp_hash":          usr.OTPHash,
			"otp_expires_at":    usr.OTPExpiresAt,
			"otp_sent_at":       usr.OTPSentAt,
			"updated_at":        usr.UpdatedAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
