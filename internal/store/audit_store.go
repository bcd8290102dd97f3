package store

import (
	"context"
	"time"

	"medai-auth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditStore struct{ db *gorm.DB }

func (s *Store) Audit() *AuditStore { return &AuditStore{db: s.DB} }

func (a *AuditStore) Record(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return translate(a.db.WithContext(ctx).Create(entry).Error)
}

func (a *AuditStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	if err := a.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}
