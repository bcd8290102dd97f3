package impl

import (
	"context"
	"errors"

	"medai-auth/internal/domain"
	"medai-auth/internal/store"

	"github.com/google/uuid"
)

type dataStore interface {
	storeTx
	WithTx(ctx context.Context, fn func(tx storeTx) error) error
	Audit() auditStore
}

type storeTx interface {
	Users() userStore
	Credentials() credentialStore
}

// accountStore is the slice of the user store the verification gate needs.
type accountStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SaveVerification(ctx context.Context, usr *domain.User) error
}

type userStore interface {
	accountStore
	Create(ctx context.Context, usr *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, usr *domain.User) error
}

type credentialStore interface {
	UpsertPassword(ctx context.Context, c *domain.PasswordCredential) error
	GetPasswordByUserID(ctx context.Context, userID uuid.UUID) (*domain.PasswordCredential, error)
}

type auditStore interface {
	Record(ctx context.Context, entry *domain.AuditLog) error
}

type gormStoreAdapter struct {
	store *store.Store
}

func (g gormStoreAdapter) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	if g.store == nil {
		return errors.New("nil store")
	}
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(gormStoreAdapter{store: tx})
	})
}

func (g gormStoreAdapter) Users() userStore { return g.store.Users() }

func (g gormStoreAdapter) Credentials() credentialStore { return g.store.Credentials() }

func (g gormStoreAdapter) Audit() auditStore { return g.store.Audit() }
