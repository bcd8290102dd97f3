package impl

import (
	"context"
	"sync"

	"medai-auth/internal/domain"
	"medai-auth/internal/store"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*domain.User
	emailIndex  map[string]uuid.UUID
	credentials map[uuid.UUID]*domain.PasswordCredential
	audits      []domain.AuditLog

	saveVerificationErr error
	saveCalls           int
}

type storeSnapshot struct {
	users       map[uuid.UUID]*domain.User
	emailIndex  map[string]uuid.UUID
	credentials map[uuid.UUID]*domain.PasswordCredential
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:       make(map[uuid.UUID]*domain.User),
		emailIndex:  make(map[string]uuid.UUID),
		credentials: make(map[uuid.UUID]*domain.PasswordCredential),
	}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&memoryTx{store: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *memoryStore) Users() userStore { return &memoryUserStore{store: m} }

func (m *memoryStore) Credentials() credentialStore { return &memoryCredentialStore{store: m} }

func (m *memoryStore) Audit() auditStore { return &memoryAuditStore{store: m} }

func (m *memoryStore) snapshot() storeSnapshot {
	users := make(map[uuid.UUID]*domain.User, len(m.users))
	for id, user := range m.users {
		copy := *user
		users[id] = &copy
	}
	creds := make(map[uuid.UUID]*domain.PasswordCredential, len(m.credentials))
	for id, cred := range m.credentials {
		copy := *cred
		creds[id] = &copy
	}
	emails := make(map[string]uuid.UUID, len(m.emailIndex))
	for k, v := range m.emailIndex {
		emails[k] = v
	}
	return storeSnapshot{users: users, emailIndex: emails, credentials: creds}
}

func (m *memoryStore) restore(s storeSnapshot) {
	m.users = s.users
	m.emailIndex = s.emailIndex
	m.credentials = s.credentials
}

func (m *memoryStore) seed(user *domain.User, cred *domain.PasswordCredential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *user
	m.users[user.ID] = &copy
	m.emailIndex[user.Email] = user.ID
	if cred != nil {
		c := *cred
		m.credentials[cred.UserID] = &c
	}
}

func (m *memoryStore) userByEmail(email string) (*domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emailIndex[email]
	if !ok {
		return nil, false
	}
	user := *m.users[id]
	return &user, true
}

func (m *memoryStore) credentialByUserID(userID uuid.UUID) (*domain.PasswordCredential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.credentials[userID]
	if !ok {
		return nil, false
	}
	copy := *cred
	return &copy, true
}

func (m *memoryStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, a.Action)
	}
	return out
}

type memoryTx struct {
	store *memoryStore
}

func (m *memoryTx) Users() userStore { return &memoryUserStore{store: m.store, inTx: true} }

func (m *memoryTx) Credentials() credentialStore {
	return &memoryCredentialStore{store: m.store, inTx: true}
}

// lock is a no-op inside WithTx, which already holds the mutex.
func lock(m *memoryStore, inTx bool) func() {
	if inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

type memoryUserStore struct {
	store *memoryStore
	inTx  bool
}

func (u *memoryUserStore) Create(ctx context.Context, usr *domain.User) error {
	defer lock(u.store, u.inTx)()
	usr.Email = domain.NormalizeEmail(usr.Email)
	if _, ok := u.store.emailIndex[usr.Email]; ok {
		return store.ErrDuplicate
	}
	copy := *usr
	u.store.users[usr.ID] = &copy
	u.store.emailIndex[usr.Email] = usr.ID
	return nil
}

func (u *memoryUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer lock(u.store, u.inTx)()
	id, ok := u.store.emailIndex[domain.NormalizeEmail(email)]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	copy := *u.store.users[id]
	return &copy, nil
}

func (u *memoryUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	defer lock(u.store, u.inTx)()
	usr, ok := u.store.users[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	copy := *usr
	return &copy, nil
}

func (u *memoryUserStore) UpdateProfile(ctx context.Context, usr *domain.User) error {
	defer lock(u.store, u.inTx)()
	cur, ok := u.store.users[usr.ID]
	if !ok {
		return store.ErrRecordNotFound
	}
	cur.Username = usr.Username
	cur.Phone = usr.Phone
	cur.UpdatedAt = usr.UpdatedAt
	return nil
}

func (u *memoryUserStore) SaveVerification(ctx context.Context, usr *domain.User) error {
	defer lock(u.store, u.inTx)()
	u.store.saveCalls++
	if u.store.saveVerificationErr != nil {
		return u.store.saveVerificationErr
	}
	cur, ok := u.store.users[usr.ID]
	if !ok {
		return store.ErrRecordNotFound
	}
	cur.EmailVerified = usr.EmailVerified
	cur.EmailVerifiedAt = usr.EmailVerifiedAt
	cur.OTPHash = usr.OTPHash
	cur.OTPExpiresAt = usr.OTPExpiresAt
	cur.OTPSentAt = usr.OTPSentAt
	cur.UpdatedAt = usr.UpdatedAt
	return nil
}

type memoryCredentialStore struct {
	store *memoryStore
	inTx  bool
}

func (c *memoryCredentialStore) UpsertPassword(ctx context.Context, cred *domain.PasswordCredential) error {
	defer lock(c.store, c.inTx)()
	copy := *cred
	c.store.credentials[cred.UserID] = &copy
	return nil
}

func (c *memoryCredentialStore) GetPasswordByUserID(ctx context.Context, userID uuid.UUID) (*domain.PasswordCredential, error) {
	defer lock(c.store, c.inTx)()
	cred, ok := c.store.credentials[userID]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	copy := *cred
	return &copy, nil
}

type memoryAuditStore struct {
	store *memoryStore
}

func (a *memoryAuditStore) Record(ctx context.Context, entry *domain.AuditLog) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	a.store.audits = append(a.store.audits, *entry)
	return nil
}
