package impl

import (
	"errors"
	"testing"

	"medai-auth/internal/domain"
)

var cheapParams = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func credentialFrom(t *testing.T, ps *PasswordServiceImpl, password string) *domain.PasswordCredential {
	t.Helper()
	hash, salt, params, algo, ver, err := ps.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &domain.PasswordCredential{Algo: algo, Hash: hash, Salt: salt, ParamsJSON: params, PasswordVer: ver}
}

func TestPasswordHashUsesFreshSalt(t *testing.T) {
	ps := NewPasswordServiceWithParams(cheapParams, 1)
	a := credentialFrom(t, ps, "correct horse")
	b := credentialFrom(t, ps, "correct horse")
	if string(a.Salt) == string(b.Salt) || string(a.Hash) == string(b.Hash) {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestPasswordVerify(t *testing.T) {
	ps := NewPasswordServiceWithParams(cheapParams, 1)
	cred := credentialFrom(t, ps, "correct horse")

	if rehash, ok := ps.Verify("correct horse", cred); !ok || rehash {
		t.Fatalf("expected ok without rehash, got ok=%v rehash=%v", ok, rehash)
	}
	if _, ok := ps.Verify("wrong horse", cred); ok {
		t.Fatalf("wrong password must not verify")
	}
	if _, ok := ps.Verify("correct horse", &domain.PasswordCredential{Algo: "bcrypt"}); ok {
		t.Fatalf("unknown algorithm must not verify")
	}
}

func TestPasswordVerifyFlagsPolicyChange(t *testing.T) {
	old := NewPasswordServiceWithParams(cheapParams, 1)
	cred := credentialFrom(t, old, "correct horse")

	stronger := cheapParams
	stronger.Time = 2
	current := NewPasswordServiceWithParams(stronger, 2)

	rehash, ok := current.Verify("correct horse", cred)
	if !ok || !rehash {
		t.Fatalf("expected ok with rehash, got ok=%v rehash=%v", ok, rehash)
	}
}

func TestPasswordHashRejectsEmpty(t *testing.T) {
	ps := NewPasswordServiceWithParams(cheapParams, 1)
	if _, _, _, _, _, err := ps.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}
