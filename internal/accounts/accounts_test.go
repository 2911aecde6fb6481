package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordRoundTrip(t *testing.T) {
	for _, p := range []string{"hunter2", "", "pässwörd with spaces", "x"} {
		a := &Account{}
		require.NoError(t, a.SetPassword(p))
		assert.Equal(t, AlgorithmArgon2id, a.Password.Algorithm)
		assert.Len(t, a.Password.Salt, 32)
		assert.True(t, a.VerifyPassword(p), p)
		assert.False(t, a.VerifyPassword(p+"!"), p)
	}
}

func TestSetPasswordUsesFreshSalt(t *testing.T) {
	a, b := &Account{}, &Account{}
	require.NoError(t, a.SetPassword("same"))
	require.NoError(t, b.SetPassword("same"))
	assert.NotEqual(t, a.Password.Salt, b.Password.Salt)
	assert.NotEqual(t, a.Password.Hash, b.Password.Hash)
}

func TestVerifyWithoutPassword(t *testing.T) {
	a := &Account{}
	assert.False(t, a.VerifyPassword(""))
	assert.False(t, a.VerifyPassword("anything"))
}

func TestVerifyBcryptRecord(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("legacy"), bcrypt.MinCost)
	require.NoError(t, err)

	a := &Account{Password: &Password{Algorithm: AlgorithmBcrypt, Hash: hash}}
	assert.True(t, a.VerifyPassword("legacy"))
	assert.False(t, a.VerifyPassword("Legacy"))
}

func TestVerifyUnknownAlgorithm(t *testing.T) {
	a := &Account{Password: &Password{Algorithm: "md5", Hash: []byte("x")}}
	assert.False(t, a.VerifyPassword("x"))
}

func TestGrantRevoke(t *testing.T) {
	a := &Account{}
	assert.True(t, a.Grant("a.b"))
	assert.False(t, a.Grant("a.b"))
	assert.True(t, a.Grant("-a.b.c"))
	assert.Equal(t, []string{"a.b", "-a.b.c"}, a.Permissions)

	assert.True(t, a.Revoke("a.b"))
	assert.False(t, a.Revoke("a.b"))
	assert.Equal(t, []string{"-a.b.c"}, a.Permissions)
}

func TestStoreCaseInsensitiveAndOrdered(t *testing.T) {
	s := NewStore()
	s.Put("Admin", &Account{Permissions: []string{"*"}})
	s.Put("*!*@host", &Account{})
	require.NoError(t, s.Create("$a:dalnet/someone", &Account{}))
	assert.ErrorIs(t, s.Create("ADMIN", &Account{}), ErrExists)

	a, ok := s.Get("admin")
	require.True(t, ok)
	assert.Equal(t, []string{"*"}, a.Permissions)
	assert.Equal(t, []string{"Admin", "*!*@host", "$a:dalnet/someone"}, s.Keys())

	assert.True(t, s.Delete("ADMIN"))
	assert.False(t, s.Delete("admin"))
	assert.Equal(t, []string{"*!*@host", "$a:dalnet/someone"}, s.Keys())
	assert.Equal(t, 2, s.Len())
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	s.Put("admin", &Account{Permissions: []string{"a"}})

	a, _ := s.Get("admin")
	a.Permissions[0] = "mutated"

	b, _ := s.Get("admin")
	assert.Equal(t, []string{"a"}, b.Permissions)
}

func TestStoreUpdate(t *testing.T) {
	s := NewStore()
	s.Put("admin", &Account{})

	require.NoError(t, s.Update("ADMIN", func(a *Account) error {
		a.Grant("core.*")
		return nil
	}))
	a, _ := s.Get("admin")
	assert.Equal(t, []string{"core.*"}, a.Permissions)

	assert.ErrorIs(t, s.Update("nobody", func(*Account) error { return nil }), ErrNotFound)
}
