package accounts

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Password algorithm tags.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

const (
	saltLength    = 32 // 256 bits
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// Password is a stored password record.
type Password struct {
	Algorithm string `json:"algorithm"`
	Salt      []byte `json:"salt,omitempty"`
	Hash      []byte `json:"hash"`
}

// NewPassword hashes plaintext with a fresh random salt.
func NewPassword(plaintext string) (*Password, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return &Password{
		Algorithm: AlgorithmArgon2id,
		Salt:      salt,
		Hash:      deriveKey([]byte(plaintext), salt),
	}, nil
}

// Verify reports whether plaintext matches the record.
func (p *Password) Verify(plaintext string) bool {
	if p == nil {
		return false
	}
	switch p.Algorithm {
	case AlgorithmArgon2id:
		candidate := deriveKey([]byte(plaintext), p.Salt)
		return subtle.ConstantTimeCompare(p.Hash, candidate) == 1
	case AlgorithmBcrypt:
		return bcrypt.CompareHashAndPassword(p.Hash, []byte(plaintext)) == nil
	default:
		return false
	}
}

func deriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}
