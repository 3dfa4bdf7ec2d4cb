package security

import (
	"golang.org/x/crypto/bcrypt"

	"mindspace/internal/domain/ports/adapter"
)

var _ adapter.CredentialHasher = (*BcryptHasher)(nil)

// BcryptHasher implements the credential verification contract with bcrypt,
// which salts every hash.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	return string(b), err
}

func (h *BcryptHasher) Verify(secret, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
