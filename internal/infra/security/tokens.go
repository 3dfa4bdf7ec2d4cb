package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// GenerateToken returns n random bytes hex-encoded.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateKey returns a fresh 32-byte key in the "base64:" config form.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand key: %w", err)
	}
	return "base64:" + base64.StdEncoding.EncodeToString(b), nil
}

const anonymizeContext = "mindspace 2026-01 anonymized identifiers"

// Anonymizer derives stable, non-reversible identifiers (e.g. for client
// addresses) with a keyed BLAKE3 hash.
type Anonymizer struct {
	key [32]byte
}

func NewAnonymizer(secret string) *Anonymizer {
	a := &Anonymizer{}
	blake3.DeriveKey(anonymizeContext, []byte(secret), a.key[:])
	return a
}

// Anonymize returns the first 16 bytes of the keyed digest of s, hex-encoded.
func (a *Anonymizer) Anonymize(s string) string {
	h, err := blake3.NewKeyed(a.key[:])
	if err != nil {
		panic("security: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write([]byte(s))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
