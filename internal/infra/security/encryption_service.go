// File: internal/infra/security/encryption_service.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
)

// associatedData binds every envelope to this application.
var associatedData = []byte("mindspace-youth-wellness")

// EncryptionService seals free text into envelopes with AES-GCM (AEAD) using a
// fresh random nonce per call. It holds a keyring indexed by key version;
// Encrypt always uses the active version, Decrypt picks the key named by the
// envelope so older envelopes stay readable after a rotation.
type EncryptionService struct {
	active int
	aeads  map[int]cipher.AEAD
}

// NewEncryptionService builds the keyring. Keys are raw strings of 16, 24 or
// 32 bytes, or "base64:" followed by the standard encoding of such a key.
func NewEncryptionService(keys map[int]string, active int) (*EncryptionService, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("encryption keyring is empty")
	}
	svc := &EncryptionService{active: active, aeads: make(map[int]cipher.AEAD, len(keys))}
	for version, raw := range keys {
		if version <= 0 {
			return nil, fmt.Errorf("key version must be positive; got %d", version)
		}
		k, err := ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("key v%d: %w", version, err)
		}
		block, err := aes.NewCipher(k)
		if err != nil {
			return nil, fmt.Errorf("aes.NewCipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("cipher.NewGCM: %w", err)
		}
		svc.aeads[version] = gcm
	}
	if _, ok := svc.aeads[active]; !ok {
		return nil, fmt.Errorf("active key version %d not in keyring", active)
	}
	return svc, nil
}

// ParseKey decodes a configured key and checks its length.
func ParseKey(raw string) ([]byte, error) {
	k := []byte(raw)
	if strings.HasPrefix(raw, "base64:") {
		b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, "base64:"))
		if err != nil {
			return nil, fmt.Errorf("base64 decode: %w", err)
		}
		k = b
	}
	if n := len(k); n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	return k, nil
}

// ActiveVersion is the key version new envelopes are sealed with.
func (e *EncryptionService) ActiveVersion() int { return e.active }

// Encrypt seals plaintext under the active key.
func (e *EncryptionService) Encrypt(plaintext string) (model.Envelope, error) {
	gcm := e.aeads[e.active]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return model.Envelope{}, fmt.Errorf("rand nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), associatedData)
	split := len(sealed) - gcm.Overhead()
	return model.Envelope{
		Ciphertext: sealed[:split:split],
		Nonce:      nonce,
		Tag:        sealed[split:],
		KeyVersion: e.active,
	}, nil
}

// Decrypt opens an envelope. Any malformed, tampered or mis-keyed input fails
// with domain.ErrDecryption; no partial plaintext is ever returned.
func (e *EncryptionService) Decrypt(env model.Envelope) (string, error) {
	gcm, ok := e.aeads[env.KeyVersion]
	if !ok {
		return "", fmt.Errorf("%w: unknown key version %d", domain.ErrDecryption, env.KeyVersion)
	}
	if len(env.Nonce) != gcm.NonceSize() || len(env.Tag) != gcm.Overhead() {
		return "", fmt.Errorf("%w: malformed envelope", domain.ErrDecryption)
	}
	buf := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	buf = append(buf, env.Ciphertext...)
	buf = append(buf, env.Tag...)
	pt, err := gcm.Open(nil, env.Nonce, buf, associatedData)
	if err != nil {
		return "", fmt.Errorf("%w: gcm open", domain.ErrDecryption)
	}
	return string(pt), nil
}

// DecryptOrRedact returns the plaintext, or the redacted placeholder together
// with the error so the caller can log it.
func (e *EncryptionService) DecryptOrRedact(env model.Envelope) (string, error) {
	pt, err := e.Decrypt(env)
	if err != nil {
		return model.RedactedContent, err
	}
	return pt, nil
}
