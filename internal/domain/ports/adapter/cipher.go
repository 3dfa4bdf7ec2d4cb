package adapter

import "mindspace/internal/domain/model"

// Cipher seals free text into envelopes. Decrypt failures wrap
// domain.ErrDecryption.
type Cipher interface {
	Encrypt(plaintext string) (model.Envelope, error)
	Decrypt(env model.Envelope) (string, error)
}
