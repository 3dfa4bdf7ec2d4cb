package model

// Envelope is the persisted form of any free-text field: AEAD ciphertext plus
// the nonce, authentication tag and the version of the key that sealed it.
type Envelope struct {
	Ciphertext []byte `json:"ct" cbor:"1,keyasint"`
	Nonce      []byte `json:"n" cbor:"2,keyasint"`
	Tag        []byte `json:"t" cbor:"3,keyasint"`
	KeyVersion int    `json:"kv" cbor:"4,keyasint"`
}

func (e Envelope) IsZero() bool {
	return len(e.Ciphertext) == 0 && len(e.Nonce) == 0 && len(e.Tag) == 0
}

// RedactedContent is rendered in place of content that failed to decrypt.
const RedactedContent = "[Could not decrypt]"

func (e Envelope) Clone() Envelope {
	return Envelope{
		Ciphertext: append([]byte(nil), e.Ciphertext...),
		Nonce:      append([]byte(nil), e.Nonce...),
		Tag:        append([]byte(nil), e.Tag...),
		KeyVersion: e.KeyVersion,
	}
}
