package adapter

// CredentialHasher hashes user secrets and verifies a presented secret
// against a stored hash.
type CredentialHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}
