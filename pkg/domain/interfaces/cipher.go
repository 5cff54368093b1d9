package interfaces

import "github.com/secmon-lab/kottos/pkg/domain/types"

// EncryptedValue is the stored form of an assignee identifier together with
// the format it was produced with.
type EncryptedValue struct {
	Value  string
	Format string
}

// AssigneeCipher encrypts, decrypts and hashes assignee identifiers.
// All failure modes degrade to ok=false instead of returning an error:
// callers must treat "could not encrypt/decrypt" as a normal, recoverable
// outcome.
type AssigneeCipher interface {
	// Encrypt returns the storable form of the plaintext identifier
	Encrypt(plain types.UserID) (EncryptedValue, bool)

	// Decrypt restores the plaintext from a stored value
	Decrypt(value, format string) (types.UserID, bool)

	// Hash returns a deterministic digest of the plaintext identifier,
	// used for equality search independent of the encryption mode.
	Hash(plain types.UserID) string
}
