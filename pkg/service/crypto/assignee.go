package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

const (
	// FormatPlain stores the assignee identifier as-is
	FormatPlain = "plain"
	// FormatEncV1 stores the assignee identifier AES-256-GCM encrypted
	// with a random per-call nonce, base64 encoded as nonce||ciphertext.
	FormatEncV1 = "enc_v1"
)

// AssigneeCipher implements the assignee confidentiality contract. All
// failure modes (missing or blank key, wrong key, corrupted payload,
// unknown format, too-short payload) degrade to ok=false; it never panics
// and never returns an error.
type AssigneeCipher struct {
	mode string
	key  []byte
}

var _ interfaces.AssigneeCipher = &AssigneeCipher{}

// New creates an AssigneeCipher. mode is FormatPlain or FormatEncV1; the
// encryption key is derived from secret via SHA-256. An unknown mode or a
// blank secret in enc_v1 mode yields a cipher that cannot encrypt.
func New(mode, secret string) *AssigneeCipher {
	c := &AssigneeCipher{mode: mode}
	if strings.TrimSpace(secret) != "" {
		key := sha256.Sum256([]byte(secret))
		c.key = key[:]
	}
	return c
}

// Encrypt returns the storable form of the plaintext identifier
func (c *AssigneeCipher) Encrypt(plain types.UserID) (interfaces.EncryptedValue, bool) {
	if plain == "" {
		return interfaces.EncryptedValue{}, false
	}

	switch c.mode {
	case FormatPlain:
		return interfaces.EncryptedValue{Value: plain.String(), Format: FormatPlain}, true

	case FormatEncV1:
		aead, ok := c.aead()
		if !ok {
			return interfaces.EncryptedValue{}, false
		}
		nonce := make([]byte, aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return interfaces.EncryptedValue{}, false
		}
		sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
		return interfaces.EncryptedValue{
			Value:  base64.StdEncoding.EncodeToString(sealed),
			Format: FormatEncV1,
		}, true

	default:
		return interfaces.EncryptedValue{}, false
	}
}

// Decrypt restores the plaintext from a stored value. The format parameter
// is the one recorded at encryption time, so values written in plain mode
// remain readable after switching to enc_v1 and vice versa.
func (c *AssigneeCipher) Decrypt(value, format string) (types.UserID, bool) {
	switch format {
	case FormatPlain:
		if value == "" {
			return "", false
		}
		return types.UserID(value), true

	case FormatEncV1:
		aead, ok := c.aead()
		if !ok {
			return "", false
		}
		sealed, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return "", false
		}
		if len(sealed) < aead.NonceSize() {
			return "", false
		}
		nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
		plain, err := aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return "", false
		}
		return types.UserID(plain), true

	default:
		return "", false
	}
}

// Hash returns a deterministic digest of the plaintext identifier, keyed
// with the configured secret when one is set. The same cipher instance is
// used on write and search, so assignee lookups work uniformly in both
// modes.
func (c *AssigneeCipher) Hash(plain types.UserID) string {
	if plain == "" {
		return ""
	}
	if len(c.key) > 0 {
		mac := hmac.New(sha256.New, c.key)
		mac.Write([]byte(plain))
		return hex.EncodeToString(mac.Sum(nil))
	}
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

func (c *AssigneeCipher) aead() (cipher.AEAD, bool) {
	if len(c.key) == 0 {
		return nil, false
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, false
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, false
	}
	return aead, true
}
