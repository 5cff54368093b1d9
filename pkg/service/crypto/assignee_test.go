package crypto_test

import (
	"encoding/base64"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/kottos/pkg/service/crypto"
	"github.com/secmon-lab/kottos/pkg/domain/types"
)

func TestAssigneeCipher_PlainMode(t *testing.T) {
	c := crypto.New(crypto.FormatPlain, "")

	enc, ok := c.Encrypt("U012ABC")
	gt.Bool(t, ok).True()
	gt.Value(t, enc.Format).Equal(crypto.FormatPlain)
	gt.Value(t, enc.Value).Equal("U012ABC")

	dec, ok := c.Decrypt(enc.Value, enc.Format)
	gt.Bool(t, ok).True()
	gt.Value(t, dec).Equal(types.UserID("U012ABC"))
}

func TestAssigneeCipher_EncV1RoundTrip(t *testing.T) {
	c := crypto.New(crypto.FormatEncV1, "test-secret")

	enc1, ok := c.Encrypt("U012ABC")
	gt.Bool(t, ok).True()
	gt.Value(t, enc1.Format).Equal(crypto.FormatEncV1)
	gt.Value(t, enc1.Value).NotEqual("U012ABC")

	enc2, ok := c.Encrypt("U012ABC")
	gt.Bool(t, ok).True()

	// Random nonce: same plaintext, different ciphertext
	gt.Value(t, enc1.Value).NotEqual(enc2.Value)

	dec1, ok := c.Decrypt(enc1.Value, enc1.Format)
	gt.Bool(t, ok).True()
	gt.Value(t, dec1).Equal(types.UserID("U012ABC"))

	dec2, ok := c.Decrypt(enc2.Value, enc2.Format)
	gt.Bool(t, ok).True()
	gt.Value(t, dec2).Equal(types.UserID("U012ABC"))
}

func TestAssigneeCipher_FailSoft(t *testing.T) {
	t.Run("missing key cannot encrypt", func(t *testing.T) {
		c := crypto.New(crypto.FormatEncV1, "")
		_, ok := c.Encrypt("U012ABC")
		gt.Bool(t, ok).False()
	})

	t.Run("blank key cannot encrypt", func(t *testing.T) {
		c := crypto.New(crypto.FormatEncV1, "   ")
		_, ok := c.Encrypt("U012ABC")
		gt.Bool(t, ok).False()
	})

	t.Run("wrong key fails to decrypt", func(t *testing.T) {
		c1 := crypto.New(crypto.FormatEncV1, "secret-a")
		c2 := crypto.New(crypto.FormatEncV1, "secret-b")

		enc, ok := c1.Encrypt("U012ABC")
		gt.Bool(t, ok).True()

		_, ok = c2.Decrypt(enc.Value, enc.Format)
		gt.Bool(t, ok).False()
	})

	t.Run("corrupted base64 fails to decrypt", func(t *testing.T) {
		c := crypto.New(crypto.FormatEncV1, "test-secret")
		_, ok := c.Decrypt("not-valid-base64!!!", crypto.FormatEncV1)
		gt.Bool(t, ok).False()
	})

	t.Run("too short payload fails to decrypt", func(t *testing.T) {
		c := crypto.New(crypto.FormatEncV1, "test-secret")
		short := base64.StdEncoding.EncodeToString([]byte("tiny"))
		_, ok := c.Decrypt(short, crypto.FormatEncV1)
		gt.Bool(t, ok).False()
	})

	t.Run("unknown format fails to decrypt", func(t *testing.T) {
		c := crypto.New(crypto.FormatEncV1, "test-secret")
		_, ok := c.Decrypt("whatever", "enc_v99")
		gt.Bool(t, ok).False()
	})

	t.Run("unknown mode cannot encrypt", func(t *testing.T) {
		c := crypto.New("enc_v99", "test-secret")
		_, ok := c.Encrypt("U012ABC")
		gt.Bool(t, ok).False()
	})

	t.Run("empty plaintext cannot encrypt", func(t *testing.T) {
		c := crypto.New(crypto.FormatPlain, "")
		_, ok := c.Encrypt("")
		gt.Bool(t, ok).False()
	})
}

func TestAssigneeCipher_Hash(t *testing.T) {
	t.Run("deterministic under same secret", func(t *testing.T) {
		c1 := crypto.New(crypto.FormatEncV1, "test-secret")
		c2 := crypto.New(crypto.FormatPlain, "test-secret")

		gt.Value(t, c1.Hash("U012ABC")).Equal(c2.Hash("U012ABC"))
		gt.Value(t, c1.Hash("U012ABC")).NotEqual(c1.Hash("U999XYZ"))
	})

	t.Run("differs across secrets", func(t *testing.T) {
		c1 := crypto.New(crypto.FormatEncV1, "secret-a")
		c2 := crypto.New(crypto.FormatEncV1, "secret-b")
		gt.Value(t, c1.Hash("U012ABC")).NotEqual(c2.Hash("U012ABC"))
	})

	t.Run("empty input yields empty hash", func(t *testing.T) {
		c := crypto.New(crypto.FormatPlain, "")
		gt.Value(t, c.Hash("")).Equal("")
	})
}
