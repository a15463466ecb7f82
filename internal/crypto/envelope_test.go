package crypto_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secret.link/internal/crypto"
)

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"simple text", "hello"},
		{"unicode", "Hello 世界 🌍"},
		{"json", `{"user":"admin","pass":"hunter2"}`},
		{"multiline", "line one\nline two\r\n\ttabbed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ciphertext, nonce, err := crypto.Encrypt(tt.plaintext, key)
			require.NoError(t, err)

			iv, err := base64.StdEncoding.DecodeString(nonce)
			require.NoError(t, err)
			assert.Len(t, iv, crypto.NonceSize)

			plaintext, err := crypto.Decrypt(ciphertext, key, nonce)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, plaintext)
		})
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	t.Parallel()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	seen := make(map[string]bool)
	for range 100 {
		ct, nonce, err := crypto.Encrypt("same input", key)
		require.NoError(t, err)
		require.False(t, seen[nonce], "nonce reused")
		require.False(t, seen[ct], "ciphertext repeated")
		seen[nonce] = true
		seen[ct] = true
	}
}

func TestDecryptTampered(t *testing.T) {
	t.Parallel()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	ciphertext, nonce, err := crypto.Encrypt("attack at dawn", key)
	require.NoError(t, err)

	flipEachBit := func(t *testing.T, encoded string, open func(string) error) {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		for i := range len(raw) * 8 {
			mutated := append([]byte(nil), raw...)
			mutated[i/8] ^= 1 << (i % 8)
			err := open(base64.StdEncoding.EncodeToString(mutated))
			require.ErrorIs(t, err, crypto.ErrDecryption, "bit %d", i)
		}
	}

	t.Run("ciphertext", func(t *testing.T) {
		flipEachBit(t, ciphertext, func(ct string) error {
			_, err := crypto.Decrypt(ct, key, nonce)
			return err
		})
	})

	t.Run("nonce", func(t *testing.T) {
		flipEachBit(t, nonce, func(n string) error {
			_, err := crypto.Decrypt(ciphertext, key, n)
			return err
		})
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := crypto.Decrypt("not base64!", key, nonce)
		assert.ErrorIs(t, err, crypto.ErrDecryption)
		_, err = crypto.Decrypt(ciphertext, key, "AAAA")
		assert.ErrorIs(t, err, crypto.ErrDecryption)
		_, err = crypto.Decrypt("", key, nonce)
		assert.ErrorIs(t, err, crypto.ErrDecryption)
	})
}

func TestDecryptWrongKey(t *testing.T) {
	t.Parallel()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	ciphertext, nonce, err := crypto.Encrypt("for your eyes only", key)
	require.NoError(t, err)

	_, err = crypto.Decrypt(ciphertext, other, nonce)
	assert.ErrorIs(t, err, crypto.ErrDecryption)
}

func TestKeyExportImport(t *testing.T) {
	t.Parallel()
	for range 20 {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		require.Len(t, key, crypto.KeySize)

		imported, err := crypto.ImportKey(crypto.ExportKey(key))
		require.NoError(t, err)
		assert.Equal(t, key, imported)
	}

	_, err := crypto.ImportKey("%%%")
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)
	_, err = crypto.ImportKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)

	_, _, err = crypto.Encrypt("x", crypto.Key("short"))
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)
}

func TestGenerateKeyUnique(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for range 1000 {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		exported := crypto.ExportKey(key)
		require.False(t, seen[exported])
		seen[exported] = true
	}
}

func TestGenerateSlug(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for range 1000 {
		slug, err := crypto.GenerateSlug()
		require.NoError(t, err)
		require.Len(t, slug, crypto.SlugLength)
		require.Regexp(t, `^[A-Za-z0-9_-]+$`, slug)
		require.False(t, seen[slug])
		seen[slug] = true
	}
}
